package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"vestiar/access"
)

// Record is one in-memory credential registry entry, unique by ID.
type Record struct {
	ID    uint32
	First string
	Last  string
}

// registryEntry is the persisted wire shape: either a bare integer id or
// {id, first, last}.
type registryEntry struct {
	ID    uint32 `json:"id"`
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
}

func (e *registryEntry) UnmarshalJSON(data []byte) error {
	var id uint32
	if err := json.Unmarshal(data, &id); err == nil {
		*e = registryEntry{ID: id}
		return nil
	}

	type alias registryEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = registryEntry(a)
	return nil
}

// Registry holds the credential registry. Updates are replace-all; a parse
// failure leaves the previous entries untouched.
type Registry struct {
	mu      sync.RWMutex
	entries []Record
	path    string
}

// NewRegistry creates an empty registry persisted at path. An empty path
// disables persistence.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Lookup implements access.Registry. The registry is small, tens to low
// hundreds of entries, so a linear scan is fine.
func (r *Registry) Lookup(id uint32) (access.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.entries {
		if rec.ID == id {
			return access.Person{First: rec.First, Last: rec.Last}, true
		}
	}
	return access.Person{}, false
}

// Add implements access.Registry: registers one new id and persists.
func (r *Registry) Add(id uint32, first, last string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.entries {
		if rec.ID == id {
			return fmt.Errorf("card %d already registered", id)
		}
	}
	r.entries = append(r.entries, Record{ID: id, First: first, Last: last})

	if err := r.persistLocked(); err != nil {
		// In-memory state stays authoritative for the session.
		log.Printf("registry: persist: %v", err)
	}
	return nil
}

// ReplaceAll parses a registry document and swaps the whole table. The
// previous table is kept fully intact on any parse error.
func (r *Registry) ReplaceAll(data []byte) error {
	var wire []registryEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode registry: %w", err)
	}

	next := make([]Record, 0, len(wire))
	for _, e := range wire {
		next = append(next, Record{ID: e.ID, First: e.First, Last: e.Last})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = next

	if err := r.persistLocked(); err != nil {
		log.Printf("registry: persist: %v", err)
	}
	return nil
}

// LoadFromFile loads the persisted registry, replace-all. A missing file is
// not an error; the registry starts empty.
func (r *Registry) LoadFromFile() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry file: %w", err)
	}

	var wire []registryEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode registry file: %w", err)
	}

	next := make([]Record, 0, len(wire))
	for _, e := range wire {
		next = append(next, Record{ID: e.ID, First: e.First, Last: e.Last})
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
	return nil
}

// Count returns the number of entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// persistLocked writes the registry atomically: temp file, then rename.
func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}

	wire := make([]registryEntry, 0, len(r.entries))
	for _, rec := range r.entries {
		wire = append(wire, registryEntry{ID: rec.ID, First: rec.First, Last: rec.Last})
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename registry file: %w", err)
	}
	return nil
}
