package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vestiar/schedule"
)

// codeFile is the persisted master-code document: {"code":"NNNN"}.
type codeFile struct {
	Code string `json:"code"`
}

// loadMasterCode reads the persisted keypad code, falling back to the
// configured seed when no file exists yet.
func loadMasterCode(path, seed string) string {
	if path == "" {
		return seed
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seed
	}
	var cf codeFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Code == "" {
		return seed
	}
	return cf.Code
}

// saveMasterCode persists the keypad code atomically.
func saveMasterCode(path, code string) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(codeFile{Code: code})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// loadRules reads and parses the persisted rule set. A missing file yields
// an empty table.
func loadRules(path string) ([]schedule.Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return schedule.ParseRules(data)
}

// saveRules persists the rule table atomically.
func saveRules(path string, rules []schedule.Rule) error {
	if path == "" {
		return nil
	}
	data, err := schedule.MarshalRules(rules)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a temp file and rename so a failed write never
// corrupts the previous content.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
