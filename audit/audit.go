// Package audit emits and stores the controller's structured audit trail:
// one record per credential attempt, schedule firing, enrollment transition,
// and actuator state change.
package audit

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// clockSaneAfter is the earliest believable wall-clock time. Anything below
// it means NTP has not completed and timestamps are advisory only.
var clockSaneAfter = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// ClockSynced reports whether t looks like a synchronized wall clock.
func ClockSynced(t time.Time) bool {
	return t.After(clockSaneAfter)
}

// Event is a write-once audit record.
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	Kind          string                 `json:"kind"`
	Source        string                 `json:"source"`
	Outcome       bool                   `json:"outcome"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
	ClockUnsynced bool                   `json:"clock_unsynced,omitempty"`
}

// Sink receives audit records for transport egress. A sink only ingests;
// delivery is best-effort and a down transport never blocks recording.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Config holds settings for the local audit log.
type Config struct {
	Path     string `yaml:"path"`      // local log file; empty disables it
	MaxBytes int64  `yaml:"max_bytes"` // size ceiling before truncation
}

const defaultMaxBytes = 64 * 1024

// Recorder forwards events to the transport sink and appends them to a
// bounded local log. When the log exceeds its ceiling it is truncated
// wholesale and a single marker record written; constrained flash makes
// trimming individual entries not worth the bookkeeping.
type Recorder struct {
	mu       sync.Mutex
	sink     Sink
	path     string
	maxBytes int64
	now      func() time.Time
}

// New creates a Recorder. sink may be nil (no transport egress).
func New(cfg Config, sink Sink) *Recorder {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Recorder{
		sink:     sink,
		path:     cfg.Path,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// Record stamps, forwards and appends one event.
func (r *Recorder) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	if !ClockSynced(ev.Timestamp) {
		ev.ClockUnsynced = true
	}

	if r.sink != nil {
		r.sink.Emit(ev)
	}

	if r.path == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(ev)
	if err != nil {
		log.Printf("audit: marshal event: %v", err)
		return
	}

	if err := r.append(line); err != nil {
		log.Printf("audit: write local log: %v", err)
	}
}

func (r *Recorder) append(line []byte) error {
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return cerr
	}

	info, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	if info.Size() <= r.maxBytes {
		return nil
	}

	// Over the ceiling: start over with a single marker record.
	marker := Event{
		Timestamp: r.now(),
		Kind:      "log_truncated",
		Source:    "audit",
		Outcome:   true,
	}
	if !ClockSynced(marker.Timestamp) {
		marker.ClockUnsynced = true
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, append(data, '\n'), 0644)
}
