// Package deadline provides the cooperative timeout primitive used by the
// polling-loop components. A Deadline is armed with an absolute time and
// checked once per loop iteration; latency is bounded by the loop period.
package deadline

import "time"

// Deadline is a single armed-or-idle timeout.
type Deadline struct {
	at    time.Time
	armed bool
}

// Set arms the deadline at the given absolute time.
func (d *Deadline) Set(at time.Time) {
	d.at = at
	d.armed = true
}

// Clear disarms the deadline.
func (d *Deadline) Clear() {
	d.armed = false
}

// Armed reports whether the deadline is set.
func (d *Deadline) Armed() bool {
	return d.armed
}

// Expired reports whether the armed deadline has passed. It stays true
// until Clear or Set is called; an idle deadline never expires.
func (d *Deadline) Expired(now time.Time) bool {
	return d.armed && now.After(d.at)
}
