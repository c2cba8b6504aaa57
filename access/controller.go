// Package access applies authorization and enrollment policy to interpreted
// credentials.
package access

import (
	"errors"
	"fmt"
	"log"
	"time"

	"vestiar/audit"
	"vestiar/deadline"
	"vestiar/wiegand"
)

// Person is the name pair attached to a registry entry.
type Person struct {
	First string
	Last  string
}

// Registry is the credential registry the controller authorizes against.
type Registry interface {
	// Lookup finds a card id.
	Lookup(id uint32) (Person, bool)

	// Add registers a card id with the given names.
	Add(id uint32, first, last string) error
}

// Door receives the access-granted actuation.
type Door interface {
	Grant(now time.Time)
}

// Recorder receives one audit event per credential attempt and enrollment
// transition.
type Recorder interface {
	Record(ev audit.Event)
}

// State is the controller's mode.
type State int

const (
	StateIdle State = iota
	StateEnrolling
)

func (s State) String() string {
	if s == StateEnrolling {
		return "enrolling"
	}
	return "idle"
}

const (
	// enrollTimeout bounds an enrollment session with no card presented.
	enrollTimeout = 15 * time.Second

	// keyGap rejects rapid-fire ghost repeats of a single keypad frame.
	keyGap = 60 * time.Millisecond

	// bufTimeout clears a half-entered code after inactivity.
	bufTimeout = 10 * time.Second

	maxCodeLen = 16
)

// Controller is the authorization and enrollment state machine. All methods
// run on the polling loop goroutine.
type Controller struct {
	registry Registry
	door     Door
	recorder Recorder

	masterCode string

	state  State
	enroll deadline.Deadline

	buf      []byte
	lastKey  time.Time
	bufClear deadline.Deadline
}

// New creates an idle controller. masterCode may be empty, which disables
// keypad-code entry until one is set.
func New(registry Registry, door Door, recorder Recorder, masterCode string) *Controller {
	return &Controller{
		registry:   registry,
		door:       door,
		recorder:   recorder,
		masterCode: masterCode,
	}
}

// State returns the current mode.
func (c *Controller) State() State { return c.state }

// MasterCode returns the configured keypad code.
func (c *Controller) MasterCode() string { return c.masterCode }

// SetMasterCode replaces the keypad code without validation; use
// ChangeMasterCode for the checked external flow.
func (c *Controller) SetMasterCode(code string) { c.masterCode = code }

// ErrBadCode see ChangeMasterCode.
var (
	ErrBadCode     = errors.New("new code must be 4-8 digits")
	ErrConfirm     = errors.New("new code and confirmation differ")
	ErrCurrentCode = errors.New("current code mismatch")
)

// ValidCode reports whether s is an acceptable master code: 4 to 8 digits.
func ValidCode(s string) bool {
	if len(s) < 4 || len(s) > 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ChangeMasterCode applies the checked current/new/confirm change flow. The
// previous code is kept on any error.
func (c *Controller) ChangeMasterCode(current, next, confirm string) error {
	if !ValidCode(next) {
		return ErrBadCode
	}
	if next != confirm {
		return ErrConfirm
	}
	if c.masterCode != "" && current != c.masterCode {
		return ErrCurrentCode
	}
	c.masterCode = next
	return nil
}

// StartEnrollment begins an enrollment session: the next presented card is
// registered instead of authorized. A trigger during an active session is
// ignored, so each trigger yields at most one session.
func (c *Controller) StartEnrollment(now time.Time) {
	if c.state == StateEnrolling {
		return
	}
	c.state = StateEnrolling
	c.enroll.Set(now.Add(enrollTimeout))
	c.record(audit.Event{
		Timestamp: now,
		Kind:      "enroll",
		Source:    "start",
		Outcome:   true,
	})
}

// StopEnrollment ends an enrollment session without registering anything.
func (c *Controller) StopEnrollment(now time.Time) {
	if c.state != StateEnrolling {
		return
	}
	c.state = StateIdle
	c.enroll.Clear()
	c.record(audit.Event{
		Timestamp: now,
		Kind:      "enroll",
		Source:    "stop",
		Outcome:   false,
	})
}

// HandleCredential applies policy to one interpreted credential.
func (c *Controller) HandleCredential(cr wiegand.Credential, now time.Time) {
	switch cr.Kind {
	case wiegand.KindCard:
		c.handleCard(cr, now)

	case wiegand.KindDigit:
		if c.state == StateEnrolling {
			return
		}
		if !c.lastKey.IsZero() && now.Sub(c.lastKey) < keyGap {
			return
		}
		c.lastKey = now
		if len(c.buf) < maxCodeLen {
			c.buf = append(c.buf, cr.Key)
		}
		c.bufClear.Set(now.Add(bufTimeout))

	case wiegand.KindCommand:
		if c.state == StateEnrolling {
			return
		}
		switch cr.Command {
		case wiegand.CmdEnter:
			c.handleEnter(now)
		case wiegand.CmdClear:
			c.clearBuffer()
		}

	default:
		log.Printf("access: unresolved %d-bit frame from %s (bits=%#x)",
			cr.Count, cr.Source, cr.Bits)
		c.record(audit.Event{
			Timestamp: now,
			Kind:      "unknown_frame",
			Source:    cr.Source.String(),
			Outcome:   false,
			Detail: map[string]interface{}{
				"bits":  fmt.Sprintf("%#x", cr.Bits),
				"count": cr.Count,
			},
		})
	}
}

func (c *Controller) handleCard(cr wiegand.Credential, now time.Time) {
	if c.state == StateEnrolling {
		err := c.registry.Add(cr.Card.ID, "", "")
		if err != nil {
			log.Printf("access: enroll card %d: %v", cr.Card.ID, err)
		}
		c.state = StateIdle
		c.enroll.Clear()
		c.record(audit.Event{
			Timestamp: now,
			Kind:      "enroll",
			Source:    "card",
			Outcome:   err == nil,
			Detail:    map[string]interface{}{"id": cr.Card.ID},
		})
		return
	}

	person, found := c.registry.Lookup(cr.Card.ID)

	detail := map[string]interface{}{
		"id":       cr.Card.ID,
		"facility": cr.Card.Facility,
		"serial":   cr.Card.Serial,
	}
	if found {
		detail["first"] = person.First
		detail["last"] = person.Last
	}
	c.record(audit.Event{
		Timestamp: now,
		Kind:      "card",
		Source:    cr.Source.String(),
		Outcome:   found,
		Detail:    detail,
	})

	if found {
		c.door.Grant(now)
	}
}

func (c *Controller) handleEnter(now time.Time) {
	ok := c.masterCode != "" && string(c.buf) == c.masterCode
	c.record(audit.Event{
		Timestamp: now,
		Kind:      "keypad",
		Source:    "code",
		Outcome:   ok,
		Detail:    map[string]interface{}{"digits": len(c.buf)},
	})
	c.clearBuffer()
	if ok {
		c.door.Grant(now)
	}
}

// Tick drives the cooperative timeouts: enrollment expiry and keypad-buffer
// inactivity. Called once per loop iteration.
func (c *Controller) Tick(now time.Time) {
	if c.state == StateEnrolling && c.enroll.Expired(now) {
		c.state = StateIdle
		c.enroll.Clear()
		c.record(audit.Event{
			Timestamp: now,
			Kind:      "enroll",
			Source:    "timeout",
			Outcome:   false,
		})
	}
	if c.bufClear.Expired(now) {
		c.clearBuffer()
	}
}

func (c *Controller) clearBuffer() {
	c.buf = c.buf[:0]
	c.bufClear.Clear()
}

func (c *Controller) record(ev audit.Event) {
	if c.recorder != nil {
		c.recorder.Record(ev)
	}
}
