package door

import (
	"fmt"
	"log"
	"time"

	"vestiar/audit"
	"vestiar/deadline"
)

// Strike is the interface for the physical lock output.
type Strike interface {
	// Open energizes the strike (door unlocked).
	Open() error

	// Close de-energizes the strike (door locked).
	Close() error

	// Release releases any hardware resources.
	Release() error
}

// Sensors samples the door-reed and power-presence inputs.
type Sensors interface {
	// Door reports whether the door is closed.
	Door() bool

	// Power reports whether mains power is present.
	Power() bool

	// Release releases any hardware resources.
	Release() error
}

// LockState is the actuator's logical lock position.
type LockState int

const (
	Locked LockState = iota
	Unlocked
	PendingAutoRelock
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case PendingAutoRelock:
		return "pending_relock"
	}
	return "unknown"
}

// Mode selects the timing policy for granted access.
type Mode int

const (
	// ModeHold unlocks immediately and re-locks after the grace window
	// unless another command supersedes it.
	ModeHold Mode = iota

	// ModePulse energizes the strike for a fixed short pulse and returns
	// to rest, for strikes that only need a momentary trigger.
	ModePulse
)

// Status is the published snapshot consumed by the transport layer.
type Status struct {
	Lock  LockState
	Door  bool
	Power bool
}

// Config holds configuration for the actuator and its hardware.
type Config struct {
	Type string `yaml:"type"` // "gpio_high", "gpio_low", "none"
	Pin  *int   `yaml:"pin"`  // strike GPIO pin

	Mode    string `yaml:"mode"`     // "hold" (default) or "pulse"
	GraceMs int    `yaml:"grace_ms"` // auto-relock grace window
	PulseMs int    `yaml:"pulse_ms"` // pulse width in pulse mode

	Chip     string `yaml:"chip"`      // gpio chip for sensors
	DoorPin  *int   `yaml:"door_pin"`  // reed switch input
	PowerPin *int   `yaml:"power_pin"` // power sense input
}

const (
	defaultGrace = 3 * time.Second
	defaultPulse = 400 * time.Millisecond
)

// Recorder receives actuator state-change audit events.
type Recorder interface {
	Record(ev audit.Event)
}

// Actuator owns the lock state machine. All methods run on the polling
// loop goroutine; nothing here is called from interrupt context.
type Actuator struct {
	strike  Strike
	sensors Sensors
	mode    Mode
	grace   time.Duration
	pulse   time.Duration

	state     LockState
	engagedAt time.Time
	relock    deadline.Deadline

	recorder Recorder
	onStatus func(Status)

	last      Status
	published bool
}

// NewActuator builds the actuator over the given hardware. recorder and
// onStatus may be nil. The strike starts locked.
func NewActuator(cfg Config, strike Strike, sensors Sensors, recorder Recorder, onStatus func(Status)) (*Actuator, error) {
	mode := ModeHold
	switch cfg.Mode {
	case "", "hold":
	case "pulse":
		mode = ModePulse
	default:
		return nil, fmt.Errorf("unknown door mode %q", cfg.Mode)
	}

	grace := defaultGrace
	if cfg.GraceMs > 0 {
		grace = time.Duration(cfg.GraceMs) * time.Millisecond
	}
	pulse := defaultPulse
	if cfg.PulseMs > 0 {
		pulse = time.Duration(cfg.PulseMs) * time.Millisecond
	}

	a := &Actuator{
		strike:   strike,
		sensors:  sensors,
		mode:     mode,
		grace:    grace,
		pulse:    pulse,
		state:    Locked,
		recorder: recorder,
		onStatus: onStatus,
	}
	if err := strike.Close(); err != nil {
		return nil, fmt.Errorf("initial lock: %w", err)
	}
	return a, nil
}

// Lock engages the lock and holds it until countermanded.
func (a *Actuator) Lock(now time.Time) {
	a.relock.Clear()
	a.setState(Locked, now, "command")
}

// Unlock disengages the lock and holds it open until countermanded.
// Issued during a grace window it cancels the pending auto-relock.
func (a *Actuator) Unlock(now time.Time) {
	a.relock.Clear()
	a.setState(Unlocked, now, "command")
}

// Grant performs the access-granted actuation: unlock with auto-relock
// after the grace window in hold mode, a momentary pulse in pulse mode.
func (a *Actuator) Grant(now time.Time) {
	switch a.mode {
	case ModePulse:
		a.relock.Set(now.Add(a.pulse))
	default:
		a.relock.Set(now.Add(a.grace))
	}
	a.setState(PendingAutoRelock, now, "grant")
}

// Tick fires a due auto-relock and republishes status when the lock state
// or either sensor changed. Called once per loop iteration.
func (a *Actuator) Tick(now time.Time) {
	if a.relock.Expired(now) {
		a.relock.Clear()
		a.setState(Locked, now, "auto_relock")
		return
	}
	a.publish()
}

// Status returns the current snapshot.
func (a *Actuator) Status() Status {
	return Status{
		Lock:  a.state,
		Door:  a.sampleDoor(),
		Power: a.samplePower(),
	}
}

// Republish forces a status publish regardless of change, for connection
// (re)establishment.
func (a *Actuator) Republish() {
	a.published = false
	a.publish()
}

func (a *Actuator) setState(s LockState, now time.Time, cause string) {
	if s == a.state {
		a.publish()
		return
	}

	prev := a.state
	a.state = s

	var err error
	switch s {
	case Locked:
		err = a.strike.Close()
	default:
		err = a.strike.Open()
		a.engagedAt = now
	}
	if err != nil {
		// Keep the logical state; the next command retries the hardware.
		log.Printf("door: strike %s: %v", s, err)
	}

	if a.recorder != nil {
		a.recorder.Record(audit.Event{
			Timestamp: now,
			Kind:      "actuator",
			Source:    cause,
			Outcome:   true,
			Detail: map[string]interface{}{
				"from": prev.String(),
				"to":   s.String(),
			},
		})
	}
	a.publish()
}

func (a *Actuator) publish() {
	cur := a.Status()
	if a.published && cur == a.last {
		return
	}
	a.last = cur
	a.published = true
	if a.onStatus != nil {
		a.onStatus(cur)
	}
}

func (a *Actuator) sampleDoor() bool {
	if a.sensors == nil {
		return false
	}
	return a.sensors.Door()
}

func (a *Actuator) samplePower() bool {
	if a.sensors == nil {
		return false
	}
	return a.sensors.Power()
}
