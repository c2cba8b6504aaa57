package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/gpio"
)

// EnrollButton watches the physical enrollment pushbutton. The edge handler
// runs in the GPIO watch goroutine and only invokes the trigger callback,
// which hands off to the polling loop. Presses are deduplicated so one
// press yields one enrollment session.
type EnrollButton struct {
	pin      *gpio.Pin
	lastNano atomic.Int64
	trigger  func()
}

const buttonHoldoff = 500 * time.Millisecond

// NewEnrollButton opens the GPIO memory map and watches the given pin for
// falling edges. Returns nil when no pin is configured.
func NewEnrollButton(pin *int, trigger func()) (*EnrollButton, error) {
	if pin == nil {
		return nil, nil
	}

	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	b := &EnrollButton{trigger: trigger}
	b.pin = gpio.NewPin(*pin)
	b.pin.Input()
	b.pin.PullUp()

	if err := b.pin.Watch(gpio.EdgeFalling, b.pressed); err != nil {
		gpio.Close()
		return nil, fmt.Errorf("watch enroll pin %d: %w", *pin, err)
	}
	return b, nil
}

func (b *EnrollButton) pressed(pin *gpio.Pin) {
	now := time.Now().UnixNano()
	last := b.lastNano.Load()
	if now-last < int64(buttonHoldoff) {
		return
	}
	if !b.lastNano.CompareAndSwap(last, now) {
		return
	}
	b.trigger()
}

// Release stops watching and closes the GPIO map.
func (b *EnrollButton) Release() {
	if b == nil {
		return
	}
	b.pin.Unwatch()
	gpio.Close()
}
