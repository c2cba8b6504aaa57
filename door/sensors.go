package door

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSensors implements Sensors over gpio character-device lines. Edge
// handlers keep the latest level in atomics so Door/Power never block the
// polling loop on a kernel read.
type GPIOSensors struct {
	doorLine  *gpiocdev.Line
	powerLine *gpiocdev.Line
	door      atomic.Bool
	power     atomic.Bool
}

// NewSensors creates the Sensors selected by the configuration. Returns a
// no-op implementation when neither pin is configured.
func NewSensors(cfg Config) (Sensors, error) {
	if cfg.DoorPin == nil && cfg.PowerPin == nil {
		return &NoopSensors{}, nil
	}

	chip := cfg.Chip
	if chip == "" {
		chip = "gpiochip0"
	}

	s := &GPIOSensors{}

	request := func(pin int, store *atomic.Bool) (*gpiocdev.Line, error) {
		l, err := gpiocdev.RequestLine(chip, pin,
			gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				store.Store(evt.Type == gpiocdev.LineEventRisingEdge)
			}))
		if err != nil {
			return nil, err
		}
		if v, err := l.Value(); err == nil {
			store.Store(v != 0)
		}
		return l, nil
	}

	var err error
	if cfg.DoorPin != nil {
		s.doorLine, err = request(*cfg.DoorPin, &s.door)
		if err != nil {
			return nil, fmt.Errorf("request door sensor line %d: %w", *cfg.DoorPin, err)
		}
	}
	if cfg.PowerPin != nil {
		s.powerLine, err = request(*cfg.PowerPin, &s.power)
		if err != nil {
			if s.doorLine != nil {
				s.doorLine.Close()
			}
			return nil, fmt.Errorf("request power sensor line %d: %w", *cfg.PowerPin, err)
		}
	}

	return s, nil
}

// Door implements Sensors.Door.
func (s *GPIOSensors) Door() bool { return s.door.Load() }

// Power implements Sensors.Power.
func (s *GPIOSensors) Power() bool { return s.power.Load() }

// Release implements Sensors.Release.
func (s *GPIOSensors) Release() error {
	if s.doorLine != nil {
		s.doorLine.Close()
	}
	if s.powerLine != nil {
		s.powerLine.Close()
	}
	return nil
}
