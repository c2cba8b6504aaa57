package door

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// GPIO implements Strike using simple GPIO pin control.
type GPIO struct {
	hw       govattu.Vattu
	pin      uint8
	openHigh bool // true = set pin high to open, false = set pin low to open
}

// NewStrike creates the Strike selected by the configuration.
func NewStrike(cfg Config) (Strike, error) {
	if cfg.Pin == nil || cfg.Type == "none" || cfg.Type == "" {
		return &Noop{}, nil
	}

	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	switch cfg.Type {
	case "gpio_high", "openhigh":
		return NewGPIO(hw, uint8(*cfg.Pin), true)
	case "gpio_low", "openlow":
		return NewGPIO(hw, uint8(*cfg.Pin), false)
	default:
		hw.Close()
		return nil, fmt.Errorf("unknown strike type %q", cfg.Type)
	}
}

// NewGPIO creates a new GPIO-based strike.
func NewGPIO(hw govattu.Vattu, pin uint8, openHigh bool) (*GPIO, error) {
	hw.PinMode(pin, govattu.ALToutput)

	g := &GPIO{
		hw:       hw,
		pin:      pin,
		openHigh: openHigh,
	}

	// Start in closed state
	g.Close()
	return g, nil
}

// Open implements Strike.Open.
func (g *GPIO) Open() error {
	if g.openHigh {
		g.hw.PinSet(g.pin)
	} else {
		g.hw.PinClear(g.pin)
	}
	return nil
}

// Close implements Strike.Close.
func (g *GPIO) Close() error {
	if g.openHigh {
		g.hw.PinClear(g.pin)
	} else {
		g.hw.PinSet(g.pin)
	}
	return nil
}

// Release implements Strike.Release.
func (g *GPIO) Release() error {
	return g.hw.Close()
}
