package wiegand

import (
	"context"
	"fmt"
)

// AltSource produces interpreted credentials from hardware that is not one
// of the Wiegand buses. Implementations block until a credential arrives or
// the context is cancelled.
type AltSource interface {
	Read(ctx context.Context) (Credential, error)
	Close() error
}

// NewAltSource creates the alternate source selected by cfg.AltType.
// Returns (nil, nil) when no alternate source is configured.
func NewAltSource(cfg Config) (AltSource, error) {
	switch cfg.AltType {
	case "":
		return nil, nil
	case "serial":
		return NewSerial(cfg.AltDevice, cfg.AltBaud)
	case "keypad":
		return NewKeypad(cfg.AltDevice)
	default:
		return nil, fmt.Errorf("unknown alt source type %q", cfg.AltType)
	}
}
