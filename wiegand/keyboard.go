package wiegand

import (
	"context"
	"fmt"
	"log"

	"github.com/kenshaw/evdev"
)

// Keypad implements AltSource for USB keypads in keyboard mode, emitting
// one credential per key press.
type Keypad struct {
	device *evdev.Evdev
}

// NewKeypad opens the given evdev input device.
func NewKeypad(device string) (*Keypad, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", device, err)
	}

	log.Printf("Opened keypad device: %s", dev.Name())
	return &Keypad{device: dev}, nil
}

// Read implements AltSource.Read. Digits map to KindDigit, Enter to the
// '#' command, Escape to the '*' command; other keys are ignored.
func (k *Keypad) Read(ctx context.Context) (Credential, error) {
	ch := k.device.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		case event := <-ch:
			if event == nil {
				return Credential{}, fmt.Errorf("keypad device closed")
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				if event.Value != 1 {
					continue
				}

				if event.Type == evdev.KeyEnter {
					return Credential{Kind: KindCommand, Source: SourceKeypad, Command: CmdEnter, Key: '#'}, nil
				}
				if event.Type == evdev.KeyEscape {
					return Credential{Kind: KindCommand, Source: SourceKeypad, Command: CmdClear, Key: '*'}, nil
				}

				s := evdev.KeyType(event.Code).String()
				if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
					return Credential{Kind: KindDigit, Source: SourceKeypad, Key: s[0]}, nil
				}
				if s == "*" {
					return Credential{Kind: KindCommand, Source: SourceKeypad, Command: CmdClear, Key: '*'}, nil
				}
			}
		}
	}
}

// Close implements AltSource.Close.
func (k *Keypad) Close() error {
	if k.device == nil {
		return nil
	}
	return k.device.Close()
}
