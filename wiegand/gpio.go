package wiegand

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Bus binds a Line to a D0/D1 pin pair on a gpio character device. The bus
// idles high; a falling edge on D0 clocks in a 0 bit, on D1 a 1 bit. The
// event handlers run on the gpiocdev goroutine and touch nothing but the
// Line accumulator.
type Bus struct {
	d0 *gpiocdev.Line
	d1 *gpiocdev.Line
}

// Attach requests the D0/D1 lines for the given accumulator.
func Attach(chip string, d0Pin, d1Pin int, line *Line) (*Bus, error) {
	if chip == "" {
		chip = "gpiochip0"
	}

	b := &Bus{}
	var err error

	b.d0, err = gpiocdev.RequestLine(chip, d0Pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			line.Edge(0, time.Now())
		}))
	if err != nil {
		return nil, fmt.Errorf("request %s D0 line %d: %w", line.source, d0Pin, err)
	}

	b.d1, err = gpiocdev.RequestLine(chip, d1Pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			line.Edge(1, time.Now())
		}))
	if err != nil {
		b.d0.Close()
		return nil, fmt.Errorf("request %s D1 line %d: %w", line.source, d1Pin, err)
	}

	return b, nil
}

// Close releases both GPIO lines.
func (b *Bus) Close() error {
	if b.d0 != nil {
		b.d0.Close()
	}
	if b.d1 != nil {
		b.d1.Close()
	}
	return nil
}
