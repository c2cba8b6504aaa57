package wiegand

import (
	"log"
	"sync"
	"time"
)

// Source identifies which physical bus a frame was captured from.
type Source int

const (
	SourceKeypad Source = iota
	SourceReader
)

func (s Source) String() string {
	switch s {
	case SourceKeypad:
		return "keypad"
	case SourceReader:
		return "reader"
	}
	return "unknown"
}

const (
	// frameGap is the inter-bit idle time after which a frame is complete.
	// The bus has no end-of-frame marker, so silence is the terminator.
	frameGap = 30 * time.Millisecond

	// dupWindow suppresses bit-identical frames caused by contact bounce
	// or a credential lingering on the reader.
	dupWindow = 300 * time.Millisecond

	// minFrameBits is the shortest frame accepted; anything below is line noise.
	minFrameBits = 7

	maxFrameBits = 64
)

// Frame is one completed run of bits from a single bus.
type Frame struct {
	Source      Source
	Bits        uint64
	Count       int
	CompletedAt time.Time
}

// Line accumulates raw edges for one physical bus. Each bus gets its own
// Line so concurrent edges from two readers can never be cross-attributed.
// Edge is safe to call from a GPIO event handler goroutine; TryTake is the
// only consumer-side access path to the accumulator.
type Line struct {
	source Source

	mu       sync.Mutex
	bits     uint64
	count    int
	lastEdge time.Time
}

// NewLine creates an accumulator for the given bus.
func NewLine(source Source) *Line {
	return &Line{source: source}
}

// Edge records one captured bit: shift left, insert the bit's value.
// Called from the D0 (bit=0) and D1 (bit=1) event handlers.
func (l *Line) Edge(bit uint8, now time.Time) {
	l.mu.Lock()
	l.bits = l.bits<<1 | uint64(bit&1)
	if l.count < maxFrameBits {
		l.count++
	}
	l.lastEdge = now
	l.mu.Unlock()
}

// TryTake atomically snapshots and clears the pending frame if the inter-bit
// gap has elapsed. Returns false while a frame is still being clocked in or
// nothing is pending. A bit arriving after the snapshot starts is never
// attributed to the taken frame and never dropped.
func (l *Line) TryTake(now time.Time) (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 || now.Sub(l.lastEdge) <= frameGap {
		return Frame{}, false
	}

	f := Frame{
		Source:      l.source,
		Bits:        l.bits,
		Count:       l.count,
		CompletedAt: now,
	}
	l.bits = 0
	l.count = 0
	return f, true
}

// Decoder drains a set of lines and applies the noise and duplicate filters.
type Decoder struct {
	lines []*Line

	lastBits  uint64
	lastCount int
	lastAt    time.Time
}

// NewDecoder creates a decoder over the given lines. Lines are drained in
// the order given.
func NewDecoder(lines ...*Line) *Decoder {
	return &Decoder{lines: lines}
}

// Poll returns at most one completed frame. Frames shorter than minFrameBits
// are discarded as noise; a frame bit-identical to the immediately preceding
// one and completed within dupWindow of it is suppressed.
func (d *Decoder) Poll(now time.Time) (Frame, bool) {
	for _, l := range d.lines {
		f, ok := l.TryTake(now)
		if !ok {
			continue
		}

		if f.Count < minFrameBits {
			log.Printf("wiegand: dropped %d-bit noise frame on %s bus (bits=%#x)",
				f.Count, f.Source, f.Bits)
			continue
		}

		dup := f.Count == d.lastCount && f.Bits == d.lastBits &&
			f.CompletedAt.Sub(d.lastAt) < dupWindow
		d.lastBits = f.Bits
		d.lastCount = f.Count
		d.lastAt = f.CompletedAt
		if dup {
			continue
		}
		return f, true
	}
	return Frame{}, false
}

// Config holds wiring for the Wiegand buses and the optional alternate source.
type Config struct {
	Chip     string `yaml:"chip"`      // gpio chip, e.g. "gpiochip0"
	KeypadD0 int    `yaml:"keypad_d0"` // keypad bus data-0 pin
	KeypadD1 int    `yaml:"keypad_d1"` // keypad bus data-1 pin
	ReaderD0 int    `yaml:"reader_d0"` // card reader bus data-0 pin
	ReaderD1 int    `yaml:"reader_d1"` // card reader bus data-1 pin

	AltType   string `yaml:"alt_type"`   // "", "serial", "keypad"
	AltDevice string `yaml:"alt_device"` // e.g. "/dev/serial0", "/dev/input/event0"
	AltBaud   int    `yaml:"alt_baud"`
}
