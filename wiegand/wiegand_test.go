package wiegand

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// clockEdges feeds a bit pattern into a line, one edge per ms.
func clockEdges(l *Line, bits uint64, count int, start time.Time) time.Time {
	now := start
	for i := count - 1; i >= 0; i-- {
		l.Edge(uint8(bits>>uint(i))&1, now)
		now = now.Add(time.Millisecond)
	}
	return now
}

func TestLineAccumulatesEdges(t *testing.T) {
	l := NewLine(SourceReader)
	end := clockEdges(l, 0x2A, 6, t0)

	// Still inside the inter-bit window: not complete.
	_, ok := l.TryTake(end.Add(10 * time.Millisecond))
	require.False(t, ok)

	f, ok := l.TryTake(end.Add(40 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, uint64(0x2A), f.Bits)
	require.Equal(t, 6, f.Count)
	require.Equal(t, SourceReader, f.Source)
}

func TestTryTakeClearsPendingFrame(t *testing.T) {
	l := NewLine(SourceKeypad)
	end := clockEdges(l, 0xE1, 8, t0)

	_, ok := l.TryTake(end.Add(40 * time.Millisecond))
	require.True(t, ok)

	// Nothing left after the drain.
	_, ok = l.TryTake(end.Add(80 * time.Millisecond))
	require.False(t, ok)
}

func TestLateEdgeStartsNewFrame(t *testing.T) {
	l := NewLine(SourceReader)
	end := clockEdges(l, 0x55, 7, t0)

	f, ok := l.TryTake(end.Add(40 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, 7, f.Count)

	// An edge arriving after the drain belongs to the next frame.
	l.Edge(1, end.Add(50*time.Millisecond))
	f2, ok := l.TryTake(end.Add(100 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, 1, f2.Count)
	require.Equal(t, uint64(1), f2.Bits)
}

func TestEdgeAndTryTakeAreSafeConcurrently(t *testing.T) {
	l := NewLine(SourceReader)
	var wg sync.WaitGroup

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		now := t0
		for {
			select {
			case <-stop:
				return
			default:
			}
			l.Edge(1, now)
			now = now.Add(time.Millisecond)
		}
	}()

	taken := 0
	for i := 0; i < 1000; i++ {
		runtime.Gosched() // let the writer goroutine run on a single CPU
		if _, ok := l.TryTake(t0.Add(time.Hour)); ok {
			taken++
		}
	}
	close(stop)
	wg.Wait()
	require.Greater(t, taken, 0)
}

func TestDecoderDropsShortNoiseFrames(t *testing.T) {
	l := NewLine(SourceKeypad)
	d := NewDecoder(l)

	end := clockEdges(l, 0x15, 5, t0)
	_, ok := d.Poll(end.Add(40 * time.Millisecond))
	require.False(t, ok)
}

func TestDecoderSuppressesDuplicateWithinWindow(t *testing.T) {
	l := NewLine(SourceReader)
	d := NewDecoder(l)

	end := clockEdges(l, 0xABCDEF, 24, t0)
	f, ok := d.Poll(end.Add(40 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, uint64(0xABCDEF), f.Bits)

	// Same frame again, completed 100ms later: bounce, suppressed.
	end2 := clockEdges(l, 0xABCDEF, 24, end.Add(60*time.Millisecond))
	_, ok = d.Poll(end2.Add(40 * time.Millisecond))
	require.False(t, ok)
}

func TestDecoderAcceptsDuplicateAfterWindow(t *testing.T) {
	l := NewLine(SourceReader)
	d := NewDecoder(l)

	end := clockEdges(l, 0xABCDEF, 24, t0)
	_, ok := d.Poll(end.Add(40 * time.Millisecond))
	require.True(t, ok)

	end2 := clockEdges(l, 0xABCDEF, 24, end.Add(400*time.Millisecond))
	f, ok := d.Poll(end2.Add(40 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, uint64(0xABCDEF), f.Bits)
}

func TestDecoderPassesDifferentFrameImmediately(t *testing.T) {
	l := NewLine(SourceReader)
	d := NewDecoder(l)

	end := clockEdges(l, 0xABCDEF, 24, t0)
	_, ok := d.Poll(end.Add(40 * time.Millisecond))
	require.True(t, ok)

	end2 := clockEdges(l, 0x123456, 24, end.Add(60*time.Millisecond))
	f, ok := d.Poll(end2.Add(40 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, uint64(0x123456), f.Bits)
}

func TestDecoderKeepsSourcesIndependent(t *testing.T) {
	keypad := NewLine(SourceKeypad)
	reader := NewLine(SourceReader)
	d := NewDecoder(keypad, reader)

	// Interleave edges from both buses.
	now := t0
	for i := 7; i >= 0; i-- {
		keypad.Edge(uint8(0xE1>>uint(i))&1, now)
		reader.Edge(uint8(uint64(0xABCDEF)>>uint(i*3))&1, now.Add(500*time.Microsecond))
		now = now.Add(time.Millisecond)
	}
	// Finish the reader frame.
	for i := 15; i >= 0; i-- {
		reader.Edge(uint8(uint64(0xABCDEF)>>uint(i))&1, now)
		now = now.Add(time.Millisecond)
	}

	var got []Frame
	deadline := now.Add(40 * time.Millisecond)
	for {
		f, ok := d.Poll(deadline)
		if !ok {
			break
		}
		got = append(got, f)
	}

	require.Len(t, got, 2)
	require.Equal(t, SourceKeypad, got[0].Source)
	require.Equal(t, uint64(0xE1), got[0].Bits)
	require.Equal(t, 8, got[0].Count)
	require.Equal(t, SourceReader, got[1].Source)
	require.Equal(t, 24, got[1].Count)
}
