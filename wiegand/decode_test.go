package wiegand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode26BitDropsParity(t *testing.T) {
	// 26-bit frame: parity, 24 payload bits, parity.
	raw := uint64(1)<<25 | uint64(0x12A4B6)<<1 | 1
	c := Decode(Frame{Source: SourceReader, Bits: raw, Count: 26})

	require.Equal(t, KindCard, c.Kind)
	require.Equal(t, uint32(0x12A4B6), c.Card.ID)
	require.Equal(t, uint8(0x12), c.Card.Facility)
	require.Equal(t, uint16(0xA4B6), c.Card.Serial)
}

func TestDecode24BitUsesWholeValue(t *testing.T) {
	c := Decode(Frame{Source: SourceReader, Bits: 0xFEDCBA, Count: 24})

	require.Equal(t, KindCard, c.Kind)
	require.Equal(t, uint32(0xFEDCBA), c.Card.ID)
	require.Equal(t, uint8(0xFE), c.Card.Facility)
	require.Equal(t, uint16(0xDCBA), c.Card.Serial)
}

// The 34-bit path keeps only the low 24 bits of the 32-bit payload after
// stripping the trailing parity. The payload's high byte is discarded; this
// pins the deployed behavior until the reader format is clarified.
func TestDecode34BitTruncatesHighByte(t *testing.T) {
	payload := uint64(0xAB123456)
	raw := uint64(1)<<33 | payload<<1 | 0
	c := Decode(Frame{Source: SourceReader, Bits: raw, Count: 34})

	require.Equal(t, KindCard, c.Kind)
	require.Equal(t, uint32(0x123456), c.Card.ID)
}

func TestDecodeOddLongLengthTakesLow24AfterShift(t *testing.T) {
	// 30 bits: discard the 6 excess high bits.
	raw := uint64(0x3F)<<24 | 0x654321
	c := Decode(Frame{Source: SourceReader, Bits: raw, Count: 30})

	require.Equal(t, KindCard, c.Kind)
	require.Equal(t, uint32(0x3F6543), c.Card.ID)
}

func TestDecodeShortReaderFrameStillCard(t *testing.T) {
	// Unusual length from the card-reader bus is treated as a card.
	c := Decode(Frame{Source: SourceReader, Bits: 0x1FF, Count: 9})

	require.Equal(t, KindCard, c.Kind)
	require.Equal(t, uint32(0x1FF), c.Card.ID)
}

func TestDecodeKeypadDigits(t *testing.T) {
	cases := map[uint64]byte{
		0xF0: '0', 0xE1: '1', 0xD2: '2', 0xC3: '3', 0xB4: '4',
		0xA5: '5', 0x96: '6', 0x87: '7', 0x78: '8', 0x69: '9',
	}
	for code, want := range cases {
		// The same code at 8 and 9 bits resolves identically.
		for _, count := range []int{8, 9} {
			c := Decode(Frame{Source: SourceKeypad, Bits: code, Count: count})
			require.Equal(t, KindDigit, c.Kind, "code %#x count %d", code, count)
			require.Equal(t, want, c.Key, "code %#x count %d", code, count)
		}
	}
}

func TestDecodeKeypadCommands(t *testing.T) {
	enter := Decode(Frame{Source: SourceKeypad, Bits: 0x4B, Count: 8})
	require.Equal(t, KindCommand, enter.Kind)
	require.Equal(t, CmdEnter, enter.Command)

	clear := Decode(Frame{Source: SourceKeypad, Bits: 0x5A, Count: 8})
	require.Equal(t, KindCommand, clear.Kind)
	require.Equal(t, CmdClear, clear.Command)
}

func TestDecodeLongKeypadFrameTriesShiftedWindow(t *testing.T) {
	// 12-bit frame whose top 8 bits carry the code: low-8 and low-9
	// lookups miss, the shifted window resolves it.
	raw := uint64(0xA5)<<4 | 0xF
	c := Decode(Frame{Source: SourceKeypad, Bits: raw, Count: 12})

	require.Equal(t, KindDigit, c.Kind)
	require.Equal(t, byte('5'), c.Key)
}

func TestDecodeUnresolvedKeypadFrameIsUnknown(t *testing.T) {
	c := Decode(Frame{Source: SourceKeypad, Bits: 0x77, Count: 8})

	require.Equal(t, KindUnknown, c.Kind)
	require.Equal(t, uint64(0x77), c.Bits)
	require.Equal(t, 8, c.Count)
}
