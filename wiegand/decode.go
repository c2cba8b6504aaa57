package wiegand

// Kind classifies an interpreted frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindCard
	KindDigit
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindCard:
		return "card"
	case KindDigit:
		return "digit"
	case KindCommand:
		return "command"
	}
	return "unknown"
}

// Command is a keypad control key.
type Command int

const (
	CmdEnter Command = iota // '#'
	CmdClear                // '*'
)

// Card holds the fields extracted from a card frame. Facility and Serial
// are the conventional subfields of the 24-bit id.
type Card struct {
	ID       uint32 // 24-bit
	Facility uint8  // bits 16..23 of ID
	Serial   uint16 // bits 0..15 of ID
}

// Credential is the interpreted result of a frame. Kind selects which of
// the value fields is meaningful; Bits/Count always carry the raw frame
// for diagnostics.
type Credential struct {
	Kind    Kind
	Source  Source
	Card    Card    // valid when KindCard
	Key     byte    // '0'..'9' when KindDigit
	Command Command // valid when KindCommand
	Bits    uint64
	Count   int
}

// keyCodes maps normalized keypad pulse codes to key characters. The keypad
// emits each key as an 8-bit burst: low nibble is the key value, high nibble
// its complement.
var keyCodes = map[uint16]byte{
	0xF0: '0',
	0xE1: '1',
	0xD2: '2',
	0xC3: '3',
	0xB4: '4',
	0xA5: '5',
	0x96: '6',
	0x87: '7',
	0x78: '8',
	0x69: '9',
	0x5A: '*',
	0x4B: '#',
}

// Decode classifies a drained frame. Long frames, and anything from the
// card-reader bus regardless of length, are cards; short keypad frames go
// through the pulse-code table. Frames that resolve to neither are Unknown.
func Decode(f Frame) Credential {
	if f.Count >= 24 || f.Source == SourceReader {
		return decodeCard(f)
	}

	if key, ok := lookupKey(f.Bits, f.Count); ok {
		c := Credential{Source: f.Source, Key: key, Bits: f.Bits, Count: f.Count}
		switch key {
		case '#':
			c.Kind = KindCommand
			c.Command = CmdEnter
		case '*':
			c.Kind = KindCommand
			c.Command = CmdClear
		default:
			c.Kind = KindDigit
		}
		return c
	}

	return Credential{Kind: KindUnknown, Source: f.Source, Bits: f.Bits, Count: f.Count}
}

// decodeCard extracts the 24-bit id by frame length.
func decodeCard(f Frame) Credential {
	var id uint32
	switch f.Count {
	case 26:
		// Standard 26-bit: drop leading and trailing parity.
		id = uint32((f.Bits >> 1) & 0xFFFFFF)
	case 24:
		id = uint32(f.Bits & 0xFFFFFF)
	case 34:
		// Drop the trailing parity, keep the low 24 of the 32-bit payload.
		// The top payload byte is discarded; reproduced as deployed pending
		// clarification of the 34-bit reader format.
		id = uint32(((f.Bits >> 1) & 0xFFFFFFFF) & 0xFFFFFF)
	default:
		if f.Count > 24 {
			id = uint32((f.Bits >> uint(f.Count-24)) & 0xFFFFFF)
		} else {
			id = uint32(f.Bits & 0xFFFFFF)
		}
	}

	return Credential{
		Kind:   KindCard,
		Source: f.Source,
		Card: Card{
			ID:       id,
			Facility: uint8(id >> 16),
			Serial:   uint16(id),
		},
		Bits:  f.Bits,
		Count: f.Count,
	}
}

// lookupKey normalizes a short frame against the pulse-code table. Frames up
// to 9 bits are looked up on their low 9 bits directly; longer frames try
// the low 8, the low 9, then the top 8 bits.
func lookupKey(bits uint64, count int) (byte, bool) {
	if count <= 9 {
		k, ok := keyCodes[uint16(bits&0x1FF)]
		return k, ok
	}
	if k, ok := keyCodes[uint16(bits&0xFF)]; ok {
		return k, true
	}
	if k, ok := keyCodes[uint16(bits&0x1FF)]; ok {
		return k, true
	}
	if count > 8 {
		if k, ok := keyCodes[uint16((bits>>uint(count-8))&0xFF)]; ok {
			return k, true
		}
	}
	return 0, false
}
