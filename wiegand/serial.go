package wiegand

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Serial implements AltSource for serial-framed RFID readers.
// Protocol: [0x02][0x09][data...][checksum][0x03], 9 bytes per read.
type Serial struct {
	port   *serial.Port
	device string
}

// NewSerial opens a serial reader on the given device.
func NewSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 9600
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &Serial{port: port, device: device}, nil
}

// Read implements AltSource.Read.
func (s *Serial) Read(ctx context.Context) (Credential, error) {
	for {
		select {
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		default:
		}

		id, ok, err := s.readFrame()
		if err != nil {
			return Credential{}, err
		}
		if ok {
			id &= 0xFFFFFF
			return Credential{
				Kind:   KindCard,
				Source: SourceReader,
				Card: Card{
					ID:       id,
					Facility: uint8(id >> 16),
					Serial:   uint16(id),
				},
				Bits:  uint64(id),
				Count: 24,
			}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Serial) readFrame() (uint32, bool, error) {
	buff := make([]byte, 9)

	n, err := s.port.Read(buff)
	if err != nil {
		return 0, false, nil // timeout, try again
	}
	if n != 9 {
		return 0, false, nil // partial read
	}

	if !bytes.Equal(buff[0:2], []byte{0x02, 0x09}) {
		return 0, false, nil
	}
	if buff[8] != 0x03 {
		return 0, false, nil
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}
	if xor != buff[7] {
		return 0, false, nil
	}

	id := uint32(data[3])<<16 | uint32(data[4])<<8 | uint32(data[5])
	return id, true, nil
}

// Close implements AltSource.Close.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
