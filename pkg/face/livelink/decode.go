package livelink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedPacket is returned by [Decode] for packets that do not follow
// the LiveLink Face layout.
var ErrMalformedPacket = errors.New("livelink: malformed packet")

// Packet is the decoded form of one LiveLink Face packet.
type Packet struct {
	Version     uint8
	DeviceID    string
	Subject     string
	FrameNumber uint32
	SubFrame    float32
	FPS         uint32
	Denominator uint32
	Channels    []float32
}

// Decode parses a packet produced by [Encoder.Encode] or by any other LiveLink
// Face sender.
func Decode(b []byte) (Packet, error) {
	r := bytes.NewReader(b)
	var p Packet

	if err := binary.Read(r, binary.BigEndian, &p.Version); err != nil {
		return Packet{}, malformed("version", err)
	}
	if p.Version != PacketVersion {
		return Packet{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPacket, p.Version)
	}

	var err error
	if p.DeviceID, err = readString(r); err != nil {
		return Packet{}, malformed("device id", err)
	}
	if p.Subject, err = readString(r); err != nil {
		return Packet{}, malformed("subject", err)
	}

	header := []any{&p.FrameNumber, &p.SubFrame, &p.FPS, &p.Denominator}
	for _, field := range header {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return Packet{}, malformed("frame time", err)
		}
	}

	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Packet{}, malformed("channel count", err)
	}
	p.Channels = make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, p.Channels); err != nil {
		return Packet{}, malformed("channels", err)
	}
	if r.Len() != 0 {
		return Packet{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPacket, r.Len())
	}
	return p, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.Len() {
		return "", fmt.Errorf("length %d exceeds remaining %d bytes", n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedPacket, field, err)
}
