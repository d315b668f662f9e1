// Package wire defines the on-the-wire message layout. A published message
// is two concatenated CDR streams followed by the raw payload:
//
//	seconds (u64 BE) ‖ microseconds (u32 BE)   — timestamp prefix, added by the node
//	gid (16 bytes) ‖ sequence (u64 BE)          — publisher frame
//	payload                                     — opaque, verbatim
//
// The timestamp prefix and the publisher frame are encoded as separate
// streams, so the sequence field sits at absolute offset 28 with no padding.
package wire

import (
	"fmt"
	"time"

	"github.com/petervdpas/rmwp2p/internal/cdr"
)

const (
	// SerializationFormat names the payload encoding carried in frames.
	SerializationFormat = "cdr"

	// GIDSize is the length of a publisher global identifier in bytes.
	GIDSize = 16

	// FrameHeaderSize is the GID plus the sequence number.
	FrameHeaderSize = GIDSize + 8

	// TimestampSize is the node-side prefix: u64 seconds + u32 microseconds.
	TimestampSize = 12

	// EnvelopeHeaderSize is the full header preceding the payload.
	EnvelopeHeaderSize = TimestampSize + FrameHeaderSize
)

// Envelope is a decoded wire message.
type Envelope struct {
	Seconds      uint64
	Microseconds uint32
	GID          [GIDSize]byte
	Sequence     uint64
	Payload      []byte
}

// EncodeFrame builds a publisher frame: GID, sequence, payload.
func EncodeFrame(gid [GIDSize]byte, seq uint64, payload []byte) []byte {
	w := cdr.NewWriter()
	for _, b := range gid {
		w.WriteUint8(b)
	}
	w.WriteUint64(seq)
	return append(w.Bytes(), payload...)
}

// PrependTimestamp puts the capture-time prefix in front of a publisher frame.
func PrependTimestamp(t time.Time, frame []byte) []byte {
	w := cdr.NewWriter()
	w.WriteUint64(uint64(t.Unix()))
	w.WriteUint32(uint32(t.Nanosecond() / 1000))
	return append(w.Bytes(), frame...)
}

// DecodeEnvelope parses a full wire message. The payload is copied.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if len(b) < EnvelopeHeaderSize {
		return env, fmt.Errorf("envelope of %d bytes: %w", len(b), cdr.ErrShortBuffer)
	}

	ts := cdr.NewReader(b[:TimestampSize])
	sec, err := ts.ReadUint64()
	if err != nil {
		return env, err
	}
	usec, err := ts.ReadUint32()
	if err != nil {
		return env, err
	}

	// The frame is its own stream; a reader over the whole buffer would
	// insert alignment padding before the sequence field.
	fr := cdr.NewReader(b[TimestampSize:EnvelopeHeaderSize])
	for i := range env.GID {
		env.GID[i], err = fr.ReadUint8()
		if err != nil {
			return env, err
		}
	}
	seq, err := fr.ReadUint64()
	if err != nil {
		return env, err
	}

	env.Seconds = sec
	env.Microseconds = usec
	env.Sequence = seq
	env.Payload = make([]byte, len(b)-EnvelopeHeaderSize)
	copy(env.Payload, b[EnvelopeHeaderSize:])
	return env, nil
}
