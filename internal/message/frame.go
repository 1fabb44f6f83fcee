package message

import (
	"bytes"
	"errors"
	"fmt"

	corebytes "github.com/dcrodman/orion/internal/core/bytes"
)

const (
	// Magic starts every frame ("IRON" in little endian) and is what the Framer
	// scans for when it needs to resynchronize after corrupt input.
	Magic uint32 = 0x4E4F5249
	// HeaderSize is the length of the fixed frame header.
	HeaderSize = 16
	// MaxFrameSize bounds the declared size of a single frame.
	MaxFrameSize = 1 << 20
)

var magicBytes = []byte{0x49, 0x52, 0x4F, 0x4E}

// ErrFrameTooLarge is returned by Encode for payloads that cannot fit in a frame.
var ErrFrameTooLarge = errors.New("message: frame exceeds maximum size")

// Header precedes every payload on the wire.
type header struct {
	Magic  uint32
	Size   uint32
	Type   uint16
	Flags  uint16
	Sender int32
}

// Encode converts a Message into a complete frame.
func Encode(m Message) ([]byte, error) {
	size := HeaderSize + len(m.Payload)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	h := header{
		Magic:  Magic,
		Size:   uint32(size),
		Type:   uint16(m.Type),
		Sender: int32(m.Sender),
	}
	data, _ := corebytes.BytesFromStruct(&h)
	return append(data, m.Payload...), nil
}

// MalformedError describes a unit of input that was discarded because it
// could not be interpreted as a frame.
type MalformedError struct {
	Reason    string
	Type      Type
	Discarded int
}

func (e *MalformedError) Error() string {
	if e.Type != Undefined {
		return fmt.Sprintf("malformed frame (%s, type %d): discarded %d bytes", e.Reason, uint16(e.Type), e.Discarded)
	}
	return fmt.Sprintf("malformed frame (%s): discarded %d bytes", e.Reason, e.Discarded)
}

// Framer accumulates the bytes of one stream and splits them into frames.
// It is not safe for concurrent use.
type Framer struct {
	buf []byte
}

// Write appends data received from the stream. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Next returns the next complete message. ok is false with a nil error when
// more input is needed. A *MalformedError means one unit was discarded and
// Next may be called again to continue with the remaining input.
func (f *Framer) Next() (m Message, ok bool, err error) {
	if len(f.buf) == 0 {
		return Message{}, false, nil
	}
	if !hasMagicPrefix(f.buf) {
		return Message{}, false, &MalformedError{Reason: "bad magic", Discarded: f.resync()}
	}
	if len(f.buf) < HeaderSize {
		return Message{}, false, nil
	}

	var h header
	if err := corebytes.StructFromBytes(f.buf[:HeaderSize], &h); err != nil {
		return Message{}, false, &MalformedError{Reason: err.Error(), Discarded: f.resync()}
	}
	if h.Size < HeaderSize || h.Size > MaxFrameSize {
		return Message{}, false, &MalformedError{Reason: "invalid frame size", Discarded: f.resync()}
	}
	if len(f.buf) < int(h.Size) {
		return Message{}, false, nil
	}

	t := Type(h.Type)
	if !t.Valid() {
		f.consume(int(h.Size))
		return Message{}, false, &MalformedError{Reason: "unknown message type", Type: t, Discarded: int(h.Size)}
	}

	payload := make([]byte, int(h.Size)-HeaderSize)
	copy(payload, f.buf[HeaderSize:h.Size])
	f.consume(int(h.Size))

	return Message{Type: t, Sender: PlayerID(h.Sender), Payload: payload}, true, nil
}

func (f *Framer) consume(n int) {
	f.buf = f.buf[:copy(f.buf, f.buf[n:])]
}

// resync drops input up to the next candidate magic marker, keeping a trailing
// partial marker so that a frame split across reads is not lost.
func (f *Framer) resync() int {
	if idx := bytes.Index(f.buf[1:], magicBytes); idx >= 0 {
		f.consume(idx + 1)
		return idx + 1
	}

	keep := 0
	for n := len(magicBytes) - 1; n > 0; n-- {
		if len(f.buf) > n && bytes.HasSuffix(f.buf, magicBytes[:n]) {
			keep = n
			break
		}
	}
	discarded := len(f.buf) - keep
	f.consume(discarded)
	return discarded
}

func hasMagicPrefix(b []byte) bool {
	n := len(magicBytes)
	if len(b) < n {
		n = len(b)
	}
	return bytes.Equal(b[:n], magicBytes[:n])
}
