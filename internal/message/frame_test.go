package message

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustFrame(t *testing.T, sender PlayerID, ev Event) []byte {
	t.Helper()
	m, err := From(sender, ev)
	if err != nil {
		t.Fatalf("From() returned an unexpected error: %v", err)
	}
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	return data
}

// drain pulls every available message out of the framer, counting discarded units.
func drain(t *testing.T, f *Framer) ([]Message, int) {
	t.Helper()
	var msgs []Message
	malformed := 0
	for i := 0; i < 1000; i++ {
		m, ok, err := f.Next()
		var merr *MalformedError
		switch {
		case errors.As(err, &merr):
			malformed++
		case err != nil:
			t.Fatalf("Next() returned an unexpected error: %v", err)
		case ok:
			msgs = append(msgs, m)
		default:
			return msgs, malformed
		}
	}
	t.Fatal("framer did not settle")
	return nil, 0
}

func TestEncode_Header(t *testing.T) {
	data, err := Encode(Message{Type: TurnUpdate, Sender: ServerID, Payload: []byte{0xAA, 0xBB}})
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}

	want := []byte{
		0x49, 0x52, 0x4F, 0x4E,
		0x12, 0x00, 0x00, 0x00,
		byte(TurnUpdate), 0x00,
		0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
		0xAA, 0xBB,
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("Encode() produced the wrong frame; diff:\n%s", diff)
	}
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(Message{Type: SaveGame, Payload: make([]byte, MaxFrameSize)})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got: %v", err)
	}
}

func TestFramer_PartialReads(t *testing.T) {
	frame := mustFrame(t, ServerID, TurnUpdateEvent{Turn: 7})

	var f Framer
	for i, b := range frame {
		f.Write([]byte{b})
		m, ok, err := f.Next()
		if err != nil {
			t.Fatalf("Next() returned an unexpected error after %d bytes: %v", i+1, err)
		}
		if i < len(frame)-1 {
			if ok {
				t.Fatalf("message produced after only %d of %d bytes", i+1, len(frame))
			}
			continue
		}
		if !ok {
			t.Fatal("expected a message once the whole frame arrived")
		}
		if m.Type != TurnUpdate || m.Sender != ServerID {
			t.Errorf("unexpected message: %v", m)
		}
	}
	if f.Buffered() != 0 {
		t.Errorf("expected an empty buffer, got %d bytes", f.Buffered())
	}
}

func TestFramer_MultipleFramesInOneRead(t *testing.T) {
	var stream []byte
	stream = append(stream, mustFrame(t, ServerID, TurnProgressEvent{Phase: "orders"})...)
	stream = append(stream, mustFrame(t, ServerID, CombatStartEvent{Location: "Sol"})...)
	stream = append(stream, mustFrame(t, ServerID, CombatEndEvent{})...)

	var f Framer
	f.Write(stream)
	msgs, malformed := drain(t, &f)

	if malformed != 0 {
		t.Errorf("expected no malformed units, got %d", malformed)
	}
	var types []Type
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	if diff := cmp.Diff([]Type{TurnProgress, CombatStart, CombatEnd}, types); diff != "" {
		t.Errorf("frames were not produced in order; diff:\n%s", diff)
	}
}

func TestFramer_RecoversFromGarbage(t *testing.T) {
	tests := []struct {
		name    string
		garbage []byte
	}{
		{name: "short noise", garbage: []byte{0x01}},
		{name: "noise longer than a header", garbage: []byte("this is definitely not a frame")},
		{name: "partial magic", garbage: []byte{0x49, 0x52, 0x00}},
		{
			name: "bad size",
			garbage: []byte{
				0x49, 0x52, 0x4F, 0x4E, 0x02, 0x00, 0x00, 0x00,
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stream []byte
			stream = append(stream, mustFrame(t, ServerID, TurnUpdateEvent{Turn: 1})...)
			stream = append(stream, tt.garbage...)
			stream = append(stream, mustFrame(t, ServerID, TurnUpdateEvent{Turn: 2})...)

			var f Framer
			f.Write(stream)
			msgs, malformed := drain(t, &f)

			if malformed == 0 {
				t.Error("expected the garbage to be reported as malformed")
			}
			if len(msgs) != 2 {
				t.Fatalf("expected both well formed frames, got %d", len(msgs))
			}
			ev, err := Decode(msgs[1])
			if err != nil {
				t.Fatalf("Decode() returned an unexpected error: %v", err)
			}
			if diff := cmp.Diff(TurnUpdateEvent{Turn: 2}, ev); diff != "" {
				t.Errorf("second frame was corrupted; diff:\n%s", diff)
			}
		})
	}
}

func TestFramer_UnknownTypeDiscardsOnlyThatFrame(t *testing.T) {
	unknown, err := Encode(Message{Type: Type(999), Payload: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}

	var f Framer
	f.Write(unknown)
	f.Write(mustFrame(t, ServerID, EndGameEvent{Reason: "done"}))

	_, ok, err := f.Next()
	var merr *MalformedError
	if ok || !errors.As(err, &merr) {
		t.Fatalf("expected a malformed error for the unknown type, got ok=%v err=%v", ok, err)
	}
	if merr.Discarded != len(unknown) {
		t.Errorf("expected exactly %d bytes discarded, got %d", len(unknown), merr.Discarded)
	}

	m, ok, err := f.Next()
	if err != nil || !ok {
		t.Fatalf("expected the following frame, got ok=%v err=%v", ok, err)
	}
	if m.Type != EndGame {
		t.Errorf("expected END_GAME, got %s", m.Type)
	}
}
