package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/orion/internal/message"
)

func newTestListener(t *testing.T) (*net.TCPListener, *net.TCPAddr) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener, listener.Addr().(*net.TCPAddr)
}

func newTestConnection(t *testing.T, addr *net.TCPAddr) *net.TCPConn {
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("error initializing test connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func acceptConn(t *testing.T, listener *net.TCPListener) *Conn {
	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("error accepting connection: %s", err)
	}
	c := New(serverConn)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConn_IDsAreUnique(t *testing.T) {
	listener, addr := newTestListener(t)
	newTestConnection(t, addr)
	first := acceptConn(t, listener)
	newTestConnection(t, addr)
	second := acceptConn(t, listener)

	if first.ID() == second.ID() {
		t.Errorf("expected unique socket ids, both were %d", first.ID())
	}
	if !first.Alive() {
		t.Error("expected a new connection to be alive")
	}
}

func TestConn_Send(t *testing.T) {
	listener, addr := newTestListener(t)
	peer := newTestConnection(t, addr)
	conn := acceptConn(t, listener)

	msg, err := message.From(message.ServerID, message.TurnUpdateEvent{Turn: 3})
	if err != nil {
		t.Fatalf("From() returned an unexpected error: %v", err)
	}
	if err := conn.Send(msg); err != nil {
		t.Fatalf("Send() returned an unexpected error: %s", err)
	}
	conn.Close()

	received, err := io.ReadAll(peer)
	if err != nil {
		t.Fatalf("error reading from test connection: %s", err)
	}
	expected, _ := message.Encode(msg)
	if diff := cmp.Diff(expected, received); diff != "" {
		t.Fatalf("bytes read from test connection did not match expected; diff:\n%s", diff)
	}
}

func TestConn_ReadLoop(t *testing.T) {
	listener, addr := newTestListener(t)
	peer := newTestConnection(t, addr)
	conn := acceptConn(t, listener)

	sink := make(chan Chunk, 8)
	go conn.ReadLoop(context.Background(), sink)

	if _, err := peer.Write([]byte("hello")); err != nil {
		t.Fatalf("error writing to test connection: %s", err)
	}

	var received []byte
	for len(received) < 5 {
		chunk := <-sink
		if chunk.Err != nil {
			t.Fatalf("unexpected read error: %v", chunk.Err)
		}
		if chunk.Socket != conn.ID() {
			t.Errorf("expected chunk from socket %d, got %d", conn.ID(), chunk.Socket)
		}
		received = append(received, chunk.Data...)
	}
	if string(received) != "hello" {
		t.Errorf("expected hello, got %q", received)
	}

	peer.Close()
	select {
	case chunk := <-sink:
		if !errors.Is(chunk.Err, io.EOF) {
			t.Errorf("expected EOF after the peer closed, got %v", chunk.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the final chunk")
	}
	if conn.Alive() {
		t.Error("expected the connection to be dead after the peer closed")
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	listener, addr := newTestListener(t)
	newTestConnection(t, addr)
	conn := acceptConn(t, listener)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() returned an unexpected error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() returned an unexpected error: %v", err)
	}
	if conn.Alive() {
		t.Error("expected a closed connection to not be alive")
	}
}

func TestDial(t *testing.T) {
	listener, addr := newTestListener(t)
	go func() {
		if c, err := listener.Accept(); err == nil {
			c.Close()
		}
	}()

	conn, err := Dial(context.Background(), addr.String(), time.Second)
	if err != nil {
		t.Fatalf("Dial() returned an unexpected error: %v", err)
	}
	conn.Close()
}

func TestDial_Timeout(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	listener, addr := newTestListener(t)
	listener.Close()

	start := time.Now()
	_, err := Dial(context.Background(), addr.String(), 200*time.Millisecond)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Dial() took %v to give up", elapsed)
	}
}
