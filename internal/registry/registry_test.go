package registry

import (
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/transport"
)

type fakeConn struct {
	id     transport.SocketID
	closed int
	sent   []message.Message
}

func (c *fakeConn) ID() transport.SocketID { return c.id }
func (c *fakeConn) Addr() string           { return "127.0.0.1:0" }
func (c *fakeConn) Close() error           { c.closed++; return nil }
func (c *fakeConn) Send(m message.Message) error {
	c.sent = append(c.sent, m)
	return nil
}

func newTestRegistry() *Registry {
	logger := logrus.New()
	logger.Out = io.Discard
	return New(logger)
}

func TestRegistry_EstablishPlayer(t *testing.T) {
	r := newTestRegistry()
	conn := &fakeConn{id: 1}
	r.AcceptPending(conn)

	if r.PendingCount() != 1 || r.EstablishedCount() != 0 {
		t.Fatalf("expected 1 pending and 0 established, got %d and %d", r.PendingCount(), r.EstablishedCount())
	}
	if !r.EstablishPlayer(1, 7, SessionData{Name: "Ann", Host: true}) {
		t.Fatal("EstablishPlayer() returned false for a pending socket")
	}
	if r.PendingCount() != 0 || r.EstablishedCount() != 1 {
		t.Fatalf("expected 0 pending and 1 established, got %d and %d", r.PendingCount(), r.EstablishedCount())
	}

	s := r.Session(1)
	if s == nil || s.PlayerID != 7 || s.Name != "Ann" || !s.Host {
		t.Fatalf("unexpected session %+v", s)
	}
	if r.Player(7) != s {
		t.Error("expected Player() to return the same session as Session()")
	}
	if r.EstablishPlayer(1, 8, SessionData{}) {
		t.Error("expected EstablishPlayer() to fail for an established socket")
	}
	if r.EstablishPlayer(99, 8, SessionData{}) {
		t.Error("expected EstablishPlayer() to fail for an unknown socket")
	}
}

func TestRegistry_EstablishPlayerSupersedes(t *testing.T) {
	r := newTestRegistry()
	old := &fakeConn{id: 1}
	replacement := &fakeConn{id: 2}
	r.AcceptPending(old)
	r.AcceptPending(replacement)
	r.EstablishPlayer(1, 5, SessionData{Name: "Ann"})

	if !r.EstablishPlayer(2, 5, SessionData{Name: "Ann"}) {
		t.Fatal("EstablishPlayer() returned false for a pending socket")
	}
	if old.closed != 1 {
		t.Errorf("expected the superseded connection to be closed once, got %d", old.closed)
	}
	if r.Session(1) != nil {
		t.Error("expected the superseded socket to be forgotten")
	}
	if r.Player(5).Conn != replacement {
		t.Error("expected the player to be bound to the new connection")
	}
	if r.EstablishedCount() != 1 {
		t.Errorf("expected one established session, got %d", r.EstablishedCount())
	}
}

func TestRegistry_DumpConnection(t *testing.T) {
	r := newTestRegistry()
	pending := &fakeConn{id: 1}
	established := &fakeConn{id: 2}
	r.AcceptPending(pending)
	r.AcceptPending(established)
	r.EstablishPlayer(2, 3, SessionData{})

	tests := []struct {
		name   string
		socket transport.SocketID
		want   bool
	}{
		{name: "pending socket", socket: 1, want: true},
		{name: "pending socket again", socket: 1, want: false},
		{name: "established socket", socket: 2, want: true},
		{name: "established socket again", socket: 2, want: false},
		{name: "unknown socket", socket: 42, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.DumpConnection(tt.socket); got != tt.want {
				t.Errorf("DumpConnection() want = %v, got = %v", tt.want, got)
			}
		})
	}

	if pending.closed != 1 || established.closed != 1 {
		t.Errorf("expected each connection to be closed once, got %d and %d", pending.closed, established.closed)
	}
	if r.Player(3) != nil {
		t.Error("expected the player to be removed with its connection")
	}
}

func TestRegistry_DumpPlayerAndAll(t *testing.T) {
	r := newTestRegistry()
	a, b, c := &fakeConn{id: 1}, &fakeConn{id: 2}, &fakeConn{id: 3}
	r.AcceptPending(a)
	r.AcceptPending(b)
	r.AcceptPending(c)
	r.EstablishPlayer(1, 10, SessionData{})
	r.EstablishPlayer(2, 20, SessionData{})

	if !r.DumpPlayer(10) || r.DumpPlayer(10) {
		t.Error("expected DumpPlayer() to succeed exactly once")
	}
	r.DumpAll()

	if r.PendingCount() != 0 || r.EstablishedCount() != 0 {
		t.Errorf("expected an empty registry, got %d pending and %d established", r.PendingCount(), r.EstablishedCount())
	}
	for _, conn := range []*fakeConn{a, b, c} {
		if conn.closed != 1 {
			t.Errorf("expected connection %d to be closed once, got %d", conn.id, conn.closed)
		}
	}
}

func TestRegistry_Broadcast(t *testing.T) {
	r := newTestRegistry()
	conns := []*fakeConn{{id: 1}, {id: 2}, {id: 3}}
	for i, conn := range conns {
		r.AcceptPending(conn)
		r.EstablishPlayer(conn.id, message.PlayerID(i+1), SessionData{})
	}
	msg := message.Message{Type: message.PlayerChat, Sender: 1}

	r.Broadcast(msg, 1)
	r.Send(1, msg)
	r.Send(42, msg)

	got := []int{len(conns[0].sent), len(conns[1].sent), len(conns[2].sent)}
	if diff := cmp.Diff([]int{1, 1, 1}, got); diff != "" {
		t.Errorf("unexpected delivery counts; diff:\n%s", diff)
	}

	var ids []message.PlayerID
	for _, s := range r.Players() {
		ids = append(ids, s.PlayerID)
	}
	if diff := cmp.Diff([]message.PlayerID{1, 2, 3}, ids); diff != "" {
		t.Errorf("Players() not ordered by id; diff:\n%s", diff)
	}
}

// Random interleavings of registry operations never leave a socket in both
// sets or a player bound to more than one socket.
func TestRegistry_RandomOperationsStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := newTestRegistry()
	nextSocket := transport.SocketID(1)

	for i := 0; i < 5000; i++ {
		switch rng.Intn(5) {
		case 0, 1:
			r.AcceptPending(&fakeConn{id: nextSocket})
			nextSocket++
		case 2:
			r.EstablishPlayer(transport.SocketID(rng.Intn(int(nextSocket))+1), message.PlayerID(rng.Intn(8)+1), SessionData{})
		case 3:
			r.DumpConnection(transport.SocketID(rng.Intn(int(nextSocket)) + 1))
		case 4:
			r.DumpPlayer(message.PlayerID(rng.Intn(8) + 1))
		}

		for socket := range r.pending {
			if _, ok := r.sessions[socket]; ok {
				t.Fatalf("socket %d is both pending and established", socket)
			}
		}
		if len(r.players) != len(r.sessions) {
			t.Fatalf("%d players bound to %d sessions", len(r.players), len(r.sessions))
		}
		for id, s := range r.players {
			if s.PlayerID != id || r.sessions[s.Conn.ID()] != s {
				t.Fatalf("player %d is not bound consistently", id)
			}
		}
	}
}
