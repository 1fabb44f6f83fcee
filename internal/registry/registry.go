// Package registry tracks every open connection and the player identity, if
// any, bound to it.
package registry

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/transport"
)

// Connection is the part of a transport connection the registry depends on.
type Connection interface {
	ID() transport.SocketID
	Addr() string
	Send(message.Message) error
	Close() error
}

// SessionData is the identity information supplied when a handshake completes.
type SessionData struct {
	Name       string
	EmpireName string
	Host       bool
}

// Session is a connection bound to a player.
type Session struct {
	PlayerID message.PlayerID
	SessionData
	Conn Connection
}

// Registry holds pending connections (identity unknown) and established
// sessions. A socket is in at most one of the two sets and a player id is
// bound to at most one socket. Registry is not safe for concurrent use; the
// server loop owns it.
type Registry struct {
	Logger *logrus.Logger

	pending  map[transport.SocketID]Connection
	sessions map[transport.SocketID]*Session
	players  map[message.PlayerID]*Session
}

func New(logger *logrus.Logger) *Registry {
	return &Registry{
		Logger:   logger,
		pending:  make(map[transport.SocketID]Connection),
		sessions: make(map[transport.SocketID]*Session),
		players:  make(map[message.PlayerID]*Session),
	}
}

// AcceptPending records a newly accepted connection whose identity is not yet known.
func (r *Registry) AcceptPending(conn Connection) {
	r.pending[conn.ID()] = conn
	r.updateGauges()
	r.Logger.Debugf("accepted connection %d from %s", conn.ID(), conn.Addr())
}

// EstablishPlayer binds a pending socket to a player id. It returns false if
// the socket is not pending. A live session already bound to the same player
// id is closed and removed first.
func (r *Registry) EstablishPlayer(socket transport.SocketID, id message.PlayerID, data SessionData) bool {
	conn, ok := r.pending[socket]
	if !ok {
		return false
	}

	if old, ok := r.players[id]; ok {
		r.Logger.Infof("player %d reconnected from %s, dropping connection %d", id, conn.Addr(), old.Conn.ID())
		r.remove(old)
	}

	delete(r.pending, socket)
	s := &Session{PlayerID: id, SessionData: data, Conn: conn}
	r.sessions[socket] = s
	r.players[id] = s
	r.updateGauges()
	r.Logger.Infof("established player %d (%s) on connection %d", id, data.Name, socket)
	return true
}

// DumpConnection closes and forgets a socket, pending or established.
// It returns false if the socket is unknown.
func (r *Registry) DumpConnection(socket transport.SocketID) bool {
	if conn, ok := r.pending[socket]; ok {
		delete(r.pending, socket)
		r.close(conn)
		r.updateGauges()
		return true
	}
	if s, ok := r.sessions[socket]; ok {
		r.remove(s)
		r.updateGauges()
		return true
	}
	return false
}

// DumpPlayer closes and forgets the session bound to a player id.
func (r *Registry) DumpPlayer(id message.PlayerID) bool {
	s, ok := r.players[id]
	if !ok {
		return false
	}
	r.remove(s)
	r.updateGauges()
	return true
}

// DumpAll closes every connection.
func (r *Registry) DumpAll() {
	for _, conn := range r.pending {
		r.close(conn)
	}
	for _, s := range r.sessions {
		r.close(s.Conn)
	}
	r.pending = make(map[transport.SocketID]Connection)
	r.sessions = make(map[transport.SocketID]*Session)
	r.players = make(map[message.PlayerID]*Session)
	r.updateGauges()
}

// Session returns the session bound to a socket, or nil for pending or unknown sockets.
func (r *Registry) Session(socket transport.SocketID) *Session {
	return r.sessions[socket]
}

// Player returns the session of a player, or nil.
func (r *Registry) Player(id message.PlayerID) *Session {
	return r.players[id]
}

// Pending reports whether the socket is accepted but not yet bound to a player.
func (r *Registry) Pending(socket transport.SocketID) bool {
	_, ok := r.pending[socket]
	return ok
}

// Known reports whether the socket is pending or established.
func (r *Registry) Known(socket transport.SocketID) bool {
	return r.Pending(socket) || r.sessions[socket] != nil
}

// Players returns all established sessions ordered by player id.
func (r *Registry) Players() []*Session {
	sessions := make([]*Session, 0, len(r.players))
	for _, s := range r.players {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].PlayerID < sessions[j].PlayerID })
	return sessions
}

func (r *Registry) PendingCount() int     { return len(r.pending) }
func (r *Registry) EstablishedCount() int { return len(r.sessions) }

// Send delivers a message to one player. Unknown players are ignored.
func (r *Registry) Send(id message.PlayerID, m message.Message) {
	s, ok := r.players[id]
	if !ok {
		return
	}
	if err := s.Conn.Send(m); err != nil {
		r.Logger.Warnf("error sending %s to player %d: %s", m.Type, id, err)
	}
}

// Broadcast delivers a message to every established player except the listed ones.
func (r *Registry) Broadcast(m message.Message, except ...message.PlayerID) {
outer:
	for _, s := range r.Players() {
		for _, id := range except {
			if s.PlayerID == id {
				continue outer
			}
		}
		if err := s.Conn.Send(m); err != nil {
			r.Logger.Warnf("error sending %s to player %d: %s", m.Type, s.PlayerID, err)
		}
	}
}

func (r *Registry) remove(s *Session) {
	delete(r.sessions, s.Conn.ID())
	if r.players[s.PlayerID] == s {
		delete(r.players, s.PlayerID)
	}
	r.close(s.Conn)
}

func (r *Registry) close(conn Connection) {
	if err := conn.Close(); err != nil {
		r.Logger.Debugf("error closing connection %d: %s", conn.ID(), err)
	}
}

func (r *Registry) updateGauges() {
	core.ConnectionsPending.Set(float64(len(r.pending)))
	core.ConnectionsEstablished.Set(float64(len(r.sessions)))
}
