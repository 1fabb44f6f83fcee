// Package dispatch turns the byte streams of registered connections into
// messages and routes each one to the handler matching the sender's state.
package dispatch

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/core/debug"
	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/registry"
	"github.com/dcrodman/orion/internal/transport"
)

// PlayerHandler receives messages from sockets bound to a player.
type PlayerHandler interface {
	HandlePlayerMessage(id message.PlayerID, m message.Message)
}

// NonPlayerHandler receives messages from sockets that have not completed
// the handshake.
type NonPlayerHandler interface {
	HandleNonPlayerMessage(socket transport.SocketID, m message.Message)
}

// Sessions is the read-only view of the registry used for routing.
type Sessions interface {
	Known(socket transport.SocketID) bool
	Session(socket transport.SocketID) *registry.Session
}

const (
	routePlayer    = "player"
	routeNonPlayer = "non_player"
)

// Dispatcher splits incoming bytes into frames and routes them. It never
// modifies the registry itself; handlers may, and routing is looked up again
// before every frame so a handshake completed by one frame applies to the next.
type Dispatcher struct {
	Logger     *logrus.Logger
	Sessions   Sessions
	Players    PlayerHandler
	NonPlayers NonPlayerHandler
	Dumper     *debug.MessageLogger

	framers map[transport.SocketID]*message.Framer
}

func New(logger *logrus.Logger, sessions Sessions, players PlayerHandler, nonPlayers NonPlayerHandler) *Dispatcher {
	return &Dispatcher{
		Logger:     logger,
		Sessions:   sessions,
		Players:    players,
		NonPlayers: nonPlayers,
		framers:    make(map[transport.SocketID]*message.Framer),
	}
}

// Receive appends data to the socket's buffer and dispatches every complete
// frame in order. Incomplete frames stay buffered for the next call.
func (d *Dispatcher) Receive(socket transport.SocketID, data []byte) {
	if !d.Sessions.Known(socket) {
		d.Logger.Debugf("dropping %d bytes from unregistered socket %d", len(data), socket)
		core.FramesDiscarded.WithLabelValues("unknown_socket").Inc()
		return
	}

	framer, ok := d.framers[socket]
	if !ok {
		framer = &message.Framer{}
		d.framers[socket] = framer
	}
	_, _ = framer.Write(data)

	for {
		m, ok, err := framer.Next()
		if err != nil {
			var malformed *message.MalformedError
			if errors.As(err, &malformed) {
				d.Logger.Warnf("socket %d: %s", socket, malformed)
			}
			core.FramesDiscarded.WithLabelValues("malformed").Inc()
			continue
		}
		if !ok {
			return
		}

		// A handler may have dumped the socket while handling the previous frame.
		if !d.Sessions.Known(socket) {
			d.Forget(socket)
			return
		}
		d.route(socket, m)
	}
}

func (d *Dispatcher) route(socket transport.SocketID, m message.Message) {
	d.Dumper.Dump("recv", m)

	if s := d.Sessions.Session(socket); s != nil {
		if m.Sender != s.PlayerID {
			d.Logger.Warnf("socket %d: %s claims sender %d but belongs to player %d; discarding", socket, m.Type, m.Sender, s.PlayerID)
			core.FramesDiscarded.WithLabelValues("identity").Inc()
			return
		}
		core.FramesDispatched.WithLabelValues(routePlayer).Inc()
		d.Players.HandlePlayerMessage(s.PlayerID, m)
		return
	}

	if m.Sender != message.Unassigned {
		d.Logger.Warnf("socket %d: %s claims sender %d before the handshake; discarding", socket, m.Type, m.Sender)
		core.FramesDiscarded.WithLabelValues("identity").Inc()
		return
	}
	core.FramesDispatched.WithLabelValues(routeNonPlayer).Inc()
	d.NonPlayers.HandleNonPlayerMessage(socket, m)
}

// Forget releases the receive buffer of a socket.
func (d *Dispatcher) Forget(socket transport.SocketID) {
	delete(d.framers, socket)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Dispatcher) Buffered(socket transport.SocketID) int {
	if f, ok := d.framers[socket]; ok {
		return f.Buffered()
	}
	return 0
}
