// Package server is the authoritative side of a match. It owns the registry
// of connected players and answers every message the clients send.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/core/debug"
	"github.com/dcrodman/orion/internal/dispatch"
	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/registry"
	"github.com/dcrodman/orion/internal/transport"
)

const chunkBacklog = 256

// Server runs one match at a time. Every method except Run and Addr must be
// called from the goroutine executing Run.
type Server struct {
	Config   *core.Config
	Logger   *logrus.Logger
	DB       *gorm.DB
	Resolver Resolver

	players    *PlayerCache
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	dumper     *debug.MessageLogger
	frontend   *frontend

	connections chan *transport.Conn
	chunks      chan transport.Chunk

	match *match
}

func New(cfg *core.Config, logger *logrus.Logger, db *gorm.DB) *Server {
	s := &Server{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Resolver:    PeacefulResolver{},
		players:     NewPlayerCache(cfg.Server.PlayerCacheTTL),
		registry:    registry.New(logger),
		dumper:      &debug.MessageLogger{Logger: logger, Enabled: cfg.Debugging.PacketLoggingEnabled},
		connections: make(chan *transport.Conn),
		chunks:      make(chan transport.Chunk, chunkBacklog),
	}
	s.dispatcher = dispatch.New(logger, s.registry, s, s)
	s.dispatcher.Dumper = s.dumper
	s.frontend = &frontend{
		Address:        cfg.ServerAddress(),
		MaxConnections: cfg.Server.MaxConnections,
		Logger:         logger,
		connections:    s.connections,
		chunks:         s.chunks,
	}
	return s
}

// Listen opens the server socket. It must be called before Run.
func (s *Server) Listen() error {
	return s.frontend.Listen()
}

// Addr returns the address the server accepts connections on.
func (s *Server) Addr() net.Addr {
	return s.frontend.Addr()
}

// Run accepts connections and processes their messages until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	frontendDone := make(chan error, 1)
	go func() { frontendDone <- s.frontend.Serve(ctx) }()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			if err := <-frontendDone; err != nil {
				return fmt.Errorf("frontend: %w", err)
			}
			return nil
		case c := <-s.connections:
			s.registry.AcceptPending(c)
		case chunk := <-s.chunks:
			if chunk.Err != nil {
				s.connectionLost(chunk.Socket)
				continue
			}
			s.dispatcher.Receive(chunk.Socket, chunk.Data)
		}
	}
}

func (s *Server) shutdown() {
	s.Logger.Info("server shutting down")
	if s.match != nil {
		s.broadcast(message.EndGameEvent{Reason: "server shutting down"})
		s.match = nil
	}
	s.registry.DumpAll()
}

// connectionLost cleans up after a socket that closed or failed.
func (s *Server) connectionLost(socket transport.SocketID) {
	sess := s.registry.Session(socket)
	s.dump(socket)
	if sess != nil {
		s.Logger.Infof("player %d (%s) disconnected", sess.PlayerID, sess.Name)
		s.playerGone(sess.PlayerID, sess.Host)
	}
}

// dump closes a connection and forgets any bytes buffered for it.
func (s *Server) dump(socket transport.SocketID) {
	s.registry.DumpConnection(socket)
	s.dispatcher.Forget(socket)
}

// lookupPlayer returns the persistent id of the player with the given name.
func (s *Server) lookupPlayer(name string) (message.PlayerID, error) {
	if id, ok := s.players.Get(name); ok {
		return id, nil
	}
	player, err := data.FindOrCreatePlayer(s.DB, name)
	if err != nil {
		return message.Unassigned, fmt.Errorf("error looking up player %s: %w", name, err)
	}
	id := message.PlayerID(player.ID)
	s.players.Put(name, id)
	return id, nil
}

func (s *Server) sendTo(id message.PlayerID, ev message.Event) {
	m, err := message.From(message.ServerID, ev)
	if err != nil {
		s.Logger.Errorf("error building message: %s", err)
		return
	}
	s.dumper.Dump("send", m)
	s.registry.Send(id, m)
}

func (s *Server) sendToSocket(socket transport.SocketID, ev message.Event) {
	sess := s.registry.Session(socket)
	if sess == nil {
		return
	}
	s.sendTo(sess.PlayerID, ev)
}

func (s *Server) broadcast(ev message.Event, except ...message.PlayerID) {
	m, err := message.From(message.ServerID, ev)
	if err != nil {
		s.Logger.Errorf("error building message: %s", err)
		return
	}
	s.dumper.Dump("send", m)
	s.registry.Broadcast(m, except...)
}
