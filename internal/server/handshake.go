package server

import (
	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/registry"
	"github.com/dcrodman/orion/internal/transport"
)

// HandleNonPlayerMessage processes messages from connections that have not
// completed the handshake. Anything other than a host or join request closes
// the connection.
func (s *Server) HandleNonPlayerMessage(socket transport.SocketID, m message.Message) {
	ev, err := message.Decode(m)
	if err != nil {
		s.Logger.Warnf("socket %d: %s", socket, err)
		return
	}

	switch req := ev.(type) {
	case message.HostGameRequest:
		s.hostGame(socket, req)
	case message.JoinGameRequest:
		s.joinGame(socket, req)
	default:
		s.Logger.Warnf("socket %d sent %s before the handshake; disconnecting", socket, m.Type)
		s.dump(socket)
	}
}

func (s *Server) hostGame(socket transport.SocketID, req message.HostGameRequest) {
	if s.match != nil && s.registry.Player(s.match.host) != nil {
		s.Logger.Warnf("socket %d tried to host while a game is already hosted", socket)
		s.dump(socket)
		return
	}
	if req.Filename != "" && req.Multiplayer {
		s.Logger.Warnf("socket %d tried to load a multiplayer game from the handshake", socket)
		s.dump(socket)
		return
	}

	id, ok := s.establish(socket, req.PlayerName, req.EmpireName, true)
	if !ok {
		return
	}

	s.match = newMatch(req.Multiplayer, id)
	s.match.join(id, req.PlayerName, req.EmpireName, data.NameKey(req.PlayerName))
	if req.Filename != "" {
		if err := s.loadSave(req.Filename); err != nil {
			s.Logger.Warnf("player %d: %s", id, err)
			s.sendTo(id, message.EndGameEvent{Reason: "unable to load " + req.Filename})
			s.endMatch()
			return
		}
	}

	s.sendTo(id, message.HostGameAck{Multiplayer: req.Multiplayer, PlayerID: id, Loaded: s.match.loaded})
	s.sendStatus(id)

	if !req.Multiplayer {
		s.startGame()
		return
	}
	s.broadcastLobby()
}

func (s *Server) joinGame(socket transport.SocketID, req message.JoinGameRequest) {
	if s.match == nil || !s.match.multiplayer {
		s.Logger.Warnf("socket %d tried to join when no multiplayer game is hosted", socket)
		s.dump(socket)
		return
	}

	if s.match.started {
		// Only players who were already in the match may come back to it.
		id, err := s.lookupPlayer(req.PlayerName)
		if err != nil || s.match.empires[id] == nil {
			s.Logger.Warnf("socket %d tried to join a game in progress", socket)
			s.dump(socket)
			return
		}
	}

	id, ok := s.establish(socket, req.PlayerName, req.EmpireName, false)
	if !ok {
		return
	}
	e := s.match.join(id, req.PlayerName, req.EmpireName, data.NameKey(req.PlayerName))

	s.sendTo(id, message.JoinGameAck{PlayerID: id, Loaded: s.match.loaded})
	s.sendStatus(id)

	if s.match.started {
		s.sendGameStart(e)
		return
	}
	s.broadcastLobby()
}

// establish binds the socket to the player's persistent id. On failure the
// connection is dropped and false returned.
func (s *Server) establish(socket transport.SocketID, playerName, empireName string, host bool) (message.PlayerID, bool) {
	if playerName == "" {
		s.Logger.Warnf("socket %d sent a handshake without a player name", socket)
		s.dump(socket)
		return message.Unassigned, false
	}
	id, err := s.lookupPlayer(playerName)
	if err != nil {
		s.Logger.Errorf("socket %d: %s", socket, err)
		s.dump(socket)
		return message.Unassigned, false
	}

	sessionData := registry.SessionData{Name: playerName, EmpireName: empireName, Host: host}
	if !s.registry.EstablishPlayer(socket, id, sessionData) {
		s.Logger.Warnf("socket %d is no longer pending", socket)
		return message.Unassigned, false
	}
	return id, true
}

func (s *Server) sendStatus(id message.PlayerID) {
	s.sendTo(id, message.ServerStatusEvent{
		SourceVersion:   s.Config.SourceVersion,
		SettingsVersion: s.Config.SettingsVersion,
	})
}

func (s *Server) broadcastLobby() {
	ev := message.LobbyUpdateEvent{Loaded: s.match.loaded}
	for _, sess := range s.registry.Players() {
		p := message.LobbyPlayer{PlayerID: sess.PlayerID, Name: sess.Name, EmpireName: sess.EmpireName, Host: sess.Host}
		if e := s.match.empires[sess.PlayerID]; e != nil {
			p.EmpireName = e.Name
		}
		ev.Players = append(ev.Players, p)
	}
	s.broadcast(ev)
}
