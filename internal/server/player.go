package server

import (
	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/message"
)

// HandlePlayerMessage processes messages from established players.
func (s *Server) HandlePlayerMessage(id message.PlayerID, m message.Message) {
	ev, err := message.Decode(m)
	if err != nil {
		s.Logger.Warnf("player %d: %s", id, err)
		return
	}
	if s.match == nil {
		s.Logger.Debugf("player %d sent %s with no match in progress", id, m.Type)
		return
	}

	switch req := ev.(type) {
	case message.LobbyChatEvent:
		s.broadcast(message.LobbyChatEvent{From: id, Text: req.Text}, id)
	case message.PlayerChatEvent:
		s.broadcast(message.PlayerChatEvent{From: id, Text: req.Text}, id)
	case message.LobbyExitEvent, message.PlayerExitEvent:
		host := s.isHost(id)
		s.registry.DumpPlayer(id)
		s.playerGone(id, host)
	case message.StartGameRequest:
		if !s.isHost(id) || s.match.started {
			s.Logger.Warnf("player %d may not start the game", id)
			return
		}
		s.startGame()
	case message.LoadGameRequest:
		s.loadGame(id, req)
	case message.SaveGameRequest:
		s.saveGame(id, req)
	case message.TurnOrdersEvent:
		s.turnOrders(id, req)
	case message.EndGameEvent:
		if !s.isHost(id) {
			s.Logger.Warnf("player %d may not end the game", id)
			return
		}
		s.broadcast(message.EndGameEvent{Reason: "the host ended the game"}, id)
		s.endMatch()
	default:
		s.Logger.Debugf("ignoring %s from player %d", m.Type, id)
	}
}

func (s *Server) isHost(id message.PlayerID) bool {
	return s.match != nil && s.match.host == id
}

// playerGone updates the match after a player left or lost their connection.
func (s *Server) playerGone(id message.PlayerID, host bool) {
	m := s.match
	if m == nil {
		return
	}

	if host && m.multiplayer && !m.started {
		s.broadcast(message.LobbyHostAbortEvent{})
		s.endMatch()
		return
	}
	if host {
		s.broadcast(message.EndGameEvent{Reason: "the host has left the game"})
		s.endMatch()
		return
	}

	e := m.empires[id]
	if e == nil {
		return
	}
	if !m.started {
		delete(m.empires, id)
		s.broadcastLobby()
		return
	}

	e.Connected = false
	s.broadcast(message.PlayerExitEvent{PlayerID: id})
	if !m.anyConnected() {
		s.endMatch()
		return
	}
	if !m.awaitingOrders() {
		s.resolveTurn()
	}
}

// endMatch drops every player and forgets the match.
func (s *Server) endMatch() {
	if s.match != nil {
		s.Logger.Infof("match %s ended on turn %d", s.match.id, s.match.turn)
	}
	s.match = nil
	for _, sess := range s.registry.Players() {
		s.dispatcher.Forget(sess.Conn.ID())
	}
	s.registry.DumpAll()
}

func (s *Server) startGame() {
	m := s.match
	m.started = true
	s.Logger.Infof("match %s starting on turn %d with %d players", m.id, m.turn, len(m.empires))

	var ids []uint64
	for _, e := range m.living() {
		ids = append(ids, uint64(e.PlayerID))
		s.sendGameStart(e)
	}
	if err := data.RecordGamePlayed(s.DB, ids...); err != nil {
		s.Logger.Warnf("error recording games played: %s", err)
	}
}

func (s *Server) sendGameStart(e *empire) {
	s.sendTo(e.PlayerID, message.GameStartEvent{
		Turn:         s.match.turn,
		PlayerID:     e.PlayerID,
		EmpireID:     e.ID,
		EmpireName:   e.Name,
		SinglePlayer: !s.match.multiplayer,
		Loaded:       s.match.loaded,
	})
}

func (s *Server) loadGame(id message.PlayerID, req message.LoadGameRequest) {
	if !s.isHost(id) || s.match.started {
		s.Logger.Warnf("player %d may not load a game", id)
		return
	}
	if err := s.loadSave(req.Filename); err != nil {
		s.Logger.Warnf("player %d: %s", id, err)
		s.sendTo(id, message.LobbyChatEvent{From: message.ServerID, Text: "unable to load " + req.Filename})
		return
	}
	s.broadcastLobby()
}

func (s *Server) saveGame(id message.PlayerID, req message.SaveGameRequest) {
	ack := message.SaveGameAck{Filename: req.Filename}
	switch {
	case !s.isHost(id):
		ack.Error = "only the host may save the game"
	case !s.match.started:
		ack.Error = "the game has not started"
	default:
		if err := s.writeSave(req.Filename); err != nil {
			s.Logger.Warnf("player %d: %s", id, err)
			ack.Error = err.Error()
		} else {
			ack.OK = true
		}
	}
	s.sendTo(id, ack)
}

func (s *Server) turnOrders(id message.PlayerID, req message.TurnOrdersEvent) {
	m := s.match
	e := m.empires[id]
	if !m.started || e == nil || e.Eliminated {
		s.Logger.Warnf("player %d sent orders outside of a turn", id)
		return
	}
	if req.Turn != m.turn {
		s.Logger.Warnf("player %d sent orders for turn %d during turn %d", id, req.Turn, m.turn)
		return
	}

	e.Submitted = true
	e.Orders = req.Orders
	if !m.awaitingOrders() {
		s.resolveTurn()
	}
}

// resolveTurn runs the turn through the Resolver and reports the outcome.
func (s *Server) resolveTurn() {
	m := s.match
	s.broadcast(message.TurnProgressEvent{Phase: "orders"})

	var states []EmpireState
	for _, e := range m.living() {
		states = append(states, EmpireState{ID: e.ID, Name: e.Name, Orders: e.Orders})
	}
	result := s.Resolver.Resolve(m.turn, states)

	if len(result.Combats) > 0 {
		s.broadcast(message.TurnProgressEvent{Phase: "combat"})
	}
	for _, c := range result.Combats {
		s.broadcast(message.CombatStartEvent{Location: c.Location})
		for round := 1; round <= c.Rounds; round++ {
			s.broadcast(message.CombatRoundEvent{Round: round})
		}
		s.broadcast(message.CombatEndEvent{})
	}

	for _, empireID := range result.Eliminated {
		e := m.byEmpireID(empireID)
		if e == nil || e.Eliminated {
			continue
		}
		e.Eliminated = true
		s.broadcast(message.PlayerEliminatedEvent{EmpireID: e.ID, EmpireName: e.Name})
	}

	living := m.living()
	if m.multiplayer && !m.decided && len(living) == 1 && len(m.empires) > 1 {
		m.decided = true
		s.broadcast(message.VictoryDefeatEvent{EmpireID: living[0].ID, Victory: true})
	}
	if len(living) == 0 || !m.anyConnected() {
		s.broadcast(message.EndGameEvent{Reason: "no empires remain"})
		s.endMatch()
		return
	}

	for _, e := range m.empires {
		e.Submitted = false
		e.Orders = nil
	}
	m.turn++
	s.broadcast(message.TurnUpdateEvent{Turn: m.turn})
}
