package client

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/message"
)

type fakeSession struct {
	playerID  message.PlayerID
	host      bool
	empire    int
	turn      int
	autosaves []bool
	notices   []string
	endings   int
	source    string
	settings  string
}

func (s *fakeSession) assignPlayer(id message.PlayerID, host bool) { s.playerID, s.host = id, host }
func (s *fakeSession) lobbyUpdated(message.LobbyUpdateEvent)       {}
func (s *fakeSession) chatReceived(message.PlayerID, string)       {}
func (s *fakeSession) gameStarted(ev message.GameStartEvent)       { s.empire, s.turn = ev.EmpireID, ev.Turn }
func (s *fakeSession) turnStarted(turn int)                        { s.turn = turn }
func (s *fakeSession) autosave(newGame bool)                       { s.autosaves = append(s.autosaves, newGame) }
func (s *fakeSession) empireID() int                               { return s.empire }
func (s *fakeSession) versions() (string, string)                  { return s.source, s.settings }
func (s *fakeSession) notify(text string)                          { s.notices = append(s.notices, text) }
func (s *fakeSession) endSession()                                 { s.endings++ }

func newTestMachine() (*Machine, *fakeSession, *[]Phase) {
	logger := logrus.New()
	logger.Out = io.Discard
	session := &fakeSession{empire: -1, source: "v1", settings: "s1"}
	m := NewMachine(logger, session)

	var visited []Phase
	m.OnTransition = func(from, to Phase) { visited = append(visited, to) }
	return m, session, &visited
}

func server(ev message.Event) ServerMessage { return ServerMessage{Event: ev} }

func countPhase(phases []Phase, p Phase) int {
	n := 0
	for _, v := range phases {
		if v == p {
			n++
		}
	}
	return n
}

// playing drives a new machine through a multiplayer lobby into a game.
func playing(t *testing.T) (*Machine, *fakeSession, *[]Phase) {
	m, session, visited := newTestMachine()
	m.Process(JoinMPGameRequested{})
	m.Process(server(message.JoinGameAck{PlayerID: 3}))
	m.Process(server(message.GameStartEvent{Turn: 1, EmpireID: 2, EmpireName: "Zorg"}))
	if m.Phase() != Playing {
		t.Fatalf("expected phase Playing, got %s", m.Phase())
	}
	return m, session, visited
}

func TestMachine_MultiplayerLifecycle(t *testing.T) {
	m, session, visited := newTestMachine()

	steps := []struct {
		event Event
		want  Phase
	}{
		{HostMPGameRequested{}, MultiplayerLobby},
		{server(message.LobbyUpdateEvent{}), MultiplayerLobby},
		{server(message.HostGameAck{Multiplayer: true, PlayerID: 1}), WaitingForNewGame},
		{server(message.LobbyChatEvent{From: 2, Text: "hi"}), WaitingForNewGame},
		{server(message.GameStartEvent{Turn: 1, EmpireID: 4}), Playing},
		{TurnEnded{}, AwaitingTurnResolution},
		{server(message.TurnProgressEvent{Phase: "movement"}), AwaitingTurnResolution},
		{server(message.CombatStartEvent{Location: "Sol"}), CombatResolution},
		{server(message.CombatRoundEvent{Round: 1}), CombatResolution},
		{server(message.CombatEndEvent{}), AwaitingTurnResolution},
		{server(message.TurnUpdateEvent{Turn: 2}), Playing},
		{server(message.EndGameEvent{Reason: "host left"}), Intro},
	}
	for _, step := range steps {
		m.Process(step.event)
		if m.Phase() != step.want {
			t.Fatalf("after %s expected phase %s, got %s", describe(step.event), step.want, m.Phase())
		}
	}

	if session.playerID != 1 || !session.host {
		t.Errorf("expected to be assigned host player 1, got %d (host = %v)", session.playerID, session.host)
	}
	if diff := cmp.Diff([]bool{true, false}, session.autosaves); diff != "" {
		t.Errorf("unexpected autosaves; diff:\n%s", diff)
	}
	if session.turn != 2 {
		t.Errorf("expected turn 2, got %d", session.turn)
	}
	if session.endings != 1 || countPhase(*visited, Ended) != 1 {
		t.Errorf("expected one session end, got %d endings and %d Ended transitions", session.endings, countPhase(*visited, Ended))
	}
}

func TestMachine_IntroTransitions(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  Phase
	}{
		{name: "host multiplayer", event: HostMPGameRequested{}, want: MultiplayerLobby},
		{name: "join multiplayer", event: JoinMPGameRequested{}, want: MultiplayerLobby},
		{name: "new single player", event: HostSPGameRequested{}, want: WaitingForNewGame},
		{name: "loaded single player", event: HostSPGameRequested{Loaded: true}, want: WaitingForLoadedGame},
		{name: "server message ignored", event: server(message.TurnUpdateEvent{Turn: 3}), want: Intro},
		{name: "disconnection ignored", event: Disconnection{}, want: Intro},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestMachine()
			m.Process(tt.event)
			if m.Phase() != tt.want {
				t.Errorf("expected phase %s, got %s", tt.want, m.Phase())
			}
		})
	}
}

func TestMachine_LobbyAckLoaded(t *testing.T) {
	m, session, _ := newTestMachine()
	m.Process(JoinMPGameRequested{})
	m.Process(server(message.JoinGameAck{PlayerID: 6, Loaded: true}))

	if m.Phase() != WaitingForLoadedGame {
		t.Errorf("expected phase WaitingForLoadedGame, got %s", m.Phase())
	}
	if session.playerID != 6 || session.host {
		t.Errorf("expected non-host player 6, got %d (host = %v)", session.playerID, session.host)
	}
}

func TestMachine_PreGameEndings(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		event Event
	}{
		{name: "host abort in lobby", setup: []Event{HostMPGameRequested{}}, event: server(message.LobbyHostAbortEvent{})},
		{name: "disconnect in lobby", setup: []Event{JoinMPGameRequested{}}, event: Disconnection{}},
		{name: "disconnect while waiting", setup: []Event{HostSPGameRequested{}}, event: Disconnection{}},
		{name: "host abort while waiting", setup: []Event{JoinMPGameRequested{}, server(message.JoinGameAck{PlayerID: 2})}, event: server(message.LobbyHostAbortEvent{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, session, visited := newTestMachine()
			for _, ev := range tt.setup {
				m.Process(ev)
			}
			m.Process(tt.event)

			if m.Phase() != Intro {
				t.Errorf("expected phase Intro, got %s", m.Phase())
			}
			if session.endings != 1 || countPhase(*visited, Ended) != 1 {
				t.Errorf("expected exactly one session end, got %d", session.endings)
			}
			if len(session.notices) != 1 {
				t.Errorf("expected one user notice, got %v", session.notices)
			}
		})
	}
}

func TestMachine_Elimination(t *testing.T) {
	m, session, _ := playing(t)

	m.Process(server(message.PlayerEliminatedEvent{EmpireID: 9, EmpireName: "Other"}))
	if m.Phase() != Playing {
		t.Fatalf("another empire's elimination should not end the game, phase is %s", m.Phase())
	}

	m.Process(server(message.PlayerEliminatedEvent{EmpireID: 2, EmpireName: "Zorg"}))
	if m.Phase() != Intro || session.endings != 1 {
		t.Errorf("expected the game to end, phase %s with %d endings", m.Phase(), session.endings)
	}
}

// Two disconnects posted for the same connection in one loop iteration end
// the session once.
func TestMachine_DuplicateDisconnects(t *testing.T) {
	for _, phase := range []Phase{Playing, AwaitingTurnResolution, CombatResolution} {
		t.Run(phase.String(), func(t *testing.T) {
			m, session, visited := playing(t)
			if phase != Playing {
				m.Process(TurnEnded{})
			}
			if phase == CombatResolution {
				m.Process(server(message.CombatStartEvent{}))
			}
			if m.Phase() != phase {
				t.Fatalf("expected phase %s, got %s", phase, m.Phase())
			}

			m.Post(Disconnection{})
			m.Post(Disconnection{})
			m.Drain()

			if got := countPhase(*visited, Ended); got != 1 {
				t.Errorf("expected one Ended transition, got %d", got)
			}
			if session.endings != 1 {
				t.Errorf("expected one session teardown, got %d", session.endings)
			}
			if len(session.notices) != 1 {
				t.Errorf("expected the disconnect to be reported once, got %v", session.notices)
			}
			if m.Phase() != Intro {
				t.Errorf("expected phase Intro, got %s", m.Phase())
			}
		})
	}
}

func TestMachine_VersionMismatch(t *testing.T) {
	m, session, visited := playing(t)

	m.Process(server(message.ServerStatusEvent{SourceVersion: "v1", SettingsVersion: "s1"}))
	if m.Phase() != Playing {
		t.Fatalf("matching versions should not end the game, phase is %s", m.Phase())
	}

	m.Process(server(message.ServerStatusEvent{SourceVersion: "v2", SettingsVersion: "s1"}))
	if m.Phase() != Intro {
		t.Errorf("expected phase Intro, got %s", m.Phase())
	}
	if countPhase(*visited, Ended) != 1 || len(session.notices) != 1 {
		t.Errorf("expected one Ended transition and one notice, got %d and %v", countPhase(*visited, Ended), session.notices)
	}
}

// Events raised while a transition runs are handled after it.
func TestMachine_ProcessDuringTransition(t *testing.T) {
	m, session, visited := newTestMachine()
	m.Process(HostSPGameRequested{})

	var order []string
	m.OnTransition = func(from, to Phase) {
		*visited = append(*visited, to)
		order = append(order, to.String())
		if to == Playing && len(order) == 1 {
			m.Process(TurnEnded{})
			order = append(order, "queued")
		}
	}
	m.Process(server(message.GameStartEvent{Turn: 1}))

	want := []string{"Playing", "queued", "AwaitingTurnResolution"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("unexpected transition order; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true}, session.autosaves); diff != "" {
		t.Errorf("unexpected autosaves; diff:\n%s", diff)
	}
}

func TestMachine_ResetToIntro(t *testing.T) {
	m, session, _ := playing(t)
	m.Process(ResetToIntro{})
	m.Process(ResetToIntro{})

	if m.Phase() != Intro || session.endings != 1 {
		t.Errorf("expected a single session end, phase %s with %d endings", m.Phase(), session.endings)
	}
	if len(session.notices) != 0 {
		t.Errorf("expected no notice for a local reset, got %v", session.notices)
	}
}
