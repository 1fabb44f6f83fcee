package client

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/message"
)

// Phase is the client's position in the match lifecycle.
type Phase int

const (
	Intro Phase = iota
	MultiplayerLobby
	WaitingForNewGame
	WaitingForLoadedGame
	Playing
	AwaitingTurnResolution
	CombatResolution
	Ended
)

var phaseNames = [...]string{
	"Intro",
	"MultiplayerLobby",
	"WaitingForNewGame",
	"WaitingForLoadedGame",
	"Playing",
	"AwaitingTurnResolution",
	"CombatResolution",
	"Ended",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// inGame reports whether a match is underway.
func (p Phase) inGame() bool {
	return p == Playing || p == AwaitingTurnResolution || p == CombatResolution
}

func (p Phase) waiting() bool {
	return p == WaitingForNewGame || p == WaitingForLoadedGame
}

// Event is an input to the state machine: a local action, a transport
// condition or a message from the server.
type Event interface {
	isClientEvent()
}

type HostMPGameRequested struct{}
type JoinMPGameRequested struct{}

type HostSPGameRequested struct {
	Loaded bool
}

// TurnEnded is posted when the local player submits their orders.
type TurnEnded struct{}

// Disconnection is posted by the poll loop when the transport is found dead.
type Disconnection struct{}

// ResetToIntro ends whatever session is active without a server message.
type ResetToIntro struct{}

type ServerMessage struct {
	Event message.Event
}

func (HostMPGameRequested) isClientEvent() {}
func (JoinMPGameRequested) isClientEvent() {}
func (HostSPGameRequested) isClientEvent() {}
func (TurnEnded) isClientEvent()           {}
func (Disconnection) isClientEvent()       {}
func (ResetToIntro) isClientEvent()        {}
func (ServerMessage) isClientEvent()       {}

// Session is the application state the machine acts on.
type Session interface {
	assignPlayer(id message.PlayerID, host bool)
	lobbyUpdated(ev message.LobbyUpdateEvent)
	chatReceived(from message.PlayerID, text string)
	gameStarted(ev message.GameStartEvent)
	turnStarted(turn int)
	autosave(newGame bool)
	empireID() int
	versions() (source, settings string)
	notify(text string)
	// endSession disconnects and resets identity. It is called exactly once
	// per session, while the machine is in Ended.
	endSession()
}

// Machine drives the client through the match lifecycle. Transitions are
// never nested: events raised while one is running are queued and handled
// once it completes.
type Machine struct {
	Logger *logrus.Logger
	// OnTransition, if set, is called for every phase change.
	OnTransition func(from, to Phase)

	session    Session
	phase      Phase
	queue      []Event
	processing bool
}

func NewMachine(logger *logrus.Logger, session Session) *Machine {
	return &Machine{Logger: logger, session: session, phase: Intro}
}

func (m *Machine) Phase() Phase { return m.phase }

// Post queues an event to be handled by the next Drain, or right after the
// transition in progress.
func (m *Machine) Post(ev Event) {
	m.queue = append(m.queue, ev)
}

// Process handles an event now unless a transition is already running, in
// which case it is queued behind it.
func (m *Machine) Process(ev Event) {
	if m.processing {
		m.queue = append(m.queue, ev)
		return
	}
	m.processing = true
	m.react(ev)
	m.drainQueue()
	m.processing = false
}

// Drain handles every queued event.
func (m *Machine) Drain() {
	if m.processing {
		return
	}
	m.processing = true
	m.drainQueue()
	m.processing = false
}

func (m *Machine) drainQueue() {
	for len(m.queue) > 0 {
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.react(ev)
	}
}

func (m *Machine) transit(to Phase) {
	from := m.phase
	m.phase = to
	m.Logger.Debugf("client phase %s -> %s", from, to)
	if m.OnTransition != nil {
		m.OnTransition(from, to)
	}
}

// end runs the session teardown and returns to Intro. A non-empty reason is
// shown to the user.
func (m *Machine) end(reason string) {
	m.transit(Ended)
	if reason != "" {
		m.session.notify(reason)
	}
	m.session.endSession()
	m.transit(Intro)
}

func (m *Machine) react(ev Event) {
	if m.phase != Intro {
		switch e := ev.(type) {
		case ResetToIntro:
			m.end("")
			return
		case ServerMessage:
			if status, ok := e.Event.(message.ServerStatusEvent); ok {
				m.checkStatus(status)
				return
			}
		}
	}

	handled := false
	switch m.phase {
	case Intro:
		handled = m.reactIntro(ev)
	case MultiplayerLobby:
		handled = m.reactLobby(ev)
	case WaitingForNewGame, WaitingForLoadedGame:
		handled = m.reactWaiting(ev)
	case Playing, AwaitingTurnResolution, CombatResolution:
		handled = m.reactInGame(ev)
	}
	if !handled {
		m.Logger.Debugf("client ignoring %s in phase %s", describe(ev), m.phase)
	}
}

func (m *Machine) checkStatus(status message.ServerStatusEvent) {
	source, settings := m.session.versions()
	if status.SourceVersion == source && status.SettingsVersion == settings {
		return
	}
	m.Logger.Errorf("server version %s/%s does not match client version %s/%s",
		status.SourceVersion, status.SettingsVersion, source, settings)
	m.end(fmt.Sprintf(
		"The server is running a different version (build %q, settings %q) than this client (build %q, settings %q).",
		status.SourceVersion, status.SettingsVersion, source, settings,
	))
}

func (m *Machine) reactIntro(ev Event) bool {
	switch e := ev.(type) {
	case HostMPGameRequested, JoinMPGameRequested:
		m.transit(MultiplayerLobby)
	case HostSPGameRequested:
		if e.Loaded {
			m.transit(WaitingForLoadedGame)
		} else {
			m.transit(WaitingForNewGame)
		}
	default:
		return false
	}
	return true
}

// reactPreGame handles what the lobby and the waiting phases have in common.
func (m *Machine) reactPreGame(ev Event) bool {
	switch e := ev.(type) {
	case Disconnection:
		m.end("Lost connection to the server.")
	case ServerMessage:
		switch msg := e.Event.(type) {
		case message.LobbyUpdateEvent:
			m.session.lobbyUpdated(msg)
		case message.LobbyChatEvent:
			m.session.chatReceived(msg.From, msg.Text)
		case message.LobbyHostAbortEvent:
			m.end("The host has cancelled the game.")
		default:
			return false
		}
	default:
		return false
	}
	return true
}

func (m *Machine) reactLobby(ev Event) bool {
	if se, ok := ev.(ServerMessage); ok {
		switch ack := se.Event.(type) {
		case message.HostGameAck:
			m.session.assignPlayer(ack.PlayerID, true)
			m.transitWaiting(ack.Loaded)
			return true
		case message.JoinGameAck:
			m.session.assignPlayer(ack.PlayerID, false)
			m.transitWaiting(ack.Loaded)
			return true
		}
	}
	return m.reactPreGame(ev)
}

func (m *Machine) transitWaiting(loaded bool) {
	if loaded {
		m.transit(WaitingForLoadedGame)
	} else {
		m.transit(WaitingForNewGame)
	}
}

func (m *Machine) reactWaiting(ev Event) bool {
	if se, ok := ev.(ServerMessage); ok {
		switch msg := se.Event.(type) {
		case message.HostGameAck:
			// Single player games are acknowledged while already waiting.
			m.session.assignPlayer(msg.PlayerID, true)
			return true
		case message.GameStartEvent:
			m.session.gameStarted(msg)
			m.transit(Playing)
			m.session.autosave(true)
			return true
		}
	}
	return m.reactPreGame(ev)
}

func (m *Machine) reactInGame(ev Event) bool {
	switch e := ev.(type) {
	case Disconnection:
		m.end("Lost connection to the server.")
		return true
	case TurnEnded:
		if m.phase != Playing {
			return false
		}
		m.transit(AwaitingTurnResolution)
		return true
	case ServerMessage:
		return m.reactInGameMessage(e.Event)
	}
	return false
}

func (m *Machine) reactInGameMessage(ev message.Event) bool {
	switch msg := ev.(type) {
	case message.PlayerEliminatedEvent:
		if msg.EmpireID != m.session.empireID() {
			m.session.notify(fmt.Sprintf("%s has been eliminated.", msg.EmpireName))
			return true
		}
		m.end("Your empire has been eliminated.")
	case message.EndGameEvent:
		reason := "The game has ended."
		if msg.Reason != "" {
			reason = fmt.Sprintf("The game has ended: %s", msg.Reason)
		}
		m.end(reason)
	case message.PlayerChatEvent:
		m.session.chatReceived(msg.From, msg.Text)
	case message.VictoryDefeatEvent:
		if msg.EmpireID == m.session.empireID() && msg.Victory {
			m.session.notify("Victory!")
		}
	case message.PlayerExitEvent:
		m.session.notify(fmt.Sprintf("Player %d has left the game.", msg.PlayerID))
	case message.TurnProgressEvent:
		return m.phase == AwaitingTurnResolution
	case message.CombatStartEvent:
		if m.phase != AwaitingTurnResolution {
			return false
		}
		m.transit(CombatResolution)
	case message.CombatRoundEvent:
		return m.phase == CombatResolution
	case message.CombatEndEvent:
		if m.phase != CombatResolution {
			return false
		}
		m.transit(AwaitingTurnResolution)
	case message.TurnUpdateEvent:
		if m.phase != AwaitingTurnResolution {
			return false
		}
		m.session.turnStarted(msg.Turn)
		m.transit(Playing)
		m.session.autosave(false)
	default:
		return false
	}
	return true
}

func describe(ev Event) string {
	if se, ok := ev.(ServerMessage); ok {
		return fmt.Sprintf("%T", se.Event)
	}
	return fmt.Sprintf("%T", ev)
}
