package message

import "fmt"

// Event is the decoded form of a message. The set of implementations is
// closed; consumers switch over the concrete types.
type Event interface {
	isEvent()
	// wire returns the message type and payload fields used to encode the event.
	wire() (Type, Fields)
}

// UnknownTypeError is returned by Decode for messages it has no event for.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no event for message type %s", e.Type)
}

// HostGameRequest asks the server to host a new or saved game. A non-empty
// Filename loads a single player save.
type HostGameRequest struct {
	Multiplayer bool
	PlayerName  string
	EmpireName  string
	Filename    string
}

// HostGameAck confirms a HostGameRequest and assigns the player id.
type HostGameAck struct {
	Multiplayer bool
	PlayerID    PlayerID
	Loaded      bool
}

type JoinGameRequest struct {
	PlayerName string
	EmpireName string
}

type JoinGameAck struct {
	PlayerID PlayerID
	Loaded   bool
}

type LobbyPlayer struct {
	PlayerID   PlayerID
	Name       string
	EmpireName string
	Host       bool
}

type LobbyUpdateEvent struct {
	Players []LobbyPlayer
	Loaded  bool
}

type LobbyChatEvent struct {
	From PlayerID
	Text string
}

type LobbyHostAbortEvent struct{}

type LobbyExitEvent struct {
	PlayerID PlayerID
}

// StartGameRequest is sent by the host to launch a multiplayer match.
type StartGameRequest struct{}

type SaveGameRequest struct {
	Filename string
}

// SaveGameAck is the host's answer to a SaveGameRequest. OK is false and
// Error set when the save could not be written.
type SaveGameAck struct {
	Filename string
	OK       bool
	Error    string
}

type LoadGameRequest struct {
	Filename string
}

type GameStartEvent struct {
	Turn         int
	PlayerID     PlayerID
	EmpireID     int
	EmpireName   string
	SinglePlayer bool
	Loaded       bool
}

type TurnOrdersEvent struct {
	Turn   int
	Orders []string
}

type TurnUpdateEvent struct {
	Turn int
}

type TurnProgressEvent struct {
	Phase string
}

type CombatStartEvent struct {
	Location string
}

type CombatRoundEvent struct {
	Round int
}

type CombatEndEvent struct{}

type PlayerChatEvent struct {
	From PlayerID
	Text string
}

type VictoryDefeatEvent struct {
	EmpireID int
	Victory  bool
}

type PlayerEliminatedEvent struct {
	EmpireID   int
	EmpireName string
}

type PlayerExitEvent struct {
	PlayerID PlayerID
}

type EndGameEvent struct {
	Reason string
}

type ServerStatusEvent struct {
	SourceVersion   string
	SettingsVersion string
}

func (HostGameRequest) isEvent()       {}
func (HostGameAck) isEvent()           {}
func (JoinGameRequest) isEvent()       {}
func (JoinGameAck) isEvent()           {}
func (LobbyUpdateEvent) isEvent()      {}
func (LobbyChatEvent) isEvent()        {}
func (LobbyHostAbortEvent) isEvent()   {}
func (LobbyExitEvent) isEvent()        {}
func (StartGameRequest) isEvent()      {}
func (SaveGameRequest) isEvent()       {}
func (SaveGameAck) isEvent()           {}
func (LoadGameRequest) isEvent()       {}
func (GameStartEvent) isEvent()        {}
func (TurnOrdersEvent) isEvent()       {}
func (TurnUpdateEvent) isEvent()       {}
func (TurnProgressEvent) isEvent()     {}
func (CombatStartEvent) isEvent()      {}
func (CombatRoundEvent) isEvent()      {}
func (CombatEndEvent) isEvent()        {}
func (PlayerChatEvent) isEvent()       {}
func (VictoryDefeatEvent) isEvent()    {}
func (PlayerEliminatedEvent) isEvent() {}
func (PlayerExitEvent) isEvent()       {}
func (EndGameEvent) isEvent()          {}
func (ServerStatusEvent) isEvent()     {}

func (e HostGameRequest) wire() (Type, Fields) {
	t := HostSPGame
	if e.Multiplayer {
		t = HostMPGame
	}
	return t, Fields{"player_name": e.PlayerName, "empire_name": e.EmpireName, "filename": e.Filename}
}

func (e HostGameAck) wire() (Type, Fields) {
	t := HostSPGame
	if e.Multiplayer {
		t = HostMPGame
	}
	return t, Fields{"player_id": int(e.PlayerID), "loaded": e.Loaded}
}

func (e JoinGameRequest) wire() (Type, Fields) {
	return JoinGame, Fields{"player_name": e.PlayerName, "empire_name": e.EmpireName}
}

func (e JoinGameAck) wire() (Type, Fields) {
	return JoinGame, Fields{"player_id": int(e.PlayerID), "loaded": e.Loaded}
}

func (e LobbyUpdateEvent) wire() (Type, Fields) {
	players := make([]interface{}, len(e.Players))
	for i, p := range e.Players {
		players[i] = map[string]interface{}{
			"player_id":   int(p.PlayerID),
			"name":        p.Name,
			"empire_name": p.EmpireName,
			"host":        p.Host,
		}
	}
	return LobbyUpdate, Fields{"players": players, "loaded": e.Loaded}
}

func (e LobbyChatEvent) wire() (Type, Fields) {
	return LobbyChat, Fields{"from": int(e.From), "text": e.Text}
}

func (LobbyHostAbortEvent) wire() (Type, Fields) { return LobbyHostAbort, nil }

func (e LobbyExitEvent) wire() (Type, Fields) {
	return LobbyExit, Fields{"player_id": int(e.PlayerID)}
}

func (StartGameRequest) wire() (Type, Fields) { return StartMPGame, nil }

func (e SaveGameRequest) wire() (Type, Fields) {
	return SaveGame, Fields{"filename": e.Filename}
}

func (e SaveGameAck) wire() (Type, Fields) {
	return SaveGame, Fields{"filename": e.Filename, "ok": e.OK, "error": e.Error}
}

func (e LoadGameRequest) wire() (Type, Fields) {
	return LoadGame, Fields{"filename": e.Filename}
}

func (e GameStartEvent) wire() (Type, Fields) {
	return GameStart, Fields{
		"turn":          e.Turn,
		"player_id":     int(e.PlayerID),
		"empire_id":     e.EmpireID,
		"empire_name":   e.EmpireName,
		"single_player": e.SinglePlayer,
		"loaded":        e.Loaded,
	}
}

func (e TurnOrdersEvent) wire() (Type, Fields) {
	return TurnOrders, Fields{"turn": e.Turn, "orders": stringList(e.Orders)}
}

func (e TurnUpdateEvent) wire() (Type, Fields) {
	return TurnUpdate, Fields{"turn": e.Turn}
}

func (e TurnProgressEvent) wire() (Type, Fields) {
	return TurnProgress, Fields{"phase": e.Phase}
}

func (e CombatStartEvent) wire() (Type, Fields) {
	return CombatStart, Fields{"location": e.Location}
}

func (e CombatRoundEvent) wire() (Type, Fields) {
	return CombatTurnUpdate, Fields{"round": e.Round}
}

func (CombatEndEvent) wire() (Type, Fields) { return CombatEnd, nil }

func (e PlayerChatEvent) wire() (Type, Fields) {
	return PlayerChat, Fields{"from": int(e.From), "text": e.Text}
}

func (e VictoryDefeatEvent) wire() (Type, Fields) {
	return VictoryDefeat, Fields{"empire_id": e.EmpireID, "victory": e.Victory}
}

func (e PlayerEliminatedEvent) wire() (Type, Fields) {
	return PlayerEliminated, Fields{"empire_id": e.EmpireID, "empire_name": e.EmpireName}
}

func (e PlayerExitEvent) wire() (Type, Fields) {
	return PlayerExit, Fields{"player_id": int(e.PlayerID)}
}

func (e EndGameEvent) wire() (Type, Fields) {
	return EndGame, Fields{"reason": e.Reason}
}

func (e ServerStatusEvent) wire() (Type, Fields) {
	return ServerStatus, Fields{"source_version": e.SourceVersion, "settings_version": e.SettingsVersion}
}

// From builds the message carrying ev on behalf of sender.
func From(sender PlayerID, ev Event) (Message, error) {
	t, fields := ev.wire()
	payload, err := EncodeFields(fields)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s: %w", t, err)
	}
	return Message{Type: t, Sender: sender, Payload: payload}, nil
}

// Decode interprets a message's payload. Types used in both directions
// (HOST_*, JOIN_GAME, SAVE_GAME) are told apart by the sender: anything sent
// by ServerID is an acknowledgement.
func Decode(m Message) (Event, error) {
	f, err := DecodeFields(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type, err)
	}
	fromServer := m.Sender == ServerID

	switch m.Type {
	case HostSPGame, HostMPGame:
		if fromServer {
			return HostGameAck{
				Multiplayer: m.Type == HostMPGame,
				PlayerID:    PlayerID(f.GetInt("player_id")),
				Loaded:      f.GetBool("loaded"),
			}, nil
		}
		return HostGameRequest{
			Multiplayer: m.Type == HostMPGame,
			PlayerName:  f.GetString("player_name"),
			EmpireName:  f.GetString("empire_name"),
			Filename:    f.GetString("filename"),
		}, nil
	case JoinGame:
		if fromServer {
			return JoinGameAck{PlayerID: PlayerID(f.GetInt("player_id")), Loaded: f.GetBool("loaded")}, nil
		}
		return JoinGameRequest{PlayerName: f.GetString("player_name"), EmpireName: f.GetString("empire_name")}, nil
	case LobbyUpdate:
		ev := LobbyUpdateEvent{Loaded: f.GetBool("loaded")}
		for _, p := range f.GetList("players") {
			ev.Players = append(ev.Players, LobbyPlayer{
				PlayerID:   PlayerID(p.GetInt("player_id")),
				Name:       p.GetString("name"),
				EmpireName: p.GetString("empire_name"),
				Host:       p.GetBool("host"),
			})
		}
		return ev, nil
	case LobbyChat:
		return LobbyChatEvent{From: PlayerID(f.GetInt("from")), Text: f.GetString("text")}, nil
	case LobbyHostAbort:
		return LobbyHostAbortEvent{}, nil
	case LobbyExit:
		return LobbyExitEvent{PlayerID: PlayerID(f.GetInt("player_id"))}, nil
	case StartMPGame:
		return StartGameRequest{}, nil
	case SaveGame:
		if fromServer {
			return SaveGameAck{Filename: f.GetString("filename"), OK: f.GetBool("ok"), Error: f.GetString("error")}, nil
		}
		return SaveGameRequest{Filename: f.GetString("filename")}, nil
	case LoadGame:
		return LoadGameRequest{Filename: f.GetString("filename")}, nil
	case GameStart:
		return GameStartEvent{
			Turn:         f.GetInt("turn"),
			PlayerID:     PlayerID(f.GetInt("player_id")),
			EmpireID:     f.GetInt("empire_id"),
			EmpireName:   f.GetString("empire_name"),
			SinglePlayer: f.GetBool("single_player"),
			Loaded:       f.GetBool("loaded"),
		}, nil
	case TurnOrders:
		return TurnOrdersEvent{Turn: f.GetInt("turn"), Orders: f.GetStrings("orders")}, nil
	case TurnUpdate:
		return TurnUpdateEvent{Turn: f.GetInt("turn")}, nil
	case TurnProgress:
		return TurnProgressEvent{Phase: f.GetString("phase")}, nil
	case CombatStart:
		return CombatStartEvent{Location: f.GetString("location")}, nil
	case CombatTurnUpdate:
		return CombatRoundEvent{Round: f.GetInt("round")}, nil
	case CombatEnd:
		return CombatEndEvent{}, nil
	case PlayerChat:
		return PlayerChatEvent{From: PlayerID(f.GetInt("from")), Text: f.GetString("text")}, nil
	case VictoryDefeat:
		return VictoryDefeatEvent{EmpireID: f.GetInt("empire_id"), Victory: f.GetBool("victory")}, nil
	case PlayerEliminated:
		return PlayerEliminatedEvent{EmpireID: f.GetInt("empire_id"), EmpireName: f.GetString("empire_name")}, nil
	case PlayerExit:
		return PlayerExitEvent{PlayerID: PlayerID(f.GetInt("player_id"))}, nil
	case EndGame:
		return EndGameEvent{Reason: f.GetString("reason")}, nil
	case ServerStatus:
		return ServerStatusEvent{
			SourceVersion:   f.GetString("source_version"),
			SettingsVersion: f.GetString("settings_version"),
		}, nil
	default:
		return nil, &UnknownTypeError{Type: m.Type}
	}
}
