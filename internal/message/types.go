// Package message defines the session protocol: message types, the frame
// format used on the wire and the typed events decoded from each frame.
package message

import "fmt"

// Type identifies the kind of a message.
type Type uint16

const (
	Undefined Type = iota
	HostSPGame
	HostMPGame
	JoinGame
	LobbyUpdate
	LobbyChat
	LobbyHostAbort
	LobbyExit
	StartMPGame
	SaveGame
	LoadGame
	GameStart
	TurnOrders
	TurnUpdate
	TurnProgress
	CombatStart
	CombatTurnUpdate
	CombatEnd
	PlayerChat
	VictoryDefeat
	PlayerEliminated
	PlayerExit
	EndGame
	ServerStatus

	numTypes
)

var typeNames = [...]string{
	Undefined:        "UNDEFINED",
	HostSPGame:       "HOST_SP_GAME",
	HostMPGame:       "HOST_MP_GAME",
	JoinGame:         "JOIN_GAME",
	LobbyUpdate:      "LOBBY_UPDATE",
	LobbyChat:        "LOBBY_CHAT",
	LobbyHostAbort:   "LOBBY_HOST_ABORT",
	LobbyExit:        "LOBBY_EXIT",
	StartMPGame:      "START_MP_GAME",
	SaveGame:         "SAVE_GAME",
	LoadGame:         "LOAD_GAME",
	GameStart:        "GAME_START",
	TurnOrders:       "TURN_ORDERS",
	TurnUpdate:       "TURN_UPDATE",
	TurnProgress:     "TURN_PROGRESS",
	CombatStart:      "COMBAT_START",
	CombatTurnUpdate: "COMBAT_TURN_UPDATE",
	CombatEnd:        "COMBAT_END",
	PlayerChat:       "PLAYER_CHAT",
	VictoryDefeat:    "VICTORY_DEFEAT",
	PlayerEliminated: "PLAYER_ELIMINATED",
	PlayerExit:       "PLAYER_EXIT",
	EndGame:          "END_GAME",
	ServerStatus:     "SERVER_STATUS",
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}

// Valid reports whether t is a known message type.
func (t Type) Valid() bool { return t > Undefined && t < numTypes }

// PlayerID is the server-assigned identity of a player.
type PlayerID int32

const (
	// ServerID is the sender of every message originating from the server.
	ServerID PlayerID = -1
	// Unassigned is the sender used by a client before the handshake completes.
	Unassigned PlayerID = 0
)

// Message is a single decoded frame. The payload is opaque at this level and
// is interpreted by Decode.
type Message struct {
	Type    Type
	Sender  PlayerID
	Payload []byte
}

func (m Message) String() string {
	return fmt.Sprintf("%s from %d (%d bytes)", m.Type, m.Sender, len(m.Payload))
}
