package server

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dcrodman/orion/internal/message"
)

// empire is one player's side in a match.
type empire struct {
	ID         int
	Name       string
	PlayerID   message.PlayerID
	PlayerName string
	Eliminated bool
	Connected  bool
	Submitted  bool
	Orders     []string
}

type match struct {
	id          uuid.UUID
	multiplayer bool
	loaded      bool
	started     bool
	decided     bool
	turn        int
	host        message.PlayerID

	empires    map[message.PlayerID]*empire
	nextEmpire int
	// Empires read from a save file, keyed by the folded player name, waiting
	// for their player to connect.
	saved map[string]*empire
}

func newMatch(multiplayer bool, host message.PlayerID) *match {
	return &match{
		id:          uuid.New(),
		multiplayer: multiplayer,
		turn:        1,
		host:        host,
		empires:     make(map[message.PlayerID]*empire),
		nextEmpire:  1,
		saved:       make(map[string]*empire),
	}
}

// join gives a player their empire, restoring it from the save if the match
// was loaded and the player is in it.
func (m *match) join(id message.PlayerID, playerName, empireName, nameKey string) *empire {
	if e, ok := m.empires[id]; ok {
		e.Connected = true
		return e
	}
	e, ok := m.saved[nameKey]
	if ok {
		delete(m.saved, nameKey)
	} else {
		e = &empire{ID: m.nextEmpire, Name: empireName}
		m.nextEmpire++
	}
	e.PlayerID = id
	e.PlayerName = playerName
	e.Connected = true
	m.empires[id] = e
	return e
}

// living returns the empires still in the game, ordered by empire id.
func (m *match) living() []*empire {
	var out []*empire
	for _, e := range m.empires {
		if !e.Eliminated {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// awaitingOrders reports whether a connected, living empire has yet to
// submit orders for the current turn.
func (m *match) awaitingOrders() bool {
	pending := false
	for _, e := range m.living() {
		if e.Connected && !e.Submitted {
			pending = true
		}
	}
	return pending
}

func (m *match) anyConnected() bool {
	for _, e := range m.living() {
		if e.Connected {
			return true
		}
	}
	return false
}

func (m *match) byEmpireID(id int) *empire {
	for _, e := range m.empires {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// allEmpires returns every empire, connected or not, ordered by empire id.
func (m *match) allEmpires() []*empire {
	out := make([]*empire, 0, len(m.empires)+len(m.saved))
	for _, e := range m.empires {
		out = append(out, e)
	}
	for _, e := range m.saved {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
