package server

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/message"
)

// PlayerCache remembers the id assigned to each player name so that repeated
// handshakes do not hit the database.
type PlayerCache struct {
	cacheInstance *gocache.Cache
}

// NewPlayerCache returns a cache whose entries expire after ttl. A ttl of
// zero or less keeps entries forever.
func NewPlayerCache(ttl time.Duration) *PlayerCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &PlayerCache{cacheInstance: gocache.New(ttl, time.Minute)}
}

// Put records the id of the player registered under name.
func (c *PlayerCache) Put(name string, id message.PlayerID) {
	c.cacheInstance.Set(data.NameKey(name), id, gocache.DefaultExpiration)
}

// Get fetches the id of a player by name, returning the id as well as whether
// or not it was found (semantics similar to map).
func (c *PlayerCache) Get(name string) (message.PlayerID, bool) {
	v, ok := c.cacheInstance.Get(data.NameKey(name))
	if !ok {
		return message.Unassigned, false
	}
	return v.(message.PlayerID), true
}
