package data

import (
	"errors"
	"time"

	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// Player is the persistent identity behind a player id. Ids are assigned by
// the database and stay stable across matches for the same name.
type Player struct {
	ID          uint64 `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	NameKey     string `gorm:"uniqueIndex; not null"`
	CreatedAt   time.Time
	LastSeen    time.Time
	GamesPlayed int
}

var folder = cases.Fold()

// NameKey returns the case-insensitive lookup key for a player name.
func NameKey(name string) string {
	return folder.String(name)
}

// FindPlayerByName searches for a player by name ignoring case, returning nil
// if there is no match.
func FindPlayerByName(db *gorm.DB, name string) (*Player, error) {
	var player Player
	err := db.Where("name_key = ?", NameKey(name)).First(&player).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &player, nil
}

// FindOrCreatePlayer returns the player registered under name, creating it if
// needed, and records the visit.
func FindOrCreatePlayer(db *gorm.DB, name string) (*Player, error) {
	player, err := FindPlayerByName(db, name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if player == nil {
		player = &Player{Name: name, NameKey: NameKey(name), LastSeen: now}
		if err := db.Create(player).Error; err != nil {
			return nil, err
		}
		return player, nil
	}

	player.LastSeen = now
	if err := db.Model(player).Update("last_seen", now).Error; err != nil {
		return nil, err
	}
	return player, nil
}

// RecordGamePlayed increments the games played counter of the given players.
func RecordGamePlayed(db *gorm.DB, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&Player{}).
		Where("id IN ?", ids).
		Update("games_played", gorm.Expr("games_played + 1")).Error
}
