package server

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/message"
)

const saveFormatVersion = 1

var errInvalidSaveName = errors.New("save file names may not contain a directory")

// savePath resolves a client supplied file name inside the save directory.
func (s *Server) savePath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", errInvalidSaveName
	}
	return filepath.Join(s.Config.SaveDir, filename), nil
}

// writeSave stores the state of the current match. The file is replaced
// atomically so a crash never leaves a partial save behind.
func (s *Server) writeSave(filename string) error {
	path, err := s.savePath(filename)
	if err != nil {
		return err
	}

	var empires []interface{}
	for _, e := range s.match.allEmpires() {
		empires = append(empires, map[string]interface{}{
			"empire_id":   e.ID,
			"name":        e.Name,
			"player_name": e.PlayerName,
			"eliminated":  e.Eliminated,
		})
	}
	contents, err := message.EncodeFields(message.Fields{
		"version":     saveFormatVersion,
		"match_id":    s.match.id.String(),
		"turn":        s.match.turn,
		"multiplayer": s.match.multiplayer,
		"saved_at":    time.Now().UTC().Format(time.RFC3339),
		"empires":     empires,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Config.SaveDir, 0755); err != nil {
		return fmt.Errorf("error creating save directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(contents)); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	core.SavesWritten.Inc()
	s.Logger.Infof("saved turn %d to %s", s.match.turn, path)
	return nil
}

// loadSave replaces the state of the current match with a save file. Empires
// are handed back to their players as they connect.
func (s *Server) loadSave(filename string) error {
	path, err := s.savePath(filename)
	if err != nil {
		return err
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading save %s: %w", filename, err)
	}
	fields, err := message.DecodeFields(contents)
	if err != nil {
		return fmt.Errorf("error reading save %s: %w", filename, err)
	}
	if v := fields.GetInt("version"); v != saveFormatVersion {
		return fmt.Errorf("save %s has unsupported format version %d", filename, v)
	}

	m := s.match
	if id, err := uuid.Parse(fields.GetString("match_id")); err == nil {
		m.id = id
	}
	m.loaded = true
	m.turn = fields.GetInt("turn")
	m.saved = make(map[string]*empire)
	for _, f := range fields.GetList("empires") {
		e := &empire{
			ID:         f.GetInt("empire_id"),
			Name:       f.GetString("name"),
			PlayerName: f.GetString("player_name"),
			Eliminated: f.GetBool("eliminated"),
		}
		m.saved[data.NameKey(e.PlayerName)] = e
		if e.ID >= m.nextEmpire {
			m.nextEmpire = e.ID + 1
		}
	}

	// Players already in the lobby take over their saved empires.
	for id, e := range m.empires {
		key := data.NameKey(e.PlayerName)
		if restored, ok := m.saved[key]; ok {
			delete(m.saved, key)
			restored.PlayerID = id
			restored.Connected = e.Connected
			m.empires[id] = restored
		}
	}
	s.Logger.Infof("loaded %s at turn %d", filename, m.turn)
	return nil
}
