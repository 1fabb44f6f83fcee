// Package autosave decides when the client writes automatic saves, names
// them and keeps the save directory from filling up with them.
package autosave

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/core"
)

const (
	singlePlayerExt = ".sav"
	multiplayerExt  = ".mps"
)

// Saver performs a save and returns once the host has acknowledged it.
type Saver interface {
	SaveGame(filename string) error
}

// Match describes the game being autosaved. Host is set when the local
// player hosts it.
type Match struct {
	SinglePlayer bool
	Host         bool
	PlayerName   string
	EmpireName   string
	Turn         int
}

// Record is the file an autosave is written to.
type Record struct {
	Filename  string
	EmpireTag string
	PlayerTag string
	Turn      int
	Ext       string
}

// Sanitize returns the run of letters and underscores starting at the first
// such character in name. Any other character ends the run.
func Sanitize(name string) string {
	start := strings.IndexFunc(name, legal)
	if start < 0 {
		return ""
	}
	end := strings.IndexFunc(name[start:], func(r rune) bool { return !legal(r) })
	if end < 0 {
		return name[start:]
	}
	return name[start : start+end]
}

func legal(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// NewRecord builds the autosave record for a match at its current turn.
func NewRecord(prefix string, m Match) Record {
	rec := Record{EmpireTag: Sanitize(m.EmpireName), Turn: m.Turn, Ext: singlePlayerExt}
	if !m.SinglePlayer {
		rec.Ext = multiplayerExt
		rec.PlayerTag = Sanitize(m.PlayerName)
	}
	rec.Filename = fmt.Sprintf("%s_%04d%s", rec.stem(prefix), rec.Turn, rec.Ext)
	return rec
}

// stem is everything in the filename before the turn number.
func (r Record) stem(prefix string) string {
	if r.PlayerTag != "" {
		return prefix + "_" + r.PlayerTag + "_" + r.EmpireTag
	}
	return prefix + "_" + r.EmpireTag
}

// ManualFilename is the name used for saves the player requests explicitly.
func ManualFilename(m Match) string {
	ext := singlePlayerExt
	if !m.SinglePlayer {
		ext = multiplayerExt
	}
	return fmt.Sprintf("%s_%04d%s", Sanitize(m.EmpireName), m.Turn, ext)
}

// Policy writes autosaves at turn boundaries. It is driven from the client
// loop and is not safe for concurrent use.
type Policy struct {
	Logger  *logrus.Logger
	Config  core.AutosaveConfig
	SaveDir string
	Saver   Saver

	turnsSinceAutosave int
	swept              bool
}

func NewPolicy(logger *logrus.Logger, cfg core.AutosaveConfig, saveDir string, saver Saver) *Policy {
	return &Policy{Logger: logger, Config: cfg, SaveDir: saveDir, Saver: saver}
}

// NewMatch resets the per-match state. The next autosave will sweep every
// old autosave from the save directory.
func (p *Policy) NewMatch() {
	p.turnsSinceAutosave = 0
	p.swept = false
}

// Autosave is called at every turn start; newGame marks the first turn of a
// match. It returns the record written, or false if no autosave was due.
func (p *Policy) Autosave(newGame bool, m Match) (Record, bool, error) {
	if newGame {
		p.NewMatch()
	}
	if !p.enabled(m) {
		return Record{}, false, nil
	}

	period := p.Config.Turns
	if period < 1 {
		period = 1
	}
	due := p.turnsSinceAutosave%period == 0
	p.turnsSinceAutosave++
	if !due {
		return Record{}, false, nil
	}

	rec := NewRecord(p.Config.Prefix, m)
	if !p.swept {
		if err := p.sweep(); err != nil {
			return rec, false, err
		}
		p.swept = true
	} else if err := p.prune(rec); err != nil {
		return rec, false, err
	}

	p.Logger.Infof("autosaving turn %d to %s", m.Turn, rec.Filename)
	if err := p.Saver.SaveGame(rec.Filename); err != nil {
		return rec, false, fmt.Errorf("autosave %s: %w", rec.Filename, err)
	}
	return rec, true, nil
}

// enabled reports whether autosaves apply to m. Only the host of a
// multiplayer game may save it, so other players never touch their save
// directory.
func (p *Policy) enabled(m Match) bool {
	if m.SinglePlayer {
		return p.Config.SinglePlayer
	}
	return p.Config.Multiplayer && m.Host
}

// sweep deletes every autosave in the save directory regardless of match.
func (p *Policy) sweep() error {
	names, err := p.list()
	if err != nil {
		return err
	}
	prefix := p.Config.Prefix + "_"
	for _, name := range names {
		ext := filepath.Ext(name)
		if strings.HasPrefix(name, prefix) && (ext == singlePlayerExt || ext == multiplayerExt) {
			p.remove(name)
		}
	}
	return nil
}

// prune deletes the oldest autosaves of the current match so that at most
// max_autosaves remain once rec has been written.
func (p *Policy) prune(rec Record) error {
	names, err := p.list()
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(rec.stem(p.Config.Prefix)+"_") +
		`\d{4}` + regexp.QuoteMeta(rec.Ext) + "$")
	var matching []string
	for _, name := range names {
		if pattern.MatchString(name) {
			matching = append(matching, name)
		}
	}
	sort.Strings(matching)

	keep := p.Config.MaxAutosaves - 1
	if keep < 0 {
		keep = 0
	}
	for len(matching) > keep {
		p.remove(matching[0])
		matching = matching[1:]
	}
	return nil
}

func (p *Policy) list() ([]string, error) {
	entries, err := os.ReadDir(p.SaveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading save directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (p *Policy) remove(name string) {
	if err := os.Remove(filepath.Join(p.SaveDir, name)); err != nil {
		p.Logger.Warnf("error removing old autosave %s: %s", name, err)
		return
	}
	p.Logger.Debugf("removed old autosave %s", name)
}
