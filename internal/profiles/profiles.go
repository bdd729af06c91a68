// Package profiles persists the scheduled mailbox automation profiles
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// LastRunLayout is how LastRun is written to the profiles file
const LastRunLayout = "2006-01-02 15:04:05"

// Mode selects what a profile does with the downloaded workbooks
type Mode string

const (
	ModeIMEI  Mode = "imei"
	ModeForms Mode = "forms"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrExists   = errors.New("profile already exists")
)

// Profile is one scheduled run: which mailbox to read, which subjects to
// accept and when to fire
type Profile struct {
	Name        string   `json:"name" validate:"required"`
	Mailbox     string   `json:"folder_path"`
	TitleFilter string   `json:"title_filter"`
	TodayOnly   bool     `json:"today_only"`
	Hour        int      `json:"hour" validate:"min=0,max=23"`
	Minute      int      `json:"minute" validate:"min=0,max=59"`
	Enabled     bool     `json:"enabled"`
	Recipients  []string `json:"recipients,omitempty" validate:"omitempty,dive,email"`
	Mode        Mode     `json:"mode,omitempty" validate:"omitempty,oneof=imei forms"`
	LastRun     string   `json:"last_run,omitempty"`
}

// EffectiveMode defaults an empty mode to imei
func (p Profile) EffectiveMode() Mode {
	if p.Mode == "" {
		return ModeIMEI
	}
	return p.Mode
}

// LastRunTime parses LastRun in loc. ok is false when the profile never ran
// or the stored value is not in LastRunLayout.
func (p Profile) LastRunTime(loc *time.Location) (time.Time, bool) {
	if p.LastRun == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(LastRunLayout, p.LastRun, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Slot returns the scheduled time on now's calendar day
func (p Profile) Slot(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, p.Hour, p.Minute, 0, 0, now.Location())
}

// Due reports whether the profile should fire at now: enabled, today's slot
// already reached, and no run since that slot. A tick that misses the exact
// minute still fires on the next tick the same day.
func (p Profile) Due(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	slot := p.Slot(now)
	if now.Before(slot) {
		return false
	}
	last, ok := p.LastRunTime(now.Location())
	return !ok || last.Before(slot)
}

// Store keeps the profile list in memory and mirrors it to a JSON file
type Store struct {
	mu       sync.Mutex
	path     string
	profiles []Profile
	validate *validator.Validate
	logger   *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:     path,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Load reads the profiles file. A missing file yields an empty list; an
// unparseable one is renamed to <path>.corrupt and the list starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("Profiles file not found, starting empty", "path", s.path)
		s.profiles = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read profiles: %w", err)
	}

	var list []Profile
	if err := json.Unmarshal(data, &list); err != nil {
		backup := s.path + ".corrupt"
		s.logger.Warn("Profiles file is corrupt, backing it up", "path", s.path, "backup", backup, "error", err)
		if rerr := os.Rename(s.path, backup); rerr != nil {
			return fmt.Errorf("backup corrupt profiles: %w", rerr)
		}
		s.profiles = nil
		return nil
	}

	for i := range list {
		if strings.TrimSpace(list[i].Mailbox) == "" {
			list[i].Mailbox = "INBOX"
		}
	}
	s.profiles = list
	s.logger.Info("Profiles loaded", "count", len(list), "path", s.path)
	return nil
}

// Save writes the list atomically: a temp file in the same directory is
// renamed over the target
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) save() error {
	list := s.profiles
	if list == nil {
		list = []Profile{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace profiles: %w", err)
	}
	return nil
}

// Validate checks field ranges and recipient addresses
func (s *Store) Validate(p Profile) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	return nil
}

// List returns a copy of every profile
func (s *Store) List() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.profiles)
}

func (s *Store) Get(name string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.profiles[i], nil
}

func (s *Store) Add(p Profile) error {
	if err := s.Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(p.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrExists, p.Name)
	}
	s.profiles = append(s.profiles, p)
	return s.save()
}

// Update replaces the profile called name; p may carry a new name
func (s *Store) Update(name string, p Profile) error {
	if err := s.Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if j := s.index(p.Name); j >= 0 && j != i {
		return fmt.Errorf("%w: %s", ErrExists, p.Name)
	}
	s.profiles[i] = p
	return s.save()
}

func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.profiles = slices.Delete(s.profiles, i, i+1)
	return s.save()
}

// Due returns the profiles that should fire at now
func (s *Store) Due(now time.Time) []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Profile
	for _, p := range s.profiles {
		if p.Due(now) {
			due = append(due, p)
		}
	}
	return due
}

// MarkRun stamps LastRun and persists it, so a crash mid-run does not fire
// the profile twice on the same day
func (s *Store) MarkRun(name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.profiles[i].LastRun = at.Format(LastRunLayout)
	return s.save()
}

func (s *Store) index(name string) int {
	return slices.IndexFunc(s.profiles, func(p Profile) bool { return p.Name == name })
}
