package profile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddyhq/studybuddy/internal/store"
)

const (
	rosterKey        = "roster"
	profileKeyPrefix = "profile:"

	// DefaultName greets first-time students until they pick their own.
	DefaultName = "স্টুডেন্ট"

	dateLayout = "2006-01-02"
)

var (
	ErrInvalidPoints = errors.New("points award must be >= 0")
	ErrEmptyName     = errors.New("display name must not be empty")
)

// Profile is the single persisted record per student. The ID is generated once
// and never changes; Points only grow through AwardPoints.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	Points       int       `json:"points"`
	Streak       int       `json:"streak"`
	LastVisit    string    `json:"lastVisit"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Service owns profile and roster state with a single in-process cache in
// front of the persisted store. All mutations write through immediately.
type Service struct {
	mu    sync.Mutex
	kv    store.KV
	cache map[string]Profile
	now   func() time.Time
}

func NewService(kv store.KV) *Service {
	return &Service{
		kv:    kv,
		cache: make(map[string]Profile),
		now:   time.Now,
	}
}

// SetClock overrides the time source; tests use it to cross calendar days.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load returns the persisted profile for id, synthesizing a fresh one when the
// id is empty, unknown, or the stored record is unreadable.
func (s *Service) Load(ctx context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, id)
}

// Save overwrites the persisted profile unconditionally (last write wins).
// The record must already carry its immutable id.
func (s *Service) Save(ctx context.Context, p Profile) (Profile, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Profile{}, errors.New("profile id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return Profile{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.LastActiveAt = s.now().UTC()
	if err := s.persistLocked(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// RecordDailyVisit bumps the streak by exactly one the first time it is called
// on a new calendar date and is a no-op for the rest of that day.
func (s *Service) RecordDailyVisit(ctx context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadLocked(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	today := s.now().Format(dateLayout)
	if p.LastVisit == today {
		return p, nil
	}
	p.Streak++
	p.LastVisit = today
	p.LastActiveAt = s.now().UTC()
	if err := s.persistLocked(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// AwardPoints adds n (n >= 0) to the running total, persists it, and upserts
// the caller's snapshot into the all-users roster.
func (s *Service) AwardPoints(ctx context.Context, id string, n int) (Profile, error) {
	if n < 0 {
		return Profile{}, ErrInvalidPoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadLocked(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	p.Points += n
	p.LastActiveAt = s.now().UTC()
	if err := s.persistLocked(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SetAdmin flips the admin flag and persists the profile.
func (s *Service) SetAdmin(ctx context.Context, id string, isAdmin bool) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadLocked(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	p.IsAdmin = isAdmin
	if err := s.persistLocked(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Roster lists every known profile snapshot for the admin view.
func (s *Service) Roster(ctx context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosterLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context, id string) (Profile, error) {
	if id != "" {
		if p, ok := s.cache[id]; ok {
			return p, nil
		}
		var p Profile
		ok, err := store.LoadJSON(ctx, s.kv, profileKeyPrefix+id, &p)
		if err != nil {
			return Profile{}, err
		}
		if ok && p.ID == id {
			s.cache[id] = p
			return p, nil
		}
	}

	p := s.freshProfile(id)
	if err := s.persistLocked(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) freshProfile(id string) Profile {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	now := s.now()
	return Profile{
		ID:           id,
		Name:         DefaultName,
		Streak:       1,
		LastVisit:    now.Format(dateLayout),
		LastActiveAt: now.UTC(),
	}
}

func (s *Service) persistLocked(ctx context.Context, p Profile) error {
	if err := store.SaveJSON(ctx, s.kv, profileKeyPrefix+p.ID, p); err != nil {
		return err
	}
	s.cache[p.ID] = p
	return s.upsertRosterLocked(ctx, p)
}

func (s *Service) upsertRosterLocked(ctx context.Context, p Profile) error {
	roster, err := s.rosterLocked(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range roster {
		if roster[i].ID == p.ID {
			roster[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		roster = append(roster, p)
	}
	return store.SaveJSON(ctx, s.kv, rosterKey, roster)
}

func (s *Service) rosterLocked(ctx context.Context) ([]Profile, error) {
	var roster []Profile
	if _, err := store.LoadJSON(ctx, s.kv, rosterKey, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}
