package profile

import (
	"context"
	"testing"
	"time"

	"github.com/studybuddyhq/studybuddy/internal/store"
)

func TestLoadSynthesizesFreshProfile(t *testing.T) {
	s := NewService(store.NewInMemoryKV())

	p, err := s.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.ID == "" {
		t.Fatalf("fresh profile has empty id")
	}
	if p.Name != DefaultName {
		t.Fatalf("Name = %q, want %q", p.Name, DefaultName)
	}
	if p.IsAdmin {
		t.Fatalf("fresh profile IsAdmin = true")
	}
	if p.Streak != 1 {
		t.Fatalf("Streak = %d, want 1", p.Streak)
	}
	if p.Points != 0 {
		t.Fatalf("Points = %d, want 0", p.Points)
	}
}

func TestLoadCorruptRecordFallsBackToDefaults(t *testing.T) {
	kv := store.NewInMemoryKV()
	if err := kv.Set(context.Background(), "profile:u1", []byte(`{"id": 42,`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s := NewService(kv)
	p, err := s.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Load() error = %v, corrupt data must not propagate", err)
	}
	if p.ID != "u1" || p.Name != DefaultName || p.Points != 0 {
		t.Fatalf("corrupt record did not reset to defaults: %+v", p)
	}
}

func TestAwardPointsAccumulatesAndUpsertsRoster(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	p, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, err = s.AwardPoints(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("AwardPoints() error = %v", err)
	}
	p, err = s.AwardPoints(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("AwardPoints(0) error = %v", err)
	}
	if p.Points != 10 {
		t.Fatalf("Points = %d, want 10", p.Points)
	}

	roster, err := s.Roster(ctx)
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
	if roster[0].ID != "u1" || roster[0].Points != 10 {
		t.Fatalf("roster entry = %+v, want updated snapshot", roster[0])
	}
}

func TestAwardPointsRejectsNegative(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	if _, err := s.AwardPoints(context.Background(), "u1", -1); err != ErrInvalidPoints {
		t.Fatalf("AwardPoints(-1) error = %v, want ErrInvalidPoints", err)
	}
}

func TestRecordDailyVisitIncrementsOncePerDay(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return day })

	p, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Streak != 1 {
		t.Fatalf("initial Streak = %d, want 1", p.Streak)
	}

	// Same calendar date: unchanged, twice.
	for i := 0; i < 2; i++ {
		p, err = s.RecordDailyVisit(ctx, "u1")
		if err != nil {
			t.Fatalf("RecordDailyVisit() error = %v", err)
		}
		if p.Streak != 1 {
			t.Fatalf("same-day Streak = %d, want 1", p.Streak)
		}
	}

	// Next day, and a later one: +1 each.
	s.SetClock(func() time.Time { return day.AddDate(0, 0, 1) })
	if p, _ = s.RecordDailyVisit(ctx, "u1"); p.Streak != 2 {
		t.Fatalf("next-day Streak = %d, want 2", p.Streak)
	}
	s.SetClock(func() time.Time { return day.AddDate(0, 0, 5) })
	if p, _ = s.RecordDailyVisit(ctx, "u1"); p.Streak != 3 {
		t.Fatalf("later-day Streak = %d, want 3", p.Streak)
	}
}

func TestSaveRequiresNameAndKeepsID(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	p, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := s.Save(ctx, Profile{ID: p.ID}); err != ErrEmptyName {
		t.Fatalf("Save() with empty name error = %v, want ErrEmptyName", err)
	}

	p.Name = "রিমা"
	p.Avatar = "data:image/png;base64,xyz"
	saved, err := s.Save(ctx, p)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID != "u1" || saved.Name != "রিমা" {
		t.Fatalf("saved profile = %+v", saved)
	}

	reloaded, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Name != "রিমা" || reloaded.Avatar == "" {
		t.Fatalf("reloaded profile lost edits: %+v", reloaded)
	}
}
