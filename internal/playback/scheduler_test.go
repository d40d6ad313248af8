package playback

import (
	"testing"
	"time"
)

func TestScheduleIsGapless(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	off1, id1 := s.Schedule(200 * time.Millisecond)
	off2, id2 := s.Schedule(300 * time.Millisecond)
	off3, _ := s.Schedule(100 * time.Millisecond)

	if off1 != 0 {
		t.Fatalf("first chunk offset = %v, want 0", off1)
	}
	if off2 != 200*time.Millisecond {
		t.Fatalf("second chunk offset = %v, want 200ms", off2)
	}
	if off3 != 500*time.Millisecond {
		t.Fatalf("third chunk offset = %v, want 500ms", off3)
	}
	if id1 == id2 {
		t.Fatalf("source ids must be distinct")
	}
	if s.Active() != 3 {
		t.Fatalf("active = %d, want 3", s.Active())
	}
}

func TestScheduleNeverStartsInThePast(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.Schedule(100 * time.Millisecond)

	// The queue has drained; wall time is past the cursor.
	now = now.Add(2 * time.Second)
	off, _ := s.Schedule(100 * time.Millisecond)
	if off != 2*time.Second {
		t.Fatalf("offset = %v, want 2s", off)
	}
}

func TestStopClearsEverything(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.Schedule(400 * time.Millisecond)
	s.Schedule(400 * time.Millisecond)

	if cleared := s.Stop(); cleared != 2 {
		t.Fatalf("cleared = %d, want 2", cleared)
	}
	if s.Active() != 0 {
		t.Fatalf("active = %d after stop, want 0", s.Active())
	}

	// Cursor rewinds to zero; the next chunk plays immediately.
	off, _ := s.Schedule(100 * time.Millisecond)
	if off != 0 {
		t.Fatalf("offset after stop = %v, want 0", off)
	}
}

func TestReleaseShrinksActiveSet(t *testing.T) {
	s := NewScheduler()
	_, id := s.Schedule(50 * time.Millisecond)
	s.Release(id)
	if s.Active() != 0 {
		t.Fatalf("active = %d, want 0", s.Active())
	}
}
