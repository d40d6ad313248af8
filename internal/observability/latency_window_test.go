package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageFirstAudio, 300)
	w.Observe(StageFirstAudio, 500)
	w.Observe(StageFirstAudio, 650)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageFirstAudio {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageFirstAudio)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 650 {
		t.Fatalf("LastMS = %.2f, want 650", s.LastMS)
	}
	if s.P50MS != 500 {
		t.Fatalf("P50MS = %.2f, want 500", s.P50MS)
	}
	if s.P95MS <= 500 || s.P95MS > 650 {
		t.Fatalf("P95MS = %.2f, want (500,650]", s.P95MS)
	}
	if s.TargetP95MS != 700 {
		t.Fatalf("TargetP95MS = %.2f, want 700", s.TargetP95MS)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe(StageTurnTotal, float64(100*(i+1)))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if snap.Stages[0].Samples != 4 {
		t.Fatalf("Samples = %d, want 4", snap.Stages[0].Samples)
	}
	if snap.Stages[0].LastMS != 1000 {
		t.Fatalf("LastMS = %.2f, want 1000", snap.Stages[0].LastMS)
	}
}

func TestLatencyWindowIgnoresInvalid(t *testing.T) {
	w := newLatencyWindow(4)
	w.Observe("", 100)
	w.Observe(StageTaskMath, -5)
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) = %d, want 0", got)
	}
}
