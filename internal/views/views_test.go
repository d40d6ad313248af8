package views

import (
	"errors"
	"testing"
)

func TestRouterDefaultsToDashboard(t *testing.T) {
	r := NewRouter()
	if got := r.Current("u1"); got != ViewDashboard {
		t.Fatalf("Current() = %q, want %q", got, ViewDashboard)
	}
}

func TestNavigateAnyToAny(t *testing.T) {
	r := NewRouter()
	seq := []View{ViewTalk, ViewAdmin, ViewStudy, ViewDashboard, ViewQA}
	for _, v := range seq {
		if err := r.Navigate("u1", v); err != nil {
			t.Fatalf("Navigate(%q) error = %v", v, err)
		}
		if got := r.Current("u1"); got != v {
			t.Fatalf("Current() = %q, want %q", got, v)
		}
	}
}

func TestNavigateRejectsUnknownView(t *testing.T) {
	r := NewRouter()
	if err := r.Navigate("u1", View("settings2")); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("Navigate(unknown) error = %v, want ErrUnknownView", err)
	}
	if got := r.Current("u1"); got != ViewDashboard {
		t.Fatalf("failed navigation must not change view, got %q", got)
	}
}
