package views

import (
	"errors"
	"sync"
)

// View identifies one of the app's screens. The set is closed; any view is
// reachable from any other and there is no history stack.
type View string

const (
	ViewDashboard  View = "dashboard"
	ViewStudy      View = "study"
	ViewMathSolver View = "math"
	ViewTalk       View = "talk"
	ViewHelper     View = "helper"
	ViewQA         View = "qa"
	ViewSupport    View = "support"
	ViewAdmin      View = "admin"
)

var ErrUnknownView = errors.New("unknown view")

var known = map[View]bool{
	ViewDashboard:  true,
	ViewStudy:      true,
	ViewMathSolver: true,
	ViewTalk:       true,
	ViewHelper:     true,
	ViewQA:         true,
	ViewSupport:    true,
	ViewAdmin:      true,
}

// Valid reports whether v is a member of the closed view enumeration.
func Valid(v View) bool { return known[v] }

// Router tracks the current view per user. Navigate replaces the value
// unconditionally; exactly one view is current for a user at any time.
type Router struct {
	mu      sync.RWMutex
	current map[string]View
}

func NewRouter() *Router {
	return &Router{current: make(map[string]View)}
}

// Current returns the user's active view, defaulting to the dashboard.
func (r *Router) Current(userID string) View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.current[userID]; ok {
		return v
	}
	return ViewDashboard
}

// Navigate switches the user to v. There is no transition validation beyond
// membership: the view graph is flat.
func (r *Router) Navigate(userID string, v View) error {
	if !Valid(v) {
		return ErrUnknownView
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[userID] = v
	return nil
}
