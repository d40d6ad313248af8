package study

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// TargetSentences is today's speaking drill, attempted in order.
var TargetSentences = []string{
	"I love learning English",
	"StudyBuddy is my friend",
	"I want to speak fluently",
}

var (
	ErrRewardNotReady = errors.New("challenge reward is not ready")
	ErrRewardClaimed  = errors.New("challenge reward already claimed today")
)

// ChallengeState is one user's progress for the current day.
type ChallengeState struct {
	Date          string `json:"date"`
	Progress      int    `json:"progress"`
	RewardReady   bool   `json:"rewardReady"`
	RewardClaimed bool   `json:"rewardClaimed"`
	Target        string `json:"target"`
}

// Challenge tracks per-user daily drill progress. Progress resets when the
// calendar date changes.
type Challenge struct {
	mu    sync.Mutex
	users map[string]*ChallengeState
	now   func() time.Time
}

func NewChallenge() *Challenge {
	return &Challenge{users: make(map[string]*ChallengeState), now: time.Now}
}

// SetClock overrides the time source for tests.
func (c *Challenge) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// State reports the user's progress for today.
func (c *Challenge) State(userID string) ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.todayLocked(userID)
}

// Check compares an attempt against the current target sentence. A correct
// attempt advances progress; finishing all sentences makes the reward ready.
func (c *Challenge) Check(userID, attempt string) (correct bool, state ChallengeState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.todayLocked(userID)
	if st.Progress >= len(TargetSentences) {
		return false, *st
	}
	if normalizeAttempt(attempt) != normalizeAttempt(st.Target) {
		return false, *st
	}
	st.Progress++
	if st.Progress >= len(TargetSentences) {
		st.RewardReady = true
		st.Target = ""
	} else {
		st.Target = TargetSentences[st.Progress]
	}
	return true, *st
}

// Claim consumes the reward. It succeeds exactly once per completed day.
func (c *Challenge) Claim(userID string) (ChallengeState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.todayLocked(userID)
	if st.RewardClaimed {
		return *st, ErrRewardClaimed
	}
	if !st.RewardReady {
		return *st, ErrRewardNotReady
	}
	st.RewardReady = false
	st.RewardClaimed = true
	return *st, nil
}

// todayLocked returns the state for the current date, resetting stale days.
// Callers must hold c.mu.
func (c *Challenge) todayLocked(userID string) *ChallengeState {
	today := c.now().Format("2006-01-02")
	st, ok := c.users[userID]
	if !ok || st.Date != today {
		st = &ChallengeState{Date: today, Target: TargetSentences[0]}
		c.users[userID] = st
	}
	return st
}

const strippedPunctuation = ".,/#!$%^&*;:{}=-_`~()"

// normalizeAttempt lowercases, strips punctuation and collapses surrounding
// whitespace so spoken transcripts compare fairly against typed targets.
func normalizeAttempt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(strippedPunctuation, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
