package usecase

import (
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

// TokenTracker hands out per-token reply sequences and decides whether a
// reply token can still carry a message. It is owned by the dispatch loop
// and is not safe for concurrent use.
type TokenTracker struct {
	cfg    domain.TokenConfig
	now    func() time.Time
	states map[string]*domain.TokenState
	latest [domain.NumSurfaceKinds]string // latest fresh token per surface kind
}

// NewTokenTracker creates a tracker. now may be nil to use time.Now.
func NewTokenTracker(cfg domain.TokenConfig, now func() time.Time) *TokenTracker {
	if now == nil {
		now = time.Now
	}
	return &TokenTracker{
		cfg:    cfg,
		now:    now,
		states: make(map[string]*domain.TokenState),
	}
}

// NextSequence returns the next sequence for token, starting at 1 for a token
// never used before, and marks the token as used now.
func (t *TokenTracker) NextSequence(token string) int {
	state, ok := t.states[token]
	if !ok {
		state = &domain.TokenState{Token: token}
		t.states[token] = state
	}
	return state.Advance(t.now())
}

// IsUsable reports whether token is known, not expired and under budget
func (t *TokenTracker) IsUsable(token string) bool {
	return t.Check(token) == nil
}

// Check is IsUsable with the reason attached
func (t *TokenTracker) Check(token string) error {
	state, ok := t.states[token]
	if !ok {
		return domain.ErrTokenUnknown
	}
	return state.Check(t.cfg, t.now())
}

// Fresh records a token granted by a new inbound message and makes it the
// latest token for kind. Re-announcing a known token only refreshes its
// last used time; its sequence never goes back.
func (t *TokenTracker) Fresh(kind domain.SurfaceKind, token string) {
	now := t.now()
	if state, ok := t.states[token]; ok {
		state.Kind = kind
		state.Touch(now)
	} else {
		t.states[token] = &domain.TokenState{Token: token, Kind: kind, LastUsedAt: now}
	}
	t.latest[kind] = token
}

// Latest returns the latest fresh token for kind if it is still usable
func (t *TokenTracker) Latest(kind domain.SurfaceKind) (string, bool) {
	token := t.latest[kind]
	if token == "" || !t.IsUsable(token) {
		return "", false
	}
	return token, true
}

// SweepExpired evicts every expired token and returns how many were removed
func (t *TokenTracker) SweepExpired() int {
	now := t.now()
	removed := 0
	for token, state := range t.states {
		if !state.IsExpired(t.cfg, now) {
			continue
		}
		delete(t.states, token)
		if t.latest[state.Kind] == token {
			t.latest[state.Kind] = ""
		}
		removed++
	}
	return removed
}

// Get returns a copy of the state of token
func (t *TokenTracker) Get(token string) (domain.TokenState, bool) {
	state, ok := t.states[token]
	if !ok {
		return domain.TokenState{}, false
	}
	return *state, true
}

// Len returns the number of tracked tokens
func (t *TokenTracker) Len() int {
	return len(t.states)
}
