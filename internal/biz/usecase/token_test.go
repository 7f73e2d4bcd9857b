package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenTracker_NextSequence_Monotonic(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)

	prev := 0
	for i := 0; i < 8; i++ {
		seq := tracker.NextSequence("MSG1")
		if seq <= prev {
			t.Fatalf("Expected sequence to increase, got %d after %d", seq, prev)
		}
		prev = seq
	}
	if prev != 8 {
		t.Errorf("Expected last sequence 8, got %d", prev)
	}

	if got := tracker.NextSequence("MSG2"); got != 1 {
		t.Errorf("Expected unseen token to start at 1, got %d", got)
	}
}

func TestTokenTracker_IsUsable_Budget(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)
	tracker.Fresh(domain.SurfaceGroupReply, "MSG1")

	for i := 1; i <= 5; i++ {
		if !tracker.IsUsable("MSG1") {
			t.Fatalf("Expected token usable before reply %d", i)
		}
		tracker.NextSequence("MSG1")
	}
	if tracker.IsUsable("MSG1") {
		t.Error("Expected token unusable after 5 replies")
	}
	if err := tracker.Check("MSG1"); !errors.Is(err, domain.ErrTokenExhausted) {
		t.Errorf("Expected ErrTokenExhausted, got %v", err)
	}
}

func TestTokenTracker_IsUsable_Unknown(t *testing.T) {
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), nil)
	if tracker.IsUsable("nope") {
		t.Error("Expected unknown token to be unusable")
	}
	if err := tracker.Check("nope"); !errors.Is(err, domain.ErrTokenUnknown) {
		t.Errorf("Expected ErrTokenUnknown, got %v", err)
	}
}

func TestTokenTracker_Expiry(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)
	tracker.Fresh(domain.SurfaceUserReply, "MSG1")
	tracker.NextSequence("MSG1")

	clock.Advance(300 * time.Second)
	if !tracker.IsUsable("MSG1") {
		t.Error("Expected token usable at exactly the expiry window")
	}

	clock.Advance(time.Second)
	if err := tracker.Check("MSG1"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
	if _, ok := tracker.Latest(domain.SurfaceUserReply); ok {
		t.Error("Expected no latest token once expired")
	}
}

func TestTokenTracker_Fresh_KeepsSequence(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)
	tracker.Fresh(domain.SurfaceGroupReply, "MSG1")
	tracker.NextSequence("MSG1")
	tracker.NextSequence("MSG1")

	clock.Advance(time.Minute)
	tracker.Fresh(domain.SurfaceGroupReply, "MSG1")

	state, ok := tracker.Get("MSG1")
	if !ok {
		t.Fatal("Expected token to be tracked")
	}
	if state.Sequence != 2 {
		t.Errorf("Expected sequence 2 after re-announce, got %d", state.Sequence)
	}
	if !state.LastUsedAt.Equal(clock.Now()) {
		t.Error("Expected LastUsedAt to be refreshed")
	}
}

func TestTokenTracker_Latest(t *testing.T) {
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), newFakeClock().Now)

	if _, ok := tracker.Latest(domain.SurfaceGroupReply); ok {
		t.Error("Expected no latest token initially")
	}

	tracker.Fresh(domain.SurfaceGroupReply, "MSG1")
	tracker.Fresh(domain.SurfaceGroupReply, "MSG2")
	tracker.Fresh(domain.SurfaceUserReply, "MSG3")

	if token, ok := tracker.Latest(domain.SurfaceGroupReply); !ok || token != "MSG2" {
		t.Errorf("Expected MSG2, got %q (%v)", token, ok)
	}
	if token, ok := tracker.Latest(domain.SurfaceUserReply); !ok || token != "MSG3" {
		t.Errorf("Expected MSG3, got %q (%v)", token, ok)
	}
	if _, ok := tracker.Latest(domain.SurfaceDirectMessage); ok {
		t.Error("Expected no direct message token")
	}
}

func TestTokenTracker_SweptTokenStaysUnknown(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)
	tracker.Fresh(domain.SurfaceGroupReply, "MSG1")
	tracker.NextSequence("MSG1")

	clock.Advance(301 * time.Second)
	if removed := tracker.SweepExpired(); removed != 1 {
		t.Fatalf("Expected 1 swept token, got %d", removed)
	}
	if err := tracker.Check("MSG1"); !errors.Is(err, domain.ErrTokenUnknown) {
		t.Errorf("Expected ErrTokenUnknown, got %v", err)
	}
	if _, ok := tracker.Latest(domain.SurfaceGroupReply); ok {
		t.Error("Expected no latest token after sweep")
	}
}

func TestTokenTracker_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTokenTracker(domain.DefaultTokenConfig(), clock.Now)
	tracker.Fresh(domain.SurfaceGroupReply, "old")

	clock.Advance(200 * time.Second)
	tracker.Fresh(domain.SurfaceUserReply, "new")

	clock.Advance(150 * time.Second)
	if removed := tracker.SweepExpired(); removed != 1 {
		t.Errorf("Expected 1 token swept, got %d", removed)
	}
	if _, ok := tracker.Get("old"); ok {
		t.Error("Expected old token to be evicted")
	}
	if _, ok := tracker.Get("new"); !ok {
		t.Error("Expected new token to survive")
	}
	if tracker.Len() != 1 {
		t.Errorf("Expected 1 token left, got %d", tracker.Len())
	}
}
