package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/chess-arena/internal/mirror"
)

func newTestMirror(t *testing.T) mirror.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	m, err := mirror.NewRedis(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("mirror.NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCleanerEvictsAfterDelay(t *testing.T) {
	st := NewStore()
	mir := newTestMirror(t)
	ctx := context.Background()

	row := mirror.Row{GameID: "g1", White: "w", Black: "b", CreatedAt: time.Now()}
	if err := mir.Insert(ctx, row); err != nil {
		t.Fatalf("mirror insert: %v", err)
	}
	_ = st.Insert(New("g1", "w", "b", 0))

	c := NewCleaner(st, mir, 60*time.Millisecond)
	c.Arm("g1")

	// Still queryable before the delay elapses.
	if err := st.Read("g1", func(*Session) {}); err != nil {
		t.Fatalf("evicted too early: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return errors.Is(st.Read("g1", func(*Session) {}), ErrNotFound)
	})
	waitFor(t, time.Second, func() bool {
		_, err := mir.Get(ctx, "g1")
		return errors.Is(err, mirror.ErrNotFound)
	})
}

func TestCleanerSecondArmIsNoop(t *testing.T) {
	st := NewStore()
	mir := newTestMirror(t)
	_ = st.Insert(New("g1", "w", "b", 0))

	c := NewCleaner(st, mir, 50*time.Millisecond)
	c.Arm("g1")
	c.Arm("g1")

	var timers int
	_ = st.Read("g1", func(s *Session) {
		if s.cleanup != nil {
			timers = 1
		}
	})
	if timers != 1 {
		t.Fatal("expected exactly one pending timer")
	}

	waitFor(t, time.Second, func() bool {
		return errors.Is(st.Read("g1", func(*Session) {}), ErrNotFound)
	})
}

func TestCleanerArmOnMissingSession(t *testing.T) {
	st := NewStore()
	mir := newTestMirror(t)
	c := NewCleaner(st, mir, 10*time.Millisecond)
	c.Arm("absent") // must not panic or schedule anything
}
