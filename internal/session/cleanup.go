package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/obslog"
)

// DefaultCleanupDelay is how long an abandoned session stays queryable
// before eviction.
const DefaultCleanupDelay = 5 * time.Minute

// Cleaner evicts sessions both players have left. A timer is armed at
// most once per abandonment; it is not cancelled if a player reconnects
// during the delay, so a reconnected game can still be evicted when the
// timer fires.
type Cleaner struct {
	store  *Store
	mirror mirror.Store
	delay  time.Duration
}

func NewCleaner(store *Store, m mirror.Store, delay time.Duration) *Cleaner {
	if delay <= 0 {
		delay = DefaultCleanupDelay
	}
	return &Cleaner{store: store, mirror: m, delay: delay}
}

// Arm schedules eviction of gameID unless a timer is already pending.
func (c *Cleaner) Arm(gameID string) {
	armed := false
	err := c.store.Mutate(gameID, func(s *Session) {
		if s.cleanup != nil {
			return
		}
		s.cleanup = time.AfterFunc(c.delay, func() { c.sweep(gameID) })
		armed = true
	})
	if err != nil {
		// Already evicted; nothing to schedule.
		return
	}
	if armed {
		obslog.L().Info("session_cleanup_armed",
			zap.String("game_id", gameID),
			zap.Duration("delay", c.delay),
		)
	}
}

func (c *Cleaner) sweep(gameID string) {
	if err := c.store.Remove(gameID); err != nil {
		obslog.L().Warn("session_cleanup_gone", zap.String("game_id", gameID))
		return
	}
	metrics.SessionsCleaned.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.mirror.Delete(ctx, gameID); err != nil {
		obslog.L().Error("session_cleanup_mirror_delete", zap.String("game_id", gameID), zap.Error(err))
	}
	obslog.L().Info("session_cleanup", zap.String("game_id", gameID))
}
