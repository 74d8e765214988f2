package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/protocol"
	"github.com/park285/chess-arena/internal/session"
)

// Matcher drains the queue in FIFO pairs and allocates a session per
// pair: mirror row first, then the resident session, then the replies.
// The first popped player takes White.
type Matcher struct {
	queue  *Queue
	store  *session.Store
	mirror mirror.Store
	hubCap int
}

func NewMatcher(q *Queue, st *session.Store, m mirror.Store, hubCapacity int) *Matcher {
	return &Matcher{queue: q, store: st, mirror: m, hubCap: hubCapacity}
}

// Run pairs players until ctx ends. Each notification pulse drains every
// currently formable pair.
func (m *Matcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queue.notify:
		}
		m.drain(ctx)
	}
}

func (m *Matcher) drain(ctx context.Context) {
	for {
		white, black, ok := m.queue.popPair()
		if !ok {
			return
		}

		gameID := uuid.NewString()
		row := mirror.Row{
			GameID:    gameID,
			White:     white.userID,
			Black:     black.userID,
			CreatedAt: time.Now(),
		}
		if err := m.mirror.Insert(ctx, row); err != nil {
			// This pair is dropped; no retry (at-most-once delivery).
			obslog.L().Error("match_mirror_write_failed",
				zap.String("game_id", gameID),
				zap.String("white", white.userID),
				zap.String("black", black.userID),
				zap.Error(err),
			)
			metrics.MatchFailures.Inc()
			reason := fmt.Sprintf("session creation failed: %v", err)
			white.reply <- Result{Err: reason}
			black.reply <- Result{Err: reason}
			continue
		}

		s := session.New(gameID, white.userID, black.userID, m.hubCap)
		if err := m.store.Insert(s); err != nil {
			// Fresh uuid colliding with a resident session means the
			// store is corrupt; fail loudly.
			panic(fmt.Sprintf("matchmaking: insert session %s: %v", gameID, err))
		}

		obslog.L().Info("match_paired",
			zap.String("game_id", gameID),
			zap.String("white", white.userID),
			zap.String("black", black.userID),
		)
		metrics.MatchesPaired.Inc()

		// Reply slots are one-deep, so these never block. A waiter that
		// withdrew after being popped simply never reads its slot; the
		// session exists regardless.
		white.reply <- Result{GameID: gameID, Color: protocol.White}
		black.reply <- Result{GameID: gameID, Color: protocol.Black}
	}
}
