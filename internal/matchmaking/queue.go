package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/protocol"
)

var ErrAlreadyQueued = errors.New("player already in queue")

// DefaultNotifyCapacity bounds buffered wake-up pulses to the matcher.
const DefaultNotifyCapacity = 4096

// Result is the matcher's reply to one waiting player. On the wire it is
// tagged: {"result":"Ok","value":{"game_id":...,"color":...}} or
// {"result":"Err","value":"reason"}.
type Result struct {
	GameID string
	Color  protocol.Color
	Err    string
}

func (r Result) IsErr() bool { return r.Err != "" }

type okPayload struct {
	GameID string         `json:"game_id"`
	Color  protocol.Color `json:"color"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsErr() {
		return json.Marshal(struct {
			Result string `json:"result"`
			Value  string `json:"value"`
		}{"Err", r.Err})
	}
	return json.Marshal(struct {
		Result string    `json:"result"`
		Value  okPayload `json:"value"`
	}{"Ok", okPayload{GameID: r.GameID, Color: r.Color}})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var env struct {
		Result string          `json:"result"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Result {
	case "Ok":
		var p okPayload
		if err := json.Unmarshal(env.Value, &p); err != nil {
			return err
		}
		*r = Result{GameID: p.GameID, Color: p.Color}
		return nil
	case "Err":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		*r = Result{Err: s}
		return nil
	}
	return fmt.Errorf("unknown match result tag %q", env.Result)
}

type waiter struct {
	userID string
	reply  chan Result // buffered one slot, written exactly once
}

// Queue is the mutex-guarded FIFO of players waiting for an opponent.
// Critical sections cover push/pop only; nothing blocks while holding
// the lock.
type Queue struct {
	mu      sync.Mutex
	waiters []*waiter
	notify  chan struct{}
}

func NewQueue(notifyCapacity int) *Queue {
	if notifyCapacity <= 0 {
		notifyCapacity = DefaultNotifyCapacity
	}
	return &Queue{notify: make(chan struct{}, notifyCapacity)}
}

// Enqueue registers userID and blocks until the matcher replies or ctx
// ends. A user already waiting is rejected synchronously. When ctx ends
// first, the entry withdraws itself; a result that raced the withdrawal
// is still delivered.
func (q *Queue) Enqueue(ctx context.Context, userID string) (Result, error) {
	w := &waiter{userID: userID, reply: make(chan Result, 1)}

	q.mu.Lock()
	for _, other := range q.waiters {
		if other.userID == userID {
			q.mu.Unlock()
			return Result{}, ErrAlreadyQueued
		}
	}
	q.waiters = append(q.waiters, w)
	metrics.QueueWaiting.Set(float64(len(q.waiters)))
	q.mu.Unlock()

	obslog.L().Info("match_request", zap.String("user_id", userID))

	select {
	case q.notify <- struct{}{}:
	default:
	}

	select {
	case res := <-w.reply:
		return res, nil
	case <-ctx.Done():
		q.withdraw(userID)
		obslog.L().Info("match_withdrawn", zap.String("user_id", userID))
		select {
		case res := <-w.reply:
			return res, nil
		default:
		}
		return Result{}, ctx.Err()
	}
}

// withdraw removes userID from the FIFO; a no-op when already popped.
func (q *Queue) withdraw(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.waiters[:0]
	for _, w := range q.waiters {
		if w.userID != userID {
			kept = append(kept, w)
		}
	}
	q.waiters = kept
	metrics.QueueWaiting.Set(float64(len(q.waiters)))
}

// popPair removes the two oldest waiters, or reports none when fewer
// than two are queued.
func (q *Queue) popPair() (*waiter, *waiter, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) < 2 {
		return nil, nil, false
	}
	a, b := q.waiters[0], q.waiters[1]
	q.waiters = append(q.waiters[:0], q.waiters[2:]...)
	metrics.QueueWaiting.Set(float64(len(q.waiters)))
	return a, b, true
}

func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
