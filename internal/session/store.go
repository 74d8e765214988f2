package session

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/park285/chess-arena/internal/metrics"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

const shardCount = 16

// Store is a sharded map of resident sessions. Each operation holds
// exactly one shard lock, so callbacks get exclusive access to the
// session for their whole duration. Callbacks must not re-enter the
// store or block on I/O; hub sends are fine because they never block.
type Store struct {
	shards [shardCount]storeShard
}

type storeShard struct {
	mu sync.Mutex
	m  map[string]*Session
}

func NewStore() *Store {
	st := &Store{}
	for i := range st.shards {
		st.shards[i].m = make(map[string]*Session)
	}
	return st
}

func (st *Store) shard(gameID string) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(gameID))
	return &st.shards[h.Sum32()%shardCount]
}

// Insert adds a session; it refuses to overwrite an existing one.
func (st *Store) Insert(s *Session) error {
	sh := st.shard(s.GameID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[s.GameID]; ok {
		return ErrExists
	}
	sh.m[s.GameID] = s
	metrics.SessionsResident.Inc()
	return nil
}

// Read runs fn with the session under its shard lock.
func (st *Store) Read(gameID string, fn func(*Session)) error {
	return st.with(gameID, fn)
}

// Mutate runs fn with the session under its shard lock. The distinction
// from Read is for callers; both grant exclusive access.
func (st *Store) Mutate(gameID string, fn func(*Session)) error {
	return st.with(gameID, fn)
}

func (st *Store) with(gameID string, fn func(*Session)) error {
	sh := st.shard(gameID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.m[gameID]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	return nil
}

// Remove evicts a session; removing an absent id is a no-op error.
func (st *Store) Remove(gameID string) error {
	sh := st.shard(gameID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[gameID]; !ok {
		return ErrNotFound
	}
	delete(sh.m, gameID)
	metrics.SessionsResident.Dec()
	return nil
}

// Scan visits every resident session, one shard lock at a time.
func (st *Store) Scan(fn func(*Session)) {
	for i := range st.shards {
		sh := &st.shards[i]
		sh.mu.Lock()
		for _, s := range sh.m {
			fn(s)
		}
		sh.mu.Unlock()
	}
}

func (st *Store) Len() int {
	n := 0
	for i := range st.shards {
		sh := &st.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
