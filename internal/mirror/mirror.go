// Package mirror persists a best-effort copy of active session metadata.
// The server consults it on cache miss and deletes rows on cleanup; it is
// not a source of durability guarantees.
package mirror

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("mirror: row not found")
	ErrExists   = errors.New("mirror: row already exists")
)

// Row is the mirrored shape of an active session.
type Row struct {
	GameID    string    `json:"game_id"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the durable mirror. Insert fails with ErrExists on duplicate
// ids; Get returns ErrNotFound on miss; Delete of an absent row is not an
// error.
type Store interface {
	Insert(ctx context.Context, row Row) error
	Get(ctx context.Context, gameID string) (*Row, error)
	Delete(ctx context.Context, gameID string) error
	Close() error
}
