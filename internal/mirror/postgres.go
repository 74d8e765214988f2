package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Postgres mirrors rows into the active_games table:
//
//	active_games(game_id uuid primary key, white text, black text,
//	             created_at timestamptz not null default now())
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Insert(ctx context.Context, row Row) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO active_games (game_id, white, black, created_at) VALUES ($1, $2, $3, $4)`,
		row.GameID, row.White, row.Black, row.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrExists
	}
	return err
}

func (p *Postgres) Get(ctx context.Context, gameID string) (*Row, error) {
	var row Row
	err := p.db.QueryRowContext(ctx,
		`SELECT game_id, white, black, created_at FROM active_games WHERE game_id = $1`,
		gameID,
	).Scan(&row.GameID, &row.White, &row.Black, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (p *Postgres) Delete(ctx context.Context, gameID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM active_games WHERE game_id = $1`, gameID)
	return err
}
