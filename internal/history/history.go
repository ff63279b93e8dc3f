// Package history persists per-task delivery outcomes in PostgreSQL so
// operators can audit what the relay did. Optional: a nil *Store is a
// no-op for deployments without a database.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/wecom-relay/internal/relay"
)

// Store records delivery outcomes in the relay_deliveries table.
type Store struct {
	pool *pgxpool.Pool
}

// NewDB creates a pgx connection pool and verifies connectivity.
func NewDB(ctx context.Context, databaseURL string, minConns, maxConns int32, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MinConns = minConns
	config.MaxConns = maxConns
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewStore creates a Store on the given pool. pool may be nil when the
// history log is disabled.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the relay_deliveries table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS relay_deliveries (
			id          BIGSERIAL PRIMARY KEY,
			task_id     TEXT        NOT NULL,
			message_id  TEXT        NOT NULL,
			channel_id  TEXT        NOT NULL,
			status      TEXT        NOT NULL,
			attempts    INT         NOT NULL,
			last_error  TEXT        NOT NULL DEFAULT '',
			duration_ms BIGINT      NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create relay_deliveries table: %w", err)
	}
	return nil
}

// Record inserts one delivery outcome. It implements relay.DeliveryRecorder.
func (s *Store) Record(ctx context.Context, rec relay.DeliveryRecord) error {
	if s == nil || s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_deliveries
			(task_id, message_id, channel_id, status, attempts, last_error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.TaskID, rec.MessageID, rec.ChannelID, string(rec.Status),
		rec.Attempts, rec.LastError, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

// Delivery is one row of the history log.
type Delivery struct {
	TaskID     string    `json:"task_id"`
	MessageID  string    `json:"message_id"`
	ChannelID  string    `json:"channel_id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT task_id, message_id, channel_id, status, attempts, last_error, duration_ms, recorded_at
		FROM relay_deliveries
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery records: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.TaskID, &d.MessageID, &d.ChannelID, &d.Status,
			&d.Attempts, &d.LastError, &d.DurationMS, &d.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Ping verifies database connectivity; nil stores report healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
