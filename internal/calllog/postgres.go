package calllog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertCallLog = `
INSERT INTO call_logs (
    id, stream_sid, call_sid, client_id, caller_number, callee_number,
    started_at, ended_at, duration_ms, recording_ref, fallback,
    caller_name, company, phone, summary, topics, details, transcript
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10, $11,
    $12, $13, $14, $15, $16, $17::jsonb, $18::jsonb
)
ON CONFLICT (stream_sid) DO NOTHING`

// PostgresSink stores entries in PostgreSQL.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSink connects to dsn and applies pending migrations.
func NewPostgresSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Call log database ready")
	return &PostgresSink{pool: pool, logger: logger}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Save inserts the entry. Saving the same stream twice keeps the first row.
func (s *PostgresSink) Save(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	details, err := json.Marshal(e.Record.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	transcript, err := json.Marshal(e.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	topics := e.Record.Topics
	if topics == nil {
		topics = []string{}
	}
	if e.Transcript == nil {
		transcript = []byte("[]")
	}
	if e.Record.Details == nil {
		details = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, insertCallLog,
		e.ID, e.StreamSID, e.CallSID, e.ClientID, e.CallerNumber, e.CalleeNumber,
		e.StartedAt, e.EndedAt, e.Duration().Milliseconds(), e.RecordingRef, e.Fallback,
		e.Record.CallerName, e.Record.Company, e.Record.Phone, e.Record.Summary, topics,
		string(details), string(transcript),
	)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *PostgresSink) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM call_logs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
