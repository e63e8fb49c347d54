package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping checks the pool can reach the database.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			session_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			submissions INT NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS interview_qa_history (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			cached BOOLEAN NOT NULL DEFAULT FALSE,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_qa_history_session_created ON interview_qa_history(session_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Settings returns stored values layered over the defaults.
func (s *Postgres) Settings(ctx context.Context) (Settings, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := DefaultSettings()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Postgres) SetSetting(ctx context.Context, key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

func (s *Postgres) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interview_sessions (session_id, mode, started_at, ended_at, submissions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET mode = EXCLUDED.mode, ended_at = EXCLUDED.ended_at, submissions = EXCLUDED.submissions
	`, rec.ID, rec.Mode, rec.StartedAt, rec.EndedAt, rec.Submissions)
	return err
}

func (s *Postgres) EndSession(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE interview_sessions SET ended_at = $2 WHERE session_id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (s *Postgres) AddSubmission(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE interview_sessions SET submissions = submissions + 1 WHERE session_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (s *Postgres) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, mode, started_at, ended_at, submissions
		FROM interview_sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var rec SessionRecord
		err := row.Scan(&rec.ID, &rec.Mode, &rec.StartedAt, &rec.EndedAt, &rec.Submissions)
		return rec, err
	})
}

func (s *Postgres) AppendQA(ctx context.Context, rec QARecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interview_qa_history (session_id, question, answer, cached, provider, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.SessionID, rec.Question, rec.Answer, rec.Cached, rec.Provider, rec.Model, rec.CreatedAt)
	return err
}

func (s *Postgres) History(ctx context.Context, sessionID string) ([]QARecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, question, answer, cached, provider, model, created_at
		FROM interview_qa_history
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (QARecord, error) {
		var rec QARecord
		err := row.Scan(&rec.SessionID, &rec.Question, &rec.Answer, &rec.Cached, &rec.Provider, &rec.Model, &rec.CreatedAt)
		return rec, err
	})
}
