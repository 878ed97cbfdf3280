package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/history"
	"github.com/andresmejia3/vigil/internal/report"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store archives finished monitoring sessions in PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// SessionRow is one archived session.
type SessionRow struct {
	ID            string
	SubjectID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Summary       report.Summary
	IntervalCount int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the archive tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			total_blinks INT NOT NULL,
			blink_rate DOUBLE PRECISION NOT NULL,
			microsleeps INT NOT NULL,
			final_sleep_percentage DOUBLE PRECISION NOT NULL,
			recommendation TEXT NOT NULL,
			archived_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS state_intervals (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			state TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			duration DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS state_intervals_session_id_idx ON state_intervals (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// execer is satisfied by both *pgx.Conn and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SaveSession upserts the session row. Re-saving a session replaces its intervals.
func (s *Store) SaveSession(ctx context.Context, e report.Export) error {
	return saveSession(ctx, s.conn, e)
}

func saveSession(ctx context.Context, q execer, e report.Export) error {
	if _, err := q.Exec(ctx, "DELETE FROM state_intervals WHERE session_id = $1", e.SessionID); err != nil {
		return err
	}
	sum := e.Summary
	_, err := q.Exec(ctx, `
		INSERT INTO sessions (id, subject_id, started_at, ended_at, duration_seconds, total_blinks,
			blink_rate, microsleeps, final_sleep_percentage, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			total_blinks = EXCLUDED.total_blinks,
			blink_rate = EXCLUDED.blink_rate,
			microsleeps = EXCLUDED.microsleeps,
			final_sleep_percentage = EXCLUDED.final_sleep_percentage,
			recommendation = EXCLUDED.recommendation,
			archived_at = NOW()
	`, e.SessionID, e.SubjectID, e.StartedAt, e.EndedAt, sum.DurationSeconds, sum.TotalBlinks,
		sum.BlinkRatePerMinute, sum.MicrosleepCount, sum.FinalSleepPercentage, sum.Recommendation)
	return err
}

// InsertInterval saves one state interval of a session.
func (s *Store) InsertInterval(ctx context.Context, sessionID string, iv history.Interval) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO state_intervals (session_id, state, start_time, end_time, duration)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionID, iv.State.String(), iv.Start, iv.End, iv.Duration)
	return err
}

// Export archives a finished session in one transaction. It makes Store a report.Sink.
func (s *Store) Export(ctx context.Context, e report.Export) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := saveSession(ctx, tx, e); err != nil {
		return fmt.Errorf("archive session %s: %w", e.SessionID, err)
	}

	rows := make([][]any, 0, len(e.Intervals))
	for _, iv := range e.Intervals {
		rows = append(rows, []any{e.SessionID, iv.State.String(), iv.Start, iv.End, iv.Duration})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"state_intervals"},
		[]string{"session_id", "state", "start_time", "end_time", "duration"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("archive intervals for %s: %w", e.SessionID, err)
	}

	return tx.Commit(ctx)
}

// ListSessions returns archived sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT s.id, s.subject_id, s.started_at, s.ended_at, s.duration_seconds, s.total_blinks,
			s.blink_rate, s.microsleeps, s.final_sleep_percentage, s.recommendation,
			COUNT(i.id)
		FROM sessions s
		LEFT JOIN state_intervals i ON i.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.StartedAt, &r.EndedAt,
			&r.Summary.DurationSeconds, &r.Summary.TotalBlinks, &r.Summary.BlinkRatePerMinute,
			&r.Summary.MicrosleepCount, &r.Summary.FinalSleepPercentage, &r.Summary.Recommendation,
			&r.IntervalCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSessionIntervals returns the intervals of one session in start order.
// An unknown session yields ErrNotFound.
func (s *Store) GetSessionIntervals(ctx context.Context, sessionID string) ([]history.Interval, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", sessionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, types.ErrNotFound)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT state, start_time, end_time, duration
		FROM state_intervals
		WHERE session_id = $1
		ORDER BY start_time ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []history.Interval{}
	for rows.Next() {
		var (
			label string
			iv    history.Interval
		)
		if err := rows.Scan(&label, &iv.Start, &iv.End, &iv.Duration); err != nil {
			return nil, err
		}
		iv.State = classifier.ParseState(label)
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS state_intervals CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
	`)
	return err
}
