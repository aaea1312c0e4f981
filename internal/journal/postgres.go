package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Reader lists recorded events
type Reader interface {
	ListSession(ctx context.Context, sessionID string, limit int) ([]Event, error)
}

// PostgresSink stores events in the session_events table
type PostgresSink struct {
	db *sql.DB
}

// OpenPostgres connects with the lib/pq driver
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return NewPostgresSink(db), nil
}

// NewPostgresSink wraps an existing connection pool
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Record inserts the event
func (s *PostgresSink) Record(ctx context.Context, e Event) error {
	query := `
		INSERT INTO session_events (id, session_id, token, type, question_id, stage, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID.String(),
		e.SessionID,
		e.Token,
		string(e.Type),
		nullInt(e.QuestionID),
		e.Stage,
		nullString(e.Message),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}

	return nil
}

// ListSession returns events of one session, oldest first
func (s *PostgresSink) ListSession(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, token, type, question_id, stage, message, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			id         string
			typ        string
			questionID sql.NullInt64
			message    sql.NullString
		)
		if err := rows.Scan(&id, &e.SessionID, &e.Token, &typ, &questionID, &e.Stage, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}

		e.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		e.Type = EventType(typ)
		if questionID.Valid {
			q := int(questionID.Int64)
			e.QuestionID = &q
		}
		e.Message = message.String

		events = append(events, e)
	}

	return events, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
