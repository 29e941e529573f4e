package events

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	id "canopy/pkg/domain"
)

// PostgresStore persists the event log in PostgreSQL for durable retention.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to the configured DSN and prepares the schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection. Schema management is the
// caller's responsibility.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS domain_events (
	seq        BIGSERIAL PRIMARY KEY,
	category   TEXT        NOT NULL,
	occurred   TIMESTAMPTZ NOT NULL,
	account    TEXT        NOT NULL,
	action     TEXT        NOT NULL,
	subject    TEXT        NOT NULL,
	reason     TEXT        NOT NULL DEFAULT '',
	request_id TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS domain_events_account_idx ON domain_events (account, seq);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate domain_events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	const q = `
INSERT INTO domain_events (category, occurred, account, action, subject, reason, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q,
		string(event.Action.Category()),
		event.Timestamp,
		event.Account.String(),
		string(event.Action),
		event.Subject,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append domain event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account id.AccountID) ([]Event, error) {
	const q = `
SELECT category, occurred, account, action, subject, reason, request_id
FROM domain_events WHERE account = $1 ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, account.String())
	if err != nil {
		return nil, fmt.Errorf("list domain events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var category, acct string
		if err := rows.Scan(&category, &e.Timestamp, &acct, &e.Action, &e.Subject, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		e.Category = Category(category)
		e.Account = id.AccountID(acct)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
