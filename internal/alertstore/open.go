package alertstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

// Store is the persistence API consumed by the manager and by incremental
// observers. Methods are synchronous; callers that must not block (the
// issue path) run them off their own context.
type Store interface {
	// RecordIssued inserts a new row for the alert and assigns the next
	// modification counter.
	RecordIssued(ctx context.Context, a alert.Alert, at time.Time) error

	// RecordAcknowledgement / RecordRetraction set the corresponding date
	// on the most recent open row for the identifier, bumping the counter.
	// ErrNotFound if no open row exists.
	RecordAcknowledgement(ctx context.Context, id alert.Identifier, at time.Time) error
	RecordRetraction(ctx context.Context, id alert.Identifier, at time.Time) error

	// Fetch returns all rows (open and closed) for the identifier, ordered
	// by issued date.
	Fetch(ctx context.Context, id alert.Identifier) ([]StoredAlert, error)

	// LookupAllUnacknowledged returns exactly the open rows.
	LookupAllUnacknowledged(ctx context.Context) ([]StoredAlert, error)

	// ExecuteQuery starts an incremental read of rows issued at or after
	// since; ContinueQuery resumes from a previous anchor. Rows come back
	// ascending by modification counter, truncated to limit. The returned
	// anchor covers every row scanned, not just the rows returned, so
	// filtered-out rows are not revisited.
	ExecuteQuery(ctx context.Context, since time.Time, limit int) (QueryAnchor, []StoredAlert, error)
	ContinueQuery(ctx context.Context, anchor QueryAnchor, limit int) (QueryAnchor, []StoredAlert, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown alertstore driver: " + cfg.Driver)
	}
}
