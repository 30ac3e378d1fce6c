package alertstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("alertstore: sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer keeps the modification counter monotonic without a
	// separate sequence table.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const nextCounter = `(SELECT COALESCE(MAX(modification_counter), 0) + 1 FROM alerts)`

func (s *sqliteStore) RecordIssued(ctx context.Context, a alert.Alert, at time.Time) error {
	row, err := NewStoredAlert(a, at)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts(alert_identifier, manager_identifier, issued_date,
		                    trigger_type, trigger_interval, interruption_level,
		                    sound, foreground_content, background_content,
		                    modification_counter)
		 VALUES(?,?,?,?,?,?,?,?,?,`+nextCounter+`)`,
		row.AlertIdentifier, row.ManagerIdentifier, row.IssuedDate.UnixMilli(),
		int(row.TriggerType), nullSeconds(row.TriggerInterval), string(row.InterruptionLevel),
		nullStr(row.Sound), nullStr(row.ForegroundContent), nullStr(row.BackgroundContent),
	)
	if err != nil {
		return err
	}
	s.log.Debug("recorded issued alert", logx.String("alert", a.Identifier.String()))
	return nil
}

func (s *sqliteStore) RecordAcknowledgement(ctx context.Context, id alert.Identifier, at time.Time) error {
	return s.closeLatestOpen(ctx, id, "acknowledged_date", at)
}

func (s *sqliteStore) RecordRetraction(ctx context.Context, id alert.Identifier, at time.Time) error {
	return s.closeLatestOpen(ctx, id, "retracted_date", at)
}

// closeLatestOpen sets one of the terminal dates on the most recent open
// row for the identifier, in place. column is one of the two date columns
// above, never caller input.
func (s *sqliteStore) closeLatestOpen(ctx context.Context, id alert.Identifier, column string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts
		    SET `+column+` = ?, modification_counter = `+nextCounter+`
		  WHERE id = (SELECT id FROM alerts
		               WHERE manager_identifier = ? AND alert_identifier = ?
		                 AND acknowledged_date IS NULL AND retracted_date IS NULL
		               ORDER BY modification_counter DESC LIMIT 1)`,
		at.UnixMilli(), id.SourceID, id.AlertID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `alert_identifier, manager_identifier, issued_date,
	acknowledged_date, retracted_date, trigger_type, trigger_interval,
	interruption_level, sound, foreground_content, background_content,
	modification_counter`

func (s *sqliteStore) Fetch(ctx context.Context, id alert.Identifier) ([]StoredAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM alerts
		  WHERE manager_identifier = ? AND alert_identifier = ?
		  ORDER BY issued_date ASC`,
		id.SourceID, id.AlertID,
	)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (s *sqliteStore) LookupAllUnacknowledged(ctx context.Context) ([]StoredAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM alerts
		  WHERE acknowledged_date IS NULL AND retracted_date IS NULL
		  ORDER BY modification_counter ASC`,
	)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (s *sqliteStore) ExecuteQuery(ctx context.Context, since time.Time, limit int) (QueryAnchor, []StoredAlert, error) {
	return s.query(ctx, QueryAnchor{Since: since}, limit)
}

func (s *sqliteStore) ContinueQuery(ctx context.Context, anchor QueryAnchor, limit int) (QueryAnchor, []StoredAlert, error) {
	return s.query(ctx, anchor, limit)
}

func (s *sqliteStore) query(ctx context.Context, anchor QueryAnchor, limit int) (QueryAnchor, []StoredAlert, error) {
	if limit <= 0 {
		return anchor, nil, nil
	}

	// High-water mark read first: anything written after it carries a larger
	// counter and stays visible to the next continuation.
	var maxCounter int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(modification_counter), 0) FROM alerts`).Scan(&maxCounter); err != nil {
		return anchor, nil, err
	}

	q := `SELECT ` + selectColumns + ` FROM alerts WHERE modification_counter > ?`
	args := []any{anchor.ModificationCounter}
	if !anchor.Since.IsZero() {
		q += ` AND issued_date >= ?`
		args = append(args, anchor.Since.UnixMilli())
	}
	q += ` ORDER BY modification_counter ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return anchor, nil, err
	}
	out, err := scanAll(rows)
	if err != nil {
		return anchor, nil, err
	}

	// A full page stops at its last row; a short page means the whole feed
	// was scanned, so the anchor jumps past filtered-out rows too. The
	// anchor never trails a returned row: the recording goroutine may have
	// written between the high-water read and the page scan, and an anchor
	// behind the page would hand that row out twice.
	next := anchor
	if len(out) > 0 && out[len(out)-1].ModificationCounter > next.ModificationCounter {
		next.ModificationCounter = out[len(out)-1].ModificationCounter
	}
	if len(out) < limit && maxCounter > next.ModificationCounter {
		next.ModificationCounter = maxCounter
	}
	return next, out, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE acknowledged_date IS NULL AND retracted_date IS NULL)
		   FROM alerts`,
	).Scan(&st.TotalRows, &st.OpenRows)
	return st, err
}

func scanAll(rows *sql.Rows) ([]StoredAlert, error) {
	defer rows.Close()
	var out []StoredAlert
	for rows.Next() {
		var (
			r            StoredAlert
			issuedMs     int64
			ackMs, retMs sql.NullInt64
			interval     sql.NullFloat64
			level        string
			trigType     int
			sound        sql.NullString
			fg, bg       sql.NullString
		)
		if err := rows.Scan(&r.AlertIdentifier, &r.ManagerIdentifier, &issuedMs,
			&ackMs, &retMs, &trigType, &interval, &level,
			&sound, &fg, &bg, &r.ModificationCounter); err != nil {
			return nil, err
		}
		r.IssuedDate = time.UnixMilli(issuedMs)
		if ackMs.Valid {
			t := time.UnixMilli(ackMs.Int64)
			r.AcknowledgedDate = &t
		}
		if retMs.Valid {
			t := time.UnixMilli(retMs.Int64)
			r.RetractedDate = &t
		}
		r.TriggerType = alert.TriggerType(trigType)
		if interval.Valid {
			d := time.Duration(interval.Float64 * float64(time.Second))
			r.TriggerInterval = &d
		}
		r.InterruptionLevel = alert.InterruptionLevel(level)
		r.Sound = sound.String
		r.ForegroundContent = fg.String
		r.BackgroundContent = bg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullSeconds(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return d.Seconds()
}
