package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"flushq/internal/queue"
	"flushq/internal/wire"
	logx "flushq/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Fixed-width UTC so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
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
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, string(b)); err != nil {
		return err
	}
	// Journals created before the canceled column existed.
	return s.ensureColumn(ctx, "items", "canceled", "INTEGER NOT NULL DEFAULT 0")
}

func (s *sqliteStore) ensureColumn(ctx context.Context, table, column, decl string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Put(ctx context.Context, r wire.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id is required")
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	history, err := json.Marshal(r.Attempts)
	if err != nil {
		return err
	}
	var completed any
	if r.CompletedAt != nil {
		completed = fmtTime(*r.CompletedAt)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items(id, state, payload, submitted_at, completed_at, attempts, history, last_error, canceled, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   state=excluded.state, payload=excluded.payload, completed_at=excluded.completed_at,
		   attempts=excluded.attempts, history=excluded.history, last_error=excluded.last_error,
		   canceled=excluded.canceled, updated_at=excluded.updated_at`,
		r.ID, r.State, string(r.Payload), fmtTime(r.SubmittedAt), completed,
		len(r.Attempts), string(history), nullStr(r.LastError()), r.Canceled, fmtTime(r.UpdatedAt),
	)
	return err
}

const selectItems = `SELECT id, state, payload, submitted_at, completed_at, history, canceled, updated_at FROM items`

func (s *sqliteStore) Get(ctx context.Context, id string) (wire.Record, bool, error) {
	if s == nil || s.db == nil {
		return wire.Record{}, false, ErrDisabled
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectItems+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Record{}, false, nil
	}
	if err != nil {
		return wire.Record{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) List(ctx context.Context, state string) ([]wire.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := selectItems
	var args []any
	if state != "" {
		q += ` WHERE state = ?`
		args = append(args, state)
	}
	q += ` ORDER BY submitted_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (wire.Record, error) {
	var (
		r                  wire.Record
		payload            string
		submitted, updated string
		completed, history sql.NullString
	)
	if err := row.Scan(&r.ID, &r.State, &payload, &submitted, &completed, &history, &r.Canceled, &updated); err != nil {
		return wire.Record{}, err
	}
	r.Payload = json.RawMessage(payload)

	var err error
	if r.SubmittedAt, err = parseTime(submitted); err != nil {
		return wire.Record{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return wire.Record{}, err
	}
	if completed.Valid {
		at, err := parseTime(completed.String)
		if err != nil {
			return wire.Record{}, err
		}
		r.CompletedAt = &at
	}
	if history.Valid && history.String != "" && history.String != "null" {
		var atts []queue.Attempt
		if err := json.Unmarshal([]byte(history.String), &atts); err != nil {
			return wire.Record{}, fmt.Errorf("item %s history: %w", r.ID, err)
		}
		r.Attempts = atts
	}
	return r, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(sqliteTimeLayout, s) }

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
