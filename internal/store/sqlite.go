package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a local SQLite file through database/sql.
type SQLite struct {
	path string

	mu  sync.RWMutex
	db  *sql.DB
	sql sqlBuilder
}

// NewSQLite returns an unconnected SQLite store for the file at path.
// ":memory:" opens a private in-memory database.
func NewSQLite(path string) *SQLite {
	return &SQLite{
		path: path,
		sql:  sqlBuilder{placeholder: func(int) string { return "?" }},
	}
}

func (s *SQLite) dsn() string {
	if s.path == "" || s.path == ":memory:" || strings.Contains(s.path, "?") {
		if s.path == "" {
			return ":memory:"
		}
		return s.path
	}
	return s.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Connect opens the database file and verifies it.
func (s *SQLite) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; this also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	slog.Info("connected to database", "driver", DriverSQLite, "path", s.path)
	return nil
}

func (s *SQLite) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotConnected
	}
	return s.db, nil
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// EnsureSchema creates the job and completeness tables if missing.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// sqliteValue converts values SQLite cannot store natively.
func sqliteValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, int, int32, int64, float64, bool, []byte:
		return v, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode %T: %w", v, err)
		}
		return string(b), nil
	}
}

func sqliteArgs(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		conv, err := sqliteValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}

// Insert adds one row.
func (s *SQLite) Insert(ctx context.Context, table string, rec Record) error {
	_, err := s.InsertBatch(ctx, table, []Record{rec})
	return err
}

// InsertBatch inserts all rows inside one transaction.
func (s *SQLite) InsertBatch(ctx context.Context, table string, recs []Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	cols := batchColumns(recs)
	if err := validateQuery(table, nil, cols...); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.sql.insert(table, cols))
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	var n int64
	for _, r := range recs {
		values := make([]any, len(cols))
		for j, c := range cols {
			values[j] = r[c]
		}
		args, err := sqliteArgs(values)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Query returns rows matching filter as column maps.
func (s *SQLite) Query(ctx context.Context, table string, filter Filter, opts QueryOptions) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if err := validateQuery(table, filter, opts.OrderBy); err != nil {
		return nil, err
	}
	query, values := s.sql.selectQuery(table, filter, opts)
	args, err := sqliteArgs(values)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Update applies changes to every row matching filter.
func (s *SQLite) Update(ctx context.Context, table string, filter Filter, changes Record) (int64, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if err := validateQuery(table, filter, sortedKeys(changes)...); err != nil {
		return 0, err
	}
	query, values := s.sql.update(table, filter, changes)
	args, err := sqliteArgs(values)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes every row matching filter.
func (s *SQLite) Delete(ctx context.Context, table string, filter Filter) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if err := validateQuery(table, filter); err != nil {
		return 0, err
	}
	query, values := s.sql.delete(table, filter)
	args, err := sqliteArgs(values)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Disconnect closes the database. It is safe to call more than once.
func (s *SQLite) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
