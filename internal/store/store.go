// Package store persists pipeline jobs and per-row completeness records.
//
// A Store is a thin, table-oriented CRUD surface over one of three backends:
// PostgreSQL (pgx), SQLite (modernc, pure Go) or process memory. Records are
// plain maps keyed by column name; filters are equality matches ANDed together.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Record is one row keyed by column name.
type Record = map[string]any

// Filter matches rows whose columns equal every given value.
type Filter = map[string]any

// QueryOptions controls ordering and paging of Query results.
type QueryOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the persistence collaborator used by the pipeline service.
type Store interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, table string, rec Record) error
	InsertBatch(ctx context.Context, table string, recs []Record) (int64, error)
	Query(ctx context.Context, table string, filter Filter, opts QueryOptions) ([]Record, error)
	Update(ctx context.Context, table string, filter Filter, changes Record) (int64, error)
	Delete(ctx context.Context, table string, filter Filter) (int64, error)
	Disconnect() error
}

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

var (
	// ErrNotConnected is returned when an operation runs before Connect.
	ErrNotConnected = errors.New("store not connected")

	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidIdentifier is returned for table or column names that are not plain identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnsupportedDriver is returned by Open for unknown driver names.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// PoolOptions sizes the connection pool of SQL backends.
type PoolOptions struct {
	MaxConns int
	MinConns int
}

// Open returns an unconnected store for the given driver.
// dsn is a PostgreSQL connection string or an SQLite file path; memory ignores it.
func Open(driver, dsn string, pool PoolOptions) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "pgx":
		return NewPostgres(dsn, pool), nil
	case DriverSQLite, "sqlite3":
		return NewSQLite(dsn), nil
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRegex.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

// quoteIdentifier wraps a column or table name in double quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// batchColumns is the sorted union of column names across recs.
func batchColumns(recs []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// sqlBuilder renders the CRUD statements shared by the SQL backends.
type sqlBuilder struct {
	placeholder func(n int) string
}

func (b sqlBuilder) insert(table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
		marks[i] = b.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// where renders filter conditions starting at placeholder index start.
func (b sqlBuilder) where(filter Filter, start int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := sortedKeys(filter)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%s = %s", quoteIdentifier(k), b.placeholder(start+i))
		args[i] = filter[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (b sqlBuilder) selectQuery(table string, filter Filter, opts QueryOptions) (string, []any) {
	where, args := b.where(filter, 1)
	query := "SELECT * FROM " + quoteIdentifier(table) + where
	if opts.OrderBy != "" {
		query += " ORDER BY " + quoteIdentifier(opts.OrderBy)
		if opts.Desc {
			query += " DESC"
		}
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return query, args
}

func (b sqlBuilder) update(table string, filter Filter, changes Record) (string, []any) {
	keys := sortedKeys(changes)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filter))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdentifier(k), b.placeholder(i+1))
		args = append(args, changes[k])
	}
	where, whereArgs := b.where(filter, len(keys)+1)
	return "UPDATE " + quoteIdentifier(table) + " SET " + strings.Join(sets, ", ") + where,
		append(args, whereArgs...)
}

func (b sqlBuilder) delete(table string, filter Filter) (string, []any) {
	where, args := b.where(filter, 1)
	return "DELETE FROM " + quoteIdentifier(table) + where, args
}

// validateQuery checks every identifier a statement will embed.
func validateQuery(table string, filter Filter, extra ...string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	for k := range filter {
		if err := checkIdent(k); err != nil {
			return err
		}
	}
	for _, e := range extra {
		if e == "" {
			continue
		}
		if err := checkIdent(e); err != nil {
			return err
		}
	}
	return nil
}
