package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	dsn  string
	opts PoolOptions

	mu   sync.RWMutex
	pool *pgxpool.Pool
	sql  sqlBuilder
}

// NewPostgres returns an unconnected PostgreSQL store.
func NewPostgres(dsn string, opts PoolOptions) *Postgres {
	return &Postgres{
		dsn:  dsn,
		opts: opts,
		sql:  sqlBuilder{placeholder: func(n int) string { return "$" + strconv.Itoa(n) }},
	}
}

// Connect opens the pool and verifies it with a ping.
func (p *Postgres) Connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(p.dsn)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	if p.opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(p.opts.MaxConns)
	}
	if p.opts.MinConns > 0 {
		poolConfig.MinConns = int32(p.opts.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	p.mu.Lock()
	p.pool = pool
	p.mu.Unlock()

	slog.Info("connected to database", "driver", DriverPostgres, "database", poolConfig.ConnConfig.Database)
	return nil
}

func (p *Postgres) conn() (*pgxpool.Pool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return nil, ErrNotConnected
	}
	return p.pool, nil
}

// Ping checks the pool is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// EnsureSchema creates the job and completeness tables if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Insert adds one row.
func (p *Postgres) Insert(ctx context.Context, table string, rec Record) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	cols := sortedKeys(rec)
	if err := validateQuery(table, nil, cols...); err != nil {
		return err
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = rec[c]
	}
	if _, err := pool.Exec(ctx, p.sql.insert(table, cols), args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// InsertBatch copies all rows in one COPY FROM round trip.
func (p *Postgres) InsertBatch(ctx context.Context, table string, recs []Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	cols := batchColumns(recs)
	if err := validateQuery(table, nil, cols...); err != nil {
		return 0, err
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = r[c]
		}
		rows[i] = row
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Query returns rows matching filter as column maps.
func (p *Postgres) Query(ctx context.Context, table string, filter Filter, opts QueryOptions) ([]Record, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	if err := validateQuery(table, filter, opts.OrderBy); err != nil {
		return nil, err
	}
	query, args := p.sql.selectQuery(table, filter, opts)
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return result, nil
}

// Update applies changes to every row matching filter.
func (p *Postgres) Update(ctx context.Context, table string, filter Filter, changes Record) (int64, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	if err := validateQuery(table, filter, sortedKeys(changes)...); err != nil {
		return 0, err
	}
	query, args := p.sql.update(table, filter, changes)
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes every row matching filter.
func (p *Postgres) Delete(ctx context.Context, table string, filter Filter) (int64, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	if err := validateQuery(table, filter); err != nil {
		return 0, err
	}
	query, args := p.sql.delete(table, filter)
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Disconnect closes the pool. It is safe to call more than once.
func (p *Postgres) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
