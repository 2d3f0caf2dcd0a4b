package store

import (
	"context"
	"maps"
	"reflect"
	"sort"
	"sync"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Memory is a Store that keeps rows in process memory. Tables are created on
// first insert. It backs tests, the CLI and DB_DRIVER=memory.
type Memory struct {
	mu        sync.RWMutex
	connected bool
	tables    map[string][]Record
}

// NewMemory returns an unconnected memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Record)}
}

// Connect marks the store ready.
func (m *Memory) Connect(context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Ping reports ErrNotConnected until Connect has run.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return ErrNotConnected
	}
	return nil
}

// EnsureSchema registers the known tables so queries on them return empty results.
func (m *Memory) EnsureSchema(ctx context.Context) error {
	if err := m.Ping(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range []string{JobsTable, CompletenessTable} {
		if _, ok := m.tables[t]; !ok {
			m.tables[t] = nil
		}
	}
	return nil
}

// Insert adds a copy of rec.
func (m *Memory) Insert(ctx context.Context, table string, rec Record) error {
	_, err := m.InsertBatch(ctx, table, []Record{rec})
	return err
}

// InsertBatch adds copies of recs.
func (m *Memory) InsertBatch(_ context.Context, table string, recs []Record) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, ErrNotConnected
	}
	for _, r := range recs {
		m.tables[table] = append(m.tables[table], maps.Clone(r))
	}
	return int64(len(recs)), nil
}

// Query returns copies of the rows matching filter.
func (m *Memory) Query(_ context.Context, table string, filter Filter, opts QueryOptions) ([]Record, error) {
	if err := validateQuery(table, filter, opts.OrderBy); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return nil, ErrNotConnected
	}
	var result []Record
	for _, r := range m.tables[table] {
		if matches(r, filter) {
			result = append(result, maps.Clone(r))
		}
	}
	m.mu.RUnlock()

	if opts.OrderBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			a, b := result[i][opts.OrderBy], result[j][opts.OrderBy]
			if opts.Desc {
				a, b = b, a
			}
			return lessValue(a, b)
		})
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Update applies changes to every row matching filter.
func (m *Memory) Update(_ context.Context, table string, filter Filter, changes Record) (int64, error) {
	if err := validateQuery(table, filter, sortedKeys(changes)...); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, ErrNotConnected
	}
	var n int64
	for _, r := range m.tables[table] {
		if matches(r, filter) {
			maps.Copy(r, changes)
			n++
		}
	}
	return n, nil
}

// Delete removes every row matching filter.
func (m *Memory) Delete(_ context.Context, table string, filter Filter) (int64, error) {
	if err := validateQuery(table, filter); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, ErrNotConnected
	}
	rows := m.tables[table]
	kept := rows[:0]
	var n int64
	for _, r := range rows {
		if matches(r, filter) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return n, nil
}

// Disconnect marks the store closed. Data is kept until the value is dropped.
func (m *Memory) Disconnect() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func matches(r Record, filter Filter) bool {
	for k, want := range filter {
		if !equalValue(r[k], want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if fa, ok := convert.ToFloat(a); ok && convert.IsNumber(a) {
		if fb, ok := convert.ToFloat(b); ok && convert.IsNumber(b) {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func lessValue(a, b any) bool {
	if convert.IsNumber(a) && convert.IsNumber(b) {
		fa, _ := convert.ToFloat(a)
		fb, _ := convert.ToFloat(b)
		return fa < fb
	}
	if ta, ok := convert.ToTime(a); ok {
		if tb, ok := convert.ToTime(b); ok {
			return ta.Before(tb)
		}
	}
	return convert.ToString(a) < convert.ToString(b)
}
