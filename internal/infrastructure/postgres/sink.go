package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink appends fetched records to postgres tables as jsonb rows. Tables are
// created on first use.
type Sink struct {
	pool *pgxpool.Pool
	now  func() time.Time

	mu    sync.Mutex
	ready map[string]bool
}

func NewSink(pool *pgxpool.Pool) *Sink {
	return &Sink{
		pool:  pool,
		now:   time.Now,
		ready: make(map[string]bool),
	}
}

// Append copies records into table and returns the number of rows written.
// table may be schema qualified ("staging.orders").
func (s *Sink) Append(ctx context.Context, table string, records []json.RawMessage) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	ident, err := tableIdentifier(table)
	if err != nil {
		return 0, err
	}
	if err := s.ensureTable(ctx, ident); err != nil {
		return 0, err
	}

	fetchedAt := s.now()
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{rec, fetchedAt}
	}

	n, err := s.pool.CopyFrom(ctx, ident, []string{"payload", "fetched_at"}, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

func (s *Sink) ensureTable(ctx context.Context, ident pgx.Identifier) error {
	name := ident.Sanitize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[name] {
		return nil
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         BIGSERIAL   PRIMARY KEY,
			payload    JSONB       NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, name))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	s.ready[name] = true
	return nil
}

func tableIdentifier(table string) (pgx.Identifier, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}
