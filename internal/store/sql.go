// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // pure Go sqlite driver

	"github.com/ManuGH/meetbot/internal/log"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Config holds connection pool parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns pool settings suitable for one bot process.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// SQLStore implements Store on database/sql. The DSN scheme selects the
// driver: "sqlite:" or a bare path for SQLite, "postgres://" for Postgres.
type SQLStore struct {
	DB      *sql.DB
	dialect dialect
	now     func() time.Time
	seq     atomic.Int64
}

var _ Store = (*SQLStore)(nil)

func parseDSN(dsn string, cfg Config) (string, string, dialect, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, dialectPostgres, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		dsn = strings.TrimPrefix(dsn, "sqlite:")
	case strings.Contains(dsn, "://"):
		return "", "", 0, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
	if dsn == "" {
		return "", "", 0, fmt.Errorf("%w: empty path", ErrUnsupportedDSN)
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	full := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dsn, cfg.BusyTimeout.Milliseconds())
	return "sqlite", full, dialectSQLite, nil
}

// Open connects, verifies connectivity and applies the schema.
func Open(ctx context.Context, dsn string, cfg Config) (*SQLStore, error) {
	driver, source, d, err := parseDSN(dsn, cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	s := &SQLStore{DB: db, dialect: d, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	logger := log.WithComponent("store")
	logger.Info().
		Str(log.FieldEvent, "store.opened").
		Str("driver", driver).
		Msg("store opened")
	return s, nil
}

// Close releases the pool.
func (s *SQLStore) Close() error {
	return s.DB.Close()
}

// rebind rewrites ? placeholders for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.DB.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.DB.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.DB.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) nowMs() int64 { return s.now().UnixMilli() }

// nextSeq returns a strictly increasing ordering key that survives restarts
// as long as the wall clock does not jump backwards.
func (s *SQLStore) nextSeq() int64 {
	for {
		last := s.seq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func msTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// VerifyIntegrity runs an SQLite integrity pragma. mode is "quick" or
// "full". It returns diagnostic rows, or nil when healthy.
func (s *SQLStore) VerifyIntegrity(ctx context.Context, mode string) ([]string, error) {
	if s.dialect != dialectSQLite {
		return nil, nil
	}
	pragma := "PRAGMA quick_check"
	if mode == "full" {
		pragma = "PRAGMA integrity_check"
	}
	rows, err := s.DB.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}
