// Package sqlitepool wraps a zombiezen sqlitex pool with the connection
// settings shared by the checkpoint and step log stores.
//
// Callers borrow a connection with Take, return it with Put, and manage
// write transactions with sqlitex.ImmediateTransaction.
package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const defaultPoolSize = 4

type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string
	// PoolSize defaults to 4.
	PoolSize int
	Logger   *slog.Logger
	// Schema is executed on every new connection. It must be idempotent.
	Schema string
}

type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.Schema)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	logger.Info("sqlite pool opened", slog.String("path", cfg.Path), slog.Int("pool_size", poolSize))

	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close blocks until every borrowed connection has been returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", slog.String("path", p.path), slog.Any("error", err))
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", slog.String("path", p.path))
	return nil
}

func prepareConnection(conn *sqlite.Conn, schema string) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if schema != "" {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return fmt.Errorf("sqlitepool: schema: %w", err)
		}
	}
	return nil
}
