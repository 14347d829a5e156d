// Package postgres implements the storage interfaces against a remote,
// pooled PostgreSQL database via pgx/v5 and pgxpool, for deployments that
// run the gateway across multiple processes against shared state (the
// embedded storage/sqlite backend is single-process only).
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements storage.Store against a pgxpool-managed connection pool.
type Store struct {
	pool   *pgxpool.Pool
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures pool sizing and the keepalive jitter window.
type Config struct {
	DSN                 string
	PoolSize            int32
	KeepaliveJitterBase time.Duration // base of the 240-420s jitter window (spec.md section 5)
}

// New opens a pgxpool, runs migrations, and starts the keepalive worker.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = cfg.PoolSize
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &Store{pool: pool, cancel: cancel, done: make(chan struct{})}

	jitterBase := cfg.KeepaliveJitterBase
	if jitterBase <= 0 {
		jitterBase = 240 * time.Second
	}
	go s.keepaliveLoop(workerCtx, jitterBase)

	return s, nil
}

// runMigrations applies embedded SQL migrations via goose's database/sql
// compatible stdlib driver -- goose has no native pgx/v5 dialect driver, so
// this is the one place the pool's DSN is opened through database/sql
// rather than pgxpool, strictly for schema management at startup.
func runMigrations(dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// keepaliveLoop periodically pings the pool with a jittered interval
// (240-420s) so idle connections behind a load balancer or NAT don't get
// silently dropped between bursts of gateway traffic (spec.md section 5).
func (s *Store) keepaliveLoop(ctx context.Context, base time.Duration) {
	defer close(s.done)
	for {
		jitter := time.Duration(rand.Int64N(int64(180 * time.Second)))
		wait := base + jitter
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if err := s.pool.Ping(ctx); err != nil {
			slog.Warn("postgres keepalive ping failed", "error", err)
		}
	}
}

// Close stops the keepalive worker and closes the pool.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	s.pool.Close()
	return nil
}
