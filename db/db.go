// Package db provides the relational mirror store for the sync engine.
//
// The store wraps an sqlx-managed MySQL pool. All writes are natural-key
// upserts so that repeated sync passes over unchanged source data are no-ops
// at the row level, and multi-statement writes run through Transaction,
// which retries deadlocks, lock-wait timeouts and connection loss with
// exponential backoff and jitter.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx" // helper library
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = time.Hour

	// probeInterval is how often the background liveness probe pings the
	// pool.
	probeInterval = 30 * time.Second

	// maxTxAttempts bounds Transaction's retry loop.
	maxTxAttempts = 3

	// reconnectDelay is the pause before retrying an in-flight call after
	// the pool has been rebuilt on connection loss.
	reconnectDelay = 500 * time.Millisecond
)

// MySQL server error numbers treated as retryable within a transaction.
const (
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
	mysqlErrServerGone      = 2006
	mysqlErrServerLost      = 2013
)

// Store provides a wrapper around the sqlx connection pool for
// application-specific database operations.
type Store struct {
	mu   sync.RWMutex
	db   *sqlx.DB
	dsn  string
	log  *slog.Logger
	stop chan struct{}
	once sync.Once
}

// NewStore opens a bounded connection pool against the given MySQL DSN and
// starts the background liveness probe. The DSN must enable parseTime so
// DATE/DATETIME columns scan into time.Time.
func NewStore(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo},
		))
	}

	db, err := open(dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:   db,
		dsn:  dsn,
		log:  logger,
		stop: make(chan struct{}),
	}
	go s.probe()
	return s, nil
}

// open opens and pings a new pool with the standard bounds.
func open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	setPoolBounds(db)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// setPoolBounds applies the standard pool limits. Every pool the store ever
// holds, including the lazy fallback installed when a rebuild fails, must
// pass through here.
func setPoolBounds(db *sqlx.DB) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
}

// Close stops the liveness probe and closes the pool.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// pool returns the current pool under a read lock.
func (s *Store) pool() *sqlx.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// probe periodically pings the pool and rebuilds it on failure.
func (s *Store) probe() {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.pool().Ping(); err != nil {
				s.log.Warn(fmt.Sprintf("liveness probe failed, rebuilding pool: %v", err))
				s.rebuild()
			}
		}
	}
}

// rebuild tears down the pool and opens a fresh one. The old pool is closed
// regardless of whether the replacement could be opened.
func (s *Store) rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.db.Close()
	db, err := open(s.dsn)
	if err != nil {
		s.log.Error(fmt.Sprintf("pool rebuild failed: %v", err))
		// Fall back to a lazily-connecting pool; the next probe or call
		// retries. The fallback carries the same bounds as a healthy pool.
		db, _ = sqlx.Open("mysql", s.dsn)
		if db != nil {
			setPoolBounds(db)
		}
	}
	s.db = db
}

// Query runs a read query against the pool. On a connection-loss-class error
// the pool is rebuilt and the query retried once after a short delay.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	rows, err := s.pool().QueryxContext(ctx, query, args...)
	if err != nil && isConnErr(err) {
		s.log.Warn(fmt.Sprintf("query connection error, rebuilding pool: %v", err))
		s.rebuild()
		if werr := waitCtx(ctx, reconnectDelay); werr != nil {
			return nil, werr
		}
		rows, err = s.pool().QueryxContext(ctx, query, args...)
	}
	return rows, err
}

// Exec runs a single write statement against the pool with the same
// rebuild-and-retry-once behaviour as Query.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.pool().ExecContext(ctx, query, args...)
	if err != nil && isConnErr(err) {
		s.log.Warn(fmt.Sprintf("exec connection error, rebuilding pool: %v", err))
		s.rebuild()
		if werr := waitCtx(ctx, reconnectDelay); werr != nil {
			return nil, werr
		}
		res, err = s.pool().ExecContext(ctx, query, args...)
	}
	return res, err
}

// waitCtx pauses for d or until ctx is cancelled.
func waitCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Transaction runs fn inside a READ COMMITTED transaction, committing on a
// nil return and rolling back otherwise. Deadlocks, lock-wait timeouts and
// connection loss roll back and retry up to maxTxAttempts with exponential
// backoff plus jitter; the final error propagates after exhaustion.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.RandomizationFactor = 0.5

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if isConnErr(lastErr) {
			s.log.Warn(fmt.Sprintf("transaction connection error, rebuilding pool: %v", lastErr))
			s.rebuild()
		}
		if attempt == maxTxAttempts {
			break
		}
		wait := policy.NextBackOff()
		s.log.Warn(fmt.Sprintf("transaction attempt %d failed (%v), retrying in %s", attempt, lastErr, wait))
		if err := waitCtx(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, lastErr)
}

// runTx performs one transaction attempt, guaranteeing the connection is
// released on every exit path.
func (s *Store) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.pool().BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isRetryable reports whether err is a transient database error worth
// retrying within a transaction.
func isRetryable(err error) bool {
	var mErr *mysql.MySQLError
	if errors.As(err, &mErr) {
		switch mErr.Number {
		case mysqlErrLockDeadlock, mysqlErrLockWaitTimeout:
			return true
		}
	}
	return isConnErr(err)
}

// isConnErr reports whether err is a connection-loss-class error, which
// additionally triggers a pool rebuild.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, io.EOF) {
		return true
	}
	var mErr *mysql.MySQLError
	if errors.As(err, &mErr) {
		switch mErr.Number {
		case mysqlErrServerGone, mysqlErrServerLost:
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Some connection failures surface only as strings from the driver.
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// InitSchema creates the mirror tables if they do not already exist. The
// DDL is idempotent and safe to run on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute schema initialization: %w", err)
		}
	}
	return nil
}
