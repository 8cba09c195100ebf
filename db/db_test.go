package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// testStore builds a Store around a sqlmock connection. The liveness probe
// is not started and the dsn is empty, so no real connection is ever
// attempted.
func testStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })
	s := &Store{
		db:   sqlx.NewDb(mockDB, "mysql"),
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		stop: make(chan struct{}),
	}
	return s, mock
}

var errDeadlock = &mysql.MySQLError{Number: mysqlErrLockDeadlock, Message: "Deadlock found when trying to get lock"}

func TestTransactionRetriesDeadlock(t *testing.T) {
	s, mock := testStore(t)

	// Two deadlocked attempts roll back, the third commits.
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE widgets").WillReturnError(errDeadlock)
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := s.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		_, err := tx.ExecContext(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: got %d want 3", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransactionExhaustsRetries(t *testing.T) {
	s, mock := testStore(t)

	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE widgets").WillReturnError(errDeadlock)
		mock.ExpectRollback()
	}

	err := s.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var mErr *mysql.MySQLError
	if !errors.As(err, &mErr) || mErr.Number != mysqlErrLockDeadlock {
		t.Errorf("expected wrapped deadlock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should report attempt count, got %q", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransactionNonRetryableFailsFast(t *testing.T) {
	s, mock := testStore(t)

	errSyntax := errors.New("you have an error in your SQL syntax")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE widgets").WillReturnError(errSyntax)
	mock.ExpectRollback()

	attempts := 0
	err := s.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		_, err := tx.ExecContext(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	if !errors.Is(err, errSyntax) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d want 1", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// unreachableDSN points at a closed port with a short dial timeout so pool
// rebuilds in tests fail fast without a server.
const unreachableDSN = "user:pass@tcp(127.0.0.1:1)/economic_data?timeout=100ms"

func TestRebuildFallbackPoolBounded(t *testing.T) {
	s, _ := testStore(t)
	s.dsn = unreachableDSN

	// With the server unreachable the rebuild falls back to a lazy pool;
	// that pool must carry the same bounds as a healthy one.
	s.rebuild()

	if got := s.pool().Stats().MaxOpenConnections; got != maxOpenConns {
		t.Errorf("fallback pool max open conns: got %d want %d", got, maxOpenConns)
	}
}

func TestQueryReconnectWaitHonoursContext(t *testing.T) {
	s, mock := testStore(t)
	s.dsn = unreachableDSN

	mock.ExpectQuery("SELECT").WillReturnError(mysql.ErrInvalidConn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The connection error triggers a rebuild; the pre-retry wait must end
	// with the context instead of sleeping through the cancellation and
	// re-issuing the query.
	_, err := s.Query(ctx, "SELECT 1 FROM agreements")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysql.MySQLError{Number: mysqlErrLockDeadlock}, true},
		{"lock wait timeout", &mysql.MySQLError{Number: mysqlErrLockWaitTimeout}, true},
		{"server gone", &mysql.MySQLError{Number: mysqlErrServerGone}, true},
		{"bad conn", driver.ErrBadConn, true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"broken pipe string", errors.New("write: broken pipe"), true},
		{"duplicate key", &mysql.MySQLError{Number: 1062}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range tests {
		if got := isRetryable(tc.err); got != tc.want {
			t.Errorf("%s: isRetryable = %v want %v", tc.name, got, tc.want)
		}
	}
}
