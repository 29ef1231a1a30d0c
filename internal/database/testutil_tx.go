package database

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testPool     *pgxpool.Pool
	testPoolOnce sync.Once
	testPoolErr  error
	testPoolSkip bool
)

// TestPool returns a shared database connection pool for testing.
// The pool is created once per test binary and migrated on first use.
// Skips the test if no database is reachable.
func TestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testPoolOnce.Do(func() {
		ctx := context.Background()
		dbURL, err := testDatabaseURL(ctx)
		if err != nil {
			testPoolSkip = true
			testPoolErr = err
			return
		}

		testPool, testPoolErr = Connect(ctx, dbURL)
		if testPoolErr != nil {
			return
		}

		testPoolErr = RunMigrations(ctx, testPool)
	})

	if testPoolSkip {
		t.Skipf("no test database available, skipping integration test: %v", testPoolErr)
	}
	if testPoolErr != nil {
		t.Fatalf("failed to setup test database: %v", testPoolErr)
	}

	return testPool
}

// TestTx returns a database transaction for testing.
// The transaction is rolled back when the test completes, so tests stay
// isolated and can run in parallel without table cleanup.
//
// Usage:
//
//	tx := database.TestTx(t)
//	users := repository.NewUserRepository(tx)
//	// all operations happen inside the transaction
//
// Repositories that run their own transactions get savepoints instead.
func TestTx(t *testing.T) DB {
	t.Helper()

	pool := TestPool(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	return tx
}
