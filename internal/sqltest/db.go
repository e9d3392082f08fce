//go:build integration_test

// Package sqltest runs store tests against every supported database.
package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// DBFactory is a function type that creates a new database connection for
// testing purposes. It takes a testing.TB interface to allow for test failure
// when cannot create the database connection, add cleanup logic and create a
// unique and isolated database for each test case.
type DBFactory func(t testing.TB) *sql.DB

// StoreFactory returns a wallet store with its schema created in a fresh
// isolated database.
type StoreFactory func(t testing.TB) walletdb.Store

// StoreTestFunc is a function type that defines the signature for store
// test functions that will be run against different database
// implementations.
type StoreTestFunc func(t *testing.T, newStore StoreFactory)

// storeFactory wraps a database factory so that every store has its schema.
func storeFactory(dbFactory DBFactory) StoreFactory {
	return func(t testing.TB) walletdb.Store {
		t.Helper()

		store := walletdb.NewSQLStore(dbFactory(t))

		ctx, cancel := context.WithTimeout(
			context.Background(), 30*time.Second,
		)
		defer cancel()

		require.NoError(t, store.CreateSchema(ctx))
		return store
	}
}

// RunStoreTest runs the same test function against both PostgreSQL and
// SQLite databases. It creates a new database for each test case, ensuring
// that tests are isolated and can run in parallel.
func RunStoreTest(t *testing.T, testFunc StoreTestFunc) {
	t.Helper()

	testCases := []struct {
		name      string
		dbFactory DBFactory
	}{
		{
			name:      "Postgres",
			dbFactory: NewPostgresDB,
		},
		{
			name:      "SQLite",
			dbFactory: NewSQLiteDB,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, storeFactory(tc.dbFactory))
		})
	}
}

// deterministicTestID generates a deterministic identifier based on the test
// name. This ensures that Golang test caching works properly by avoiding
// random generations for the database name. We need to use this hash to avoid
// long database names that can be cropped by some database systems.
func deterministicTestID(t testing.TB) string {
	t.Helper()
	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))

	// This should never fail, but we handle it just in case.
	require.NoError(t, err)

	return fmt.Sprintf("%08x", h.Sum32())
}
