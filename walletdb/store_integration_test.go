//go:build integration_test

package walletdb_test

import (
	"testing"

	"github.com/zcoldwallet/zcoldwallet/internal/sqltest"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// TestStoreAllDatabases runs the store tests against Postgres and SQLite.
func TestStoreAllDatabases(t *testing.T) {
	for _, test := range storeTests {
		t.Run(test.name, func(t *testing.T) {
			sqltest.RunStoreTest(t, func(t *testing.T,
				newStore sqltest.StoreFactory) {

				test.test(t, func(t testing.TB) walletdb.Store {
					return newStore(t)
				})
			})
		})
	}
}
