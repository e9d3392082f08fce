package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWritesSchema(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "schemas", "schema.sql")
	require.NoError(t, run(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "CREATE TABLE")

	// The export is deterministic.
	require.NoError(t, run(out))
	again, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, data, again)
}
