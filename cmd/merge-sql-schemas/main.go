// Command merge-sql-schemas applies the note index migrations against an
// in-memory SQLite database and exports the consolidated schema with a
// deterministic order.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zcoldwallet/zcoldwallet/walletdb"
	_ "modernc.org/sqlite" // Register the pure-Go SQLite driver.
)

const (
	defaultOutPath = "walletdb/schemas/generated_sqlite_schema.sql"

	dirPerm        = 0o750
	filePerm       = 0o600
	defaultTimeout = 3 * time.Minute
)

func main() {
	outPath := flag.String("out", defaultOutPath,
		"file the consolidated schema is written to")
	flag.Parse()

	err := run(*outPath)
	if err != nil {
		log.Fatal(err)
	}
}

func run(outPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open in-memory db: %w", err)
	}

	// Every connection to :memory: is a distinct database.
	db.SetMaxOpenConns(1)

	store := walletdb.NewSQLStore(db)
	defer func() { _ = store.Close() }()

	err = store.CreateSchema(ctx)
	if err != nil {
		return err
	}

	schema, err := extractSchema(ctx, db)
	if err != nil {
		return err
	}

	err = writeSchema(outPath, schema)
	if err != nil {
		return err
	}

	log.Printf("Final consolidated schema written to %s", outPath)

	return nil
}

func extractSchema(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT type, name, sql FROM sqlite_master
        WHERE type IN ('table','view','index') AND sql IS NOT NULL
        ORDER BY
            CASE type
                WHEN 'table' THEN 1
                WHEN 'view' THEN 2
                WHEN 'index' THEN 3
                ELSE 4
            END,
            name`)
	if err != nil {
		return "", fmt.Errorf("failed to query schema: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var b strings.Builder
	for rows.Next() {
		var typ, name, sqlDef string

		err := rows.Scan(&typ, &name, &sqlDef)
		if err != nil {
			return "", fmt.Errorf(
				"failed to scan schema row: %w",
				err,
			)
		}

		fmt.Fprintf(&b, "-- %s %s\n%s;\n\n", typ, name, sqlDef)
	}

	err = rows.Err()
	if err != nil {
		return "", fmt.Errorf("failed to iterate schema rows: %w", err)
	}

	return b.String(), nil
}

func writeSchema(outPath, schema string) error {
	outDir := filepath.Dir(outPath)

	// Ensure the destination directory exists.
	err := os.MkdirAll(outDir, dirPerm)
	if err != nil {
		return fmt.Errorf("failed to create schema dir: %w", err)
	}

	err = os.WriteFile(outPath, []byte(schema), filePerm)
	if err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	return nil
}
