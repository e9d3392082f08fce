// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

const (
	// DriverSQLite selects the embedded SQLite database.
	DriverSQLite = "sqlite"

	// DriverPostgres selects a Postgres server.
	DriverPostgres = "postgres"

	// WitnessRetention is the number of blocks below the scanned tip for
	// which note witnesses are kept. Anchors are chosen well inside it.
	WitnessRetention = 100
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// SQLStore implements Store on top of database/sql. Every query uses $N
// placeholders, which both pgx and modernc.org/sqlite accept.
type SQLStore struct {
	db *sql.DB
}

// A compile-time check to ensure that SQLStore satisfies the Store
// interface.
var _ Store = (*SQLStore)(nil)

// Open opens the database at dsn with the named driver.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		str := fmt.Sprintf("unknown database driver %q", driver)
		return nil, storeError(ErrUnknownDriver, str, nil)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot open database", err)
	}

	// The cache and index are single writer. SQLite would otherwise
	// report the database as locked under concurrent connections.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeError(ErrDatabase, "cannot open database", err)
	}

	log.Debugf("Opened %s database", driver)

	return NewSQLStore(db), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// splitStatements splits a migration file into its statements.
func splitStatements(script string) []string {
	var stmts []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		stmt = strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// CreateSchema applies the embedded migrations in file name order. Every
// statement is idempotent.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		script, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(string(script)) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				str := fmt.Sprintf("failed to apply %s", name)
				return storeError(ErrDatabase, str, err)
			}
		}
		log.Debugf("Applied migration %s", name)
	}
	return nil
}

// withTx runs f inside a database transaction which is committed when f
// returns nil and rolled back otherwise.
func (s *SQLStore) withTx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError(ErrDatabase, "cannot begin transaction", err)
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError(ErrDatabase, "cannot commit transaction", err)
	}
	return nil
}

// PutCompactBlocks stores blocks, replacing any block already cached at the
// same height.
func (s *SQLStore) PutCompactBlocks(ctx context.Context,
	blocks []CachedBlock) error {

	const q = `INSERT INTO compactblocks (height, data) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET data = excluded.data`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range blocks {
			_, err := tx.ExecContext(ctx, q, int64(b.Height), b.Data)
			if err != nil {
				str := fmt.Sprintf("cannot cache block %d",
					b.Height)
				return storeError(ErrDatabase, str, err)
			}
		}
		return nil
	})
}

// maxHeight returns the result of a MAX(height) query.
func (s *SQLStore) maxHeight(ctx context.Context,
	q string) (fn.Option[uint32], error) {

	var h sql.NullInt64
	if err := s.db.QueryRowContext(ctx, q).Scan(&h); err != nil {
		return fn.None[uint32](), storeError(
			ErrDatabase, "cannot query height", err,
		)
	}
	if !h.Valid {
		return fn.None[uint32](), nil
	}
	return fn.Some(uint32(h.Int64)), nil
}

// MaxCachedHeight returns the height of the highest cached block.
func (s *SQLStore) MaxCachedHeight(ctx context.Context) (fn.Option[uint32],
	error) {

	return s.maxHeight(ctx, `SELECT MAX(height) FROM compactblocks`)
}

// forEachPageSize is the number of cached blocks read per query by
// ForEachCompactBlock.
const forEachPageSize = 100

// ForEachCompactBlock calls f for every cached block above height in height
// order. Blocks are read in pages and f runs with no query open, so it may
// write to the store.
func (s *SQLStore) ForEachCompactBlock(ctx context.Context, height uint32,
	f func(CachedBlock) error) error {

	for {
		page, err := s.compactBlocks(ctx, height)
		if err != nil {
			return err
		}
		for _, b := range page {
			if err := f(b); err != nil {
				return err
			}
			height = b.Height
		}
		if len(page) < forEachPageSize {
			return nil
		}
	}
}

// compactBlocks reads one page of cached blocks above height.
func (s *SQLStore) compactBlocks(ctx context.Context,
	height uint32) ([]CachedBlock, error) {

	rows, err := s.db.QueryContext(ctx, `SELECT height, data
		FROM compactblocks WHERE height > $1 ORDER BY height
		LIMIT $2`, int64(height), forEachPageSize)
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query block cache",
			err)
	}
	defer func() { _ = rows.Close() }()

	var page []CachedBlock
	for rows.Next() {
		var b CachedBlock
		if err := rows.Scan(&b.Height, &b.Data); err != nil {
			return nil, storeError(ErrDatabase,
				"cannot read block", err)
		}
		page = append(page, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "cannot query block cache",
			err)
	}
	return page, nil
}

// InitAccount creates an account and its checkpoint block.
func (s *SQLStore) InitAccount(ctx context.Context,
	params InitAccountParams) error {

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int64
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts
			WHERE id = $1 OR viewing_key = $2`, int64(params.ID),
			params.ViewingKey).Scan(&n)
		if err != nil {
			return storeError(ErrDatabase, "cannot query accounts",
				err)
		}
		if n > 0 {
			str := fmt.Sprintf("account %d already exists",
				params.ID)
			return storeError(ErrAccountExists, str, nil)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO accounts
			(id, viewing_key, birthday) VALUES ($1, $2, $3)`,
			int64(params.ID), params.ViewingKey,
			int64(params.Block.Height))
		if err != nil {
			return storeError(ErrDatabase, "cannot insert account",
				err)
		}

		b := params.Block
		_, err = tx.ExecContext(ctx, `INSERT INTO blocks
			(height, hash, time, sapling_tree) VALUES ($1, $2, $3, $4)
			ON CONFLICT (height) DO NOTHING`, int64(b.Height), b.Hash,
			int64(b.Time), b.SaplingTree)
		if err != nil {
			return storeError(ErrDatabase, "cannot insert block",
				err)
		}
		return nil
	})
}

// Accounts lists the accounts ordered by id.
func (s *SQLStore) Accounts(ctx context.Context) ([]AccountInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, viewing_key, birthday
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query accounts", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []AccountInfo
	for rows.Next() {
		var a AccountInfo
		err := rows.Scan(&a.ID, &a.ViewingKey, &a.Birthday)
		if err != nil {
			return nil, storeError(ErrDatabase, "cannot read account",
				err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "cannot query accounts", err)
	}
	return accounts, nil
}

// ScanRange returns the lowest and highest scanned heights.
func (s *SQLStore) ScanRange(ctx context.Context) (fn.Option[[2]uint32],
	error) {

	var lo, hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(height), MAX(height)
		FROM blocks`).Scan(&lo, &hi)
	if err != nil {
		return fn.None[[2]uint32](), storeError(
			ErrDatabase, "cannot query scanned range", err,
		)
	}
	if !lo.Valid || !hi.Valid {
		return fn.None[[2]uint32](), nil
	}
	return fn.Some([2]uint32{uint32(lo.Int64), uint32(hi.Int64)}), nil
}

// Block returns the scanned block at height.
func (s *SQLStore) Block(ctx context.Context, height uint32) (*BlockInfo,
	error) {

	b := BlockInfo{Height: height}
	err := s.db.QueryRowContext(ctx, `SELECT hash, time, sapling_tree
		FROM blocks WHERE height = $1`, int64(height)).Scan(
		&b.Hash, &b.Time, &b.SaplingTree,
	)
	if errors.Is(err, sql.ErrNoRows) {
		str := fmt.Sprintf("block %d has not been scanned", height)
		return nil, storeError(ErrBlockNotFound, str, nil)
	}
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query block", err)
	}
	return &b, nil
}

// Witnesses returns the witnesses of unspent notes at height.
func (s *SQLStore) Witnesses(ctx context.Context,
	height uint32) ([]WitnessInfo, error) {

	rows, err := s.db.QueryContext(ctx, `SELECT w.note_pos, w.witness
		FROM sapling_witnesses w
		JOIN received_notes n ON n.note_pos = w.note_pos
		WHERE w.height = $1 AND n.spent_height IS NULL
		ORDER BY w.note_pos`, int64(height))
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query witnesses",
			err)
	}
	defer func() { _ = rows.Close() }()

	var witnesses []WitnessInfo
	for rows.Next() {
		var w WitnessInfo
		if err := rows.Scan(&w.Position, &w.Witness); err != nil {
			return nil, storeError(ErrDatabase,
				"cannot read witness", err)
		}
		witnesses = append(witnesses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "cannot query witnesses",
			err)
	}
	return witnesses, nil
}

const noteColumns = `n.note_pos, n.account, n.height, n.tx_index,
	n.output_index, n.diversifier, n.value, n.rseed, n.zip212, n.nf,
	n.spent_height`

// scanNote reads the noteColumns of a row, followed by extra.
func scanNote(rows *sql.Rows, extra ...any) (NoteInfo, error) {
	var (
		n                      NoteInfo
		diversifier, rseed, nf []byte
		value, zip212          int64
		spent                  sql.NullInt64
	)
	dest := []any{
		&n.Position, &n.Account, &n.Height, &n.TxIndex, &n.OutputIndex,
		&diversifier, &value, &rseed, &zip212, &nf, &spent,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return n, storeError(ErrDatabase, "cannot read note", err)
	}

	if len(diversifier) != len(n.Diversifier) ||
		len(rseed) != len(n.Rseed.Bytes) || len(nf) != len(n.Nullifier) {

		str := fmt.Sprintf("note %d is corrupt", n.Position)
		return n, storeError(ErrDatabase, str, nil)
	}
	copy(n.Diversifier[:], diversifier)
	copy(n.Rseed.Bytes[:], rseed)
	copy(n.Nullifier[:], nf)
	n.Value = btcutil.Amount(value)
	n.Rseed.AfterZIP212 = zip212 != 0
	if spent.Valid {
		n.SpentHeight = fn.Some(uint32(spent.Int64))
	}
	return n, nil
}

// queryNotes runs a query selecting noteColumns and optionally the witness.
func (s *SQLStore) queryNotes(ctx context.Context, withWitness bool,
	q string, args ...any) ([]NoteInfo, error) {

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query notes", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []NoteInfo
	for rows.Next() {
		var extra []any
		var witness []byte
		if withWitness {
			extra = append(extra, &witness)
		}
		n, err := scanNote(rows, extra...)
		if err != nil {
			return nil, err
		}
		n.Witness = witness
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "cannot query notes", err)
	}
	return notes, nil
}

// UnspentNotes returns every unspent note ordered by position.
func (s *SQLStore) UnspentNotes(ctx context.Context) ([]NoteInfo, error) {
	return s.queryNotes(ctx, false, `SELECT `+noteColumns+`
		FROM received_notes n WHERE n.spent_height IS NULL
		ORDER BY n.note_pos`)
}

// ListNotes returns every note of an account ordered by position.
func (s *SQLStore) ListNotes(ctx context.Context,
	account uint32) ([]NoteInfo, error) {

	return s.queryNotes(ctx, false, `SELECT `+noteColumns+`
		FROM received_notes n WHERE n.account = $1
		ORDER BY n.note_pos`, int64(account))
}

// ApplyBlock atomically records a scanned block: the block and its tree,
// the new notes, the spent nullifiers and the witnesses of every unspent
// note. Witnesses older than WitnessRetention blocks are pruned.
func (s *SQLStore) ApplyBlock(ctx context.Context,
	params ApplyBlockParams) error {

	b := params.Block
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO blocks
			(height, hash, time, sapling_tree) VALUES ($1, $2, $3, $4)`,
			int64(b.Height), b.Hash, int64(b.Time), b.SaplingTree)
		if err != nil {
			str := fmt.Sprintf("cannot insert block %d", b.Height)
			return storeError(ErrDatabase, str, err)
		}

		for _, n := range params.NewNotes {
			var zip212 int64
			if n.Rseed.AfterZIP212 {
				zip212 = 1
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO received_notes
				(note_pos, account, height, tx_index, output_index,
				diversifier, value, rseed, zip212, nf)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				int64(n.Position), int64(n.Account),
				int64(n.Height), int64(n.TxIndex),
				int64(n.OutputIndex), n.Diversifier[:],
				int64(n.Value), n.Rseed.Bytes[:], zip212,
				n.Nullifier[:])
			if err != nil {
				str := fmt.Sprintf("cannot insert note %d",
					n.Position)
				return storeError(ErrDatabase, str, err)
			}
		}

		for _, nf := range params.Spent {
			_, err := tx.ExecContext(ctx, `UPDATE received_notes
				SET spent_height = $1
				WHERE nf = $2 AND spent_height IS NULL`,
				int64(b.Height), nf[:])
			if err != nil {
				return storeError(ErrDatabase,
					"cannot mark note spent", err)
			}
		}

		for _, w := range params.Witnesses {
			_, err := tx.ExecContext(ctx, `INSERT INTO
				sapling_witnesses (note_pos, height, witness)
				VALUES ($1, $2, $3)
				ON CONFLICT (note_pos, height)
				DO UPDATE SET witness = excluded.witness`,
				int64(w.Position), int64(b.Height), w.Witness)
			if err != nil {
				str := fmt.Sprintf("cannot store witness of "+
					"note %d", w.Position)
				return storeError(ErrDatabase, str, err)
			}
		}

		if b.Height > WitnessRetention {
			_, err := tx.ExecContext(ctx, `DELETE FROM
				sapling_witnesses WHERE height < $1`,
				int64(b.Height-WitnessRetention))
			if err != nil {
				return storeError(ErrDatabase,
					"cannot prune witnesses", err)
			}
		}
		return nil
	})
}

// SelectSpendableNotes returns unspent notes mined at or below the anchor
// height in the strategy's order until their value covers the target. The
// order breaks ties by position so the selection is deterministic.
func (s *SQLStore) SelectSpendableNotes(ctx context.Context,
	query SelectNotesQuery) ([]NoteInfo, error) {

	order := "n.value DESC, n.note_pos ASC"
	if query.Strategy == SelectOldest {
		order = "n.note_pos ASC"
	}

	candidates, err := s.queryNotes(ctx, true, `SELECT `+noteColumns+`,
		w.witness
		FROM received_notes n
		JOIN sapling_witnesses w
			ON w.note_pos = n.note_pos AND w.height = $2
		WHERE n.account = $1 AND n.spent_height IS NULL
			AND n.height <= $2
		ORDER BY `+order, int64(query.Account),
		int64(query.AnchorHeight))
	if err != nil {
		return nil, err
	}

	var (
		selected []NoteInfo
		total    btcutil.Amount
	)
	for _, n := range candidates {
		if total >= query.Target {
			break
		}
		selected = append(selected, n)
		total += n.Value
	}
	return selected, nil
}

// Balance sums the unspent notes of an account.
func (s *SQLStore) Balance(ctx context.Context,
	query BalanceQuery) (*Balance, error) {

	var total, spendable int64
	err := s.db.QueryRowContext(ctx, `SELECT
		CAST(COALESCE(SUM(value), 0) AS BIGINT),
		CAST(COALESCE(SUM(CASE WHEN height <= $2 THEN value ELSE 0 END),
			0) AS BIGINT)
		FROM received_notes
		WHERE account = $1 AND spent_height IS NULL`,
		int64(query.Account), int64(query.AnchorHeight)).Scan(
		&total, &spendable,
	)
	if err != nil {
		return nil, storeError(ErrDatabase, "cannot query balance", err)
	}
	return &Balance{
		Total:     btcutil.Amount(total),
		Spendable: btcutil.Amount(spendable),
	}, nil
}
