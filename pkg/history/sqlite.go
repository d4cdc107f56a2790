package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/fortiblox/savefi/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
  signature BLOB PRIMARY KEY,
  height INTEGER NOT NULL,
  blockhash BLOB NOT NULL,
  unix_timestamp INTEGER NOT NULL,
  success INTEGER NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  error_code INTEGER,
  instructions TEXT NOT NULL,
  logs TEXT NOT NULL,
  return_data BLOB
);
CREATE TABLE IF NOT EXISTS transaction_accounts (
  signature BLOB NOT NULL REFERENCES transactions(signature),
  account BLOB NOT NULL,
  seq INTEGER NOT NULL,
  PRIMARY KEY (signature, account)
);
CREATE INDEX IF NOT EXISTS transaction_accounts_account ON transaction_accounts(account, seq);
`

// SQLiteRecorder stores records in a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the history database at path. An empty path
// keeps the history in memory.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRecorder, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dsn, err)
	}
	// A second connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// Record stores rec. Recording the same signature twice is an error.
func (r *SQLiteRecorder) Record(ctx context.Context, rec *Record) error {
	instructions, err := json.Marshal(rec.Instructions)
	if err != nil {
		return err
	}
	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO transactions (signature, height, blockhash, unix_timestamp, success, error, error_code, instructions, logs, return_data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Signature[:], int64(rec.Height), rec.Blockhash[:], rec.UnixTimestamp,
		rec.Success, rec.Error, nullableCode(rec.ErrorCode), string(instructions), string(logs), rec.ReturnData)
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", rec.Signature, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, acc := range rec.Accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_accounts (signature, account, seq) VALUES (?, ?, ?)`,
			rec.Signature[:], acc[:], seq); err != nil {
			return fmt.Errorf("history: index %s: %w", acc, err)
		}
	}
	return tx.Commit()
}

// Get returns the record for sig.
func (r *SQLiteRecorder) Get(ctx context.Context, sig types.Signature) (*Record, error) {
	rows, err := r.db.QueryContext(ctx, selectRecords+` WHERE t.signature = ?`, sig[:])
	if err != nil {
		return nil, err
	}
	recs, err := r.scan(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// ByAccount returns up to limit records touching account, newest first.
func (r *SQLiteRecorder) ByAccount(ctx context.Context, account types.Pubkey, limit int) ([]*Record, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	rows, err := r.db.QueryContext(ctx, selectRecords+`
JOIN transaction_accounts a ON a.signature = t.signature
WHERE a.account = ?
ORDER BY a.seq DESC
LIMIT ?`, account[:], limit)
	if err != nil {
		return nil, err
	}
	return r.scan(ctx, rows)
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

const selectRecords = `
SELECT t.signature, t.height, t.blockhash, t.unix_timestamp, t.success, t.error, t.error_code, t.instructions, t.logs, t.return_data
FROM transactions t`

func (r *SQLiteRecorder) scan(ctx context.Context, rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		var (
			rec                Record
			sig, blockhash     []byte
			height             int64
			code               sql.NullInt64
			instructions, logs string
		)
		if err := rows.Scan(&sig, &height, &blockhash, &rec.UnixTimestamp, &rec.Success, &rec.Error,
			&code, &instructions, &logs, &rec.ReturnData); err != nil {
			return nil, err
		}
		copy(rec.Signature[:], sig)
		copy(rec.Blockhash[:], blockhash)
		rec.Height = uint64(height)
		if code.Valid {
			c := uint32(code.Int64)
			rec.ErrorCode = &c
		}
		if err := json.Unmarshal([]byte(instructions), &rec.Instructions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(logs), &rec.Logs); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, rec := range recs {
		accounts, err := r.accounts(ctx, rec.Signature)
		if err != nil {
			return nil, err
		}
		rec.Accounts = accounts
	}
	return recs, nil
}

func (r *SQLiteRecorder) accounts(ctx context.Context, sig types.Signature) ([]types.Pubkey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account FROM transaction_accounts WHERE signature = ? ORDER BY rowid`, sig[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Pubkey
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		pk, err := types.PubkeyFromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

func nullableCode(code *uint32) any {
	if code == nil {
		return nil
	}
	return int64(*code)
}

var _ Recorder = (*SQLiteRecorder)(nil)
