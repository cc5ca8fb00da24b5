package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

const nowExpr = `strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

var schema = []string{
	`
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id TEXT NOT NULL,
		label TEXT NOT NULL,
		token TEXT,
		is_default INTEGER NOT NULL DEFAULT 0,
		provider_account_id TEXT,
		currency TEXT,
		last_sync_at TEXT,
		last_sync_from TEXT,
		last_sync_to TEXT,
		last_statement_start TEXT,
		last_statement_end TEXT,
		last_opening_balance TEXT,
		last_closing_balance TEXT,
		last_id_to INTEGER,
		created_at TEXT NOT NULL DEFAULT (` + nowExpr + `),
		updated_at TEXT NOT NULL DEFAULT (` + nowExpr + `),
		UNIQUE (org_id, label)
	)
	`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_one_default_per_org ON accounts (org_id) WHERE is_default = 1`,
	`
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id TEXT NOT NULL,
		account_id INTEGER NOT NULL REFERENCES accounts (id),
		transaction_uid TEXT NOT NULL,
		booking_date TEXT,
		amount TEXT,
		currency TEXT,
		transaction_type TEXT,
		counterparty_account TEXT,
		counterparty_bank_code TEXT,
		counterparty_name TEXT,
		variable_symbol TEXT,
		specific_symbol TEXT,
		constant_symbol TEXT,
		message TEXT,
		comment TEXT,
		fields_json TEXT,
		raw_json TEXT,
		created_at TEXT NOT NULL DEFAULT (` + nowExpr + `),
		updated_at TEXT NOT NULL DEFAULT (` + nowExpr + `),
		UNIQUE (org_id, account_id, transaction_uid)
	)
	`,
	`CREATE INDEX IF NOT EXISTS transactions_account_booking ON transactions (account_id, booking_date DESC)`,
	`CREATE INDEX IF NOT EXISTS transactions_org_booking ON transactions (org_id, booking_date DESC)`,
}

// Initialize creates the necessary tables if they don't exist
func (db *DB) Initialize() error {
	for _, query := range schema {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func scanDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func scanTimestamp(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
