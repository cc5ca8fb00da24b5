package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpnda/fio-sync/pkg/models"
)

const accountColumns = `
	id, org_id, label, token, is_default, provider_account_id, currency,
	last_sync_at, last_sync_from, last_sync_to, last_statement_start, last_statement_end,
	last_opening_balance, last_closing_balance, last_id_to, created_at, updated_at
`

// CreateAccount registers a new account for a tenant. When the account is
// marked default, any previous default of the same tenant is cleared.
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	return withTx(ctx, db.DB, func(tx *sql.Tx) error {
		if account.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounts SET is_default = 0 WHERE org_id = ? AND is_default = 1`,
				account.OrgID); err != nil {
				return fmt.Errorf("failed to clear default account: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (org_id, label, token, is_default, provider_account_id, currency)
		VALUES (?, ?, ?, ?, ?, ?)
		`,
			account.OrgID,
			account.Label,
			nullString(account.Token),
			account.IsDefault,
			nullString(account.ProviderAccountID),
			nullString(account.Currency),
		)
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get account id: %w", err)
		}
		account.ID = id
		return nil
	})
}

// GetAccount returns the account with the given id within the tenant, or nil
// if there is none.
func (db *DB) GetAccount(ctx context.Context, orgID string, id int64) (*models.Account, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE org_id = ? AND id = ? LIMIT 1`,
		orgID, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns every account of the tenant, the default one first.
func (db *DB) ListAccounts(ctx context.Context, orgID string) ([]models.Account, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE org_id = ? ORDER BY is_default DESC, label ASC`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over accounts: %w", err)
	}
	return accounts, nil
}

// SetDefaultAccount makes id the only default account of the tenant.
func (db *DB) SetDefaultAccount(ctx context.Context, orgID string, id int64) error {
	return withTx(ctx, db.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET is_default = 0, updated_at = `+nowExpr+` WHERE org_id = ? AND is_default = 1`,
			orgID); err != nil {
			return fmt.Errorf("failed to clear default account: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE accounts SET is_default = 1, updated_at = `+nowExpr+` WHERE org_id = ? AND id = ?`,
			orgID, id)
		if err != nil {
			return fmt.Errorf("failed to set default account: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
		}
		return nil
	})
}

// UpdateAccountToken replaces the stored provider token of an account.
func (db *DB) UpdateAccountToken(ctx context.Context, orgID string, id int64, token string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE accounts SET token = ?, updated_at = `+nowExpr+` WHERE org_id = ? AND id = ?`,
		nullString(token), orgID, id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
	}
	return nil
}

// UpdateSyncCursor records a completed sync of an account. Reported statement
// values overwrite the stored ones when present; currency is only filled if
// the account has none yet.
func (db *DB) UpdateSyncCursor(ctx context.Context, accountID int64, update models.CursorUpdate) error {
	query := `
	UPDATE accounts
	SET
		last_sync_at = ?,
		last_sync_from = ?,
		last_sync_to = ?,
		updated_at = ` + nowExpr
	args := []any{
		nullTimestamp(&update.SyncedAt),
		nullDate(&update.From),
		nullDate(&update.To),
	}

	if r := update.Reported; r != nil {
		query += `,
		provider_account_id = COALESCE(?, provider_account_id),
		currency = CASE WHEN currency IS NULL OR currency = '' THEN ? ELSE currency END,
		last_id_to = COALESCE(?, last_id_to),
		last_opening_balance = COALESCE(?, last_opening_balance),
		last_closing_balance = COALESCE(?, last_closing_balance),
		last_statement_start = COALESCE(?, last_statement_start),
		last_statement_end = COALESCE(?, last_statement_end)`
		args = append(args,
			nullString(r.ProviderAccountID),
			nullString(r.Currency),
			r.IDTo,
			r.OpeningBalance,
			r.ClosingBalance,
			nullDate(r.Start),
			nullDate(r.End),
		)
	}

	query += `
	WHERE id = ?`
	args = append(args, accountID)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
	}
	return nil
}

// LatestBookingDate returns the most recent stored booking date of an account,
// or nil when nothing has been stored yet.
func (db *DB) LatestBookingDate(ctx context.Context, orgID string, accountID int64) (*time.Time, error) {
	var latest sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT MAX(booking_date) FROM transactions WHERE org_id = ? AND account_id = ?`,
		orgID, accountID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest booking date: %w", err)
	}
	return scanDate(latest), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account                              models.Account
		token, providerAccountID, currency   sql.NullString
		lastSyncAt, lastSyncFrom, lastSyncTo sql.NullString
		lastStatementStart, lastStatementEnd sql.NullString
		openingBalance, closingBalance       decimal.NullDecimal
		lastIDTo                             sql.NullInt64
		createdAt, updatedAt                 sql.NullString
	)

	err := row.Scan(
		&account.ID,
		&account.OrgID,
		&account.Label,
		&token,
		&account.IsDefault,
		&providerAccountID,
		&currency,
		&lastSyncAt,
		&lastSyncFrom,
		&lastSyncTo,
		&lastStatementStart,
		&lastStatementEnd,
		&openingBalance,
		&closingBalance,
		&lastIDTo,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Token = token.String
	account.ProviderAccountID = providerAccountID.String
	account.Currency = currency.String
	account.Cursor = models.SyncCursor{
		LastSyncAt:         scanTimestamp(lastSyncAt),
		LastSyncFrom:       scanDate(lastSyncFrom),
		LastSyncTo:         scanDate(lastSyncTo),
		LastStatementStart: scanDate(lastStatementStart),
		LastStatementEnd:   scanDate(lastStatementEnd),
		LastOpeningBalance: openingBalance,
		LastClosingBalance: closingBalance,
	}
	if lastIDTo.Valid {
		account.Cursor.LastIDTo = &lastIDTo.Int64
	}
	if t := scanTimestamp(createdAt); t != nil {
		account.CreatedAt = *t
	}
	if t := scanTimestamp(updatedAt); t != nil {
		account.UpdatedAt = *t
	}
	return &account, nil
}
