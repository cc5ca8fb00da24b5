package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vpnda/fio-sync/pkg/models"
)

// UpsertResult reports what an upsert batch did.
type UpsertResult struct {
	// Written is the number of rows inserted or updated
	Written int
	// Inserted is the number of rows that did not exist before
	Inserted int
}

const upsertTransactionQuery = `
	INSERT INTO transactions (
		org_id, account_id, transaction_uid, booking_date, amount, currency, transaction_type,
		counterparty_account, counterparty_bank_code, counterparty_name,
		variable_symbol, specific_symbol, constant_symbol, message, comment,
		fields_json, raw_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (org_id, account_id, transaction_uid) DO UPDATE SET
		booking_date = excluded.booking_date,
		amount = excluded.amount,
		currency = COALESCE(transactions.currency, excluded.currency),
		transaction_type = excluded.transaction_type,
		counterparty_account = excluded.counterparty_account,
		counterparty_bank_code = excluded.counterparty_bank_code,
		counterparty_name = excluded.counterparty_name,
		variable_symbol = excluded.variable_symbol,
		specific_symbol = excluded.specific_symbol,
		constant_symbol = excluded.constant_symbol,
		message = excluded.message,
		comment = excluded.comment,
		fields_json = excluded.fields_json,
		raw_json = excluded.raw_json,
		updated_at = ` + nowExpr

// UpsertTransactions stores a batch so that (org, account, uid) holds at most
// one row. Duplicates inside the batch collapse to their last occurrence.
func (db *DB) UpsertTransactions(ctx context.Context, transactions []models.Transaction) (UpsertResult, error) {
	batch := DedupeBatch(transactions)
	if len(batch) == 0 {
		return UpsertResult{}, nil
	}

	var result UpsertResult
	err := withTx(ctx, db.DB, func(tx *sql.Tx) error {
		exists, err := tx.PrepareContext(ctx,
			`SELECT 1 FROM transactions WHERE org_id = ? AND account_id = ? AND transaction_uid = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare lookup: %w", err)
		}
		defer exists.Close()

		upsert, err := tx.PrepareContext(ctx, upsertTransactionQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer upsert.Close()

		for i := range batch {
			t := &batch[i]

			var found int
			err := exists.QueryRowContext(ctx, t.OrgID, t.AccountID, t.UID).Scan(&found)
			if err == sql.ErrNoRows {
				result.Inserted++
			} else if err != nil {
				return fmt.Errorf("failed to check transaction %s: %w", t.UID, err)
			}

			fields, err := marshalFields(t.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode fields of %s: %w", t.UID, err)
			}

			if _, err := upsert.ExecContext(ctx,
				t.OrgID,
				t.AccountID,
				t.UID,
				nullDate(t.BookingDate),
				t.Amount,
				nullString(t.Currency),
				nullString(t.Type),
				nullString(t.CounterpartyAccount),
				nullString(t.CounterpartyBankCode),
				nullString(t.CounterpartyName),
				nullString(t.VariableSymbol),
				nullString(t.SpecificSymbol),
				nullString(t.ConstantSymbol),
				nullString(t.Message),
				nullString(t.Comment),
				fields,
				nullString(string(t.Raw)),
			); err != nil {
				return fmt.Errorf("failed to upsert transaction %s: %w", t.UID, err)
			}
			result.Written++
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// DedupeBatch drops repeated identities from a batch, keeping the position of
// the first occurrence and the content of the last one.
func DedupeBatch(transactions []models.Transaction) []models.Transaction {
	type key struct {
		org     string
		account int64
		uid     string
	}

	index := make(map[key]int, len(transactions))
	out := make([]models.Transaction, 0, len(transactions))
	for _, t := range transactions {
		k := key{t.OrgID, t.AccountID, t.UID}
		if i, ok := index[k]; ok {
			out[i] = t
			continue
		}
		index[k] = len(out)
		out = append(out, t)
	}
	return out
}

func marshalFields(fields map[string]any) (any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

const transactionColumns = `
	org_id, account_id, transaction_uid, booking_date, amount, currency, transaction_type,
	counterparty_account, counterparty_bank_code, counterparty_name,
	variable_symbol, specific_symbol, constant_symbol, message, comment,
	fields_json, raw_json, created_at, updated_at
`

// ListTransactions returns the latest transactions of a tenant ordered by
// booking date, restricted to one account when accountID is set.
func (db *DB) ListTransactions(ctx context.Context, orgID string, accountID *int64, limit int) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE org_id = ?`
	args := []any{orgID}
	if accountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY booking_date DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetTransaction returns one transaction by identity, or nil if it does not exist.
func (db *DB) GetTransaction(ctx context.Context, orgID string, accountID int64, uid string) (*models.Transaction, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE org_id = ? AND account_id = ? AND transaction_uid = ? LIMIT 1`,
		orgID, accountID, uid)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// CountTransactions returns the number of stored transactions of an account.
func (db *DB) CountTransactions(ctx context.Context, orgID string, accountID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE org_id = ? AND account_id = ?`,
		orgID, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                                         models.Transaction
		bookingDate, currency, txType             sql.NullString
		cpAccount, cpBankCode, cpName             sql.NullString
		vs, ss, ks, message, comment              sql.NullString
		fieldsJSON, rawJSON, createdAt, updatedAt sql.NullString
		amount                                    decimal.NullDecimal
	)

	err := row.Scan(
		&t.OrgID,
		&t.AccountID,
		&t.UID,
		&bookingDate,
		&amount,
		&currency,
		&txType,
		&cpAccount,
		&cpBankCode,
		&cpName,
		&vs,
		&ss,
		&ks,
		&message,
		&comment,
		&fieldsJSON,
		&rawJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.BookingDate = scanDate(bookingDate)
	t.Amount = amount
	t.Currency = currency.String
	t.Type = txType.String
	t.CounterpartyAccount = cpAccount.String
	t.CounterpartyBankCode = cpBankCode.String
	t.CounterpartyName = cpName.String
	t.VariableSymbol = vs.String
	t.SpecificSymbol = ss.String
	t.ConstantSymbol = ks.String
	t.Message = message.String
	t.Comment = comment.String
	t.CreatedAt = scanTimestamp(createdAt)
	t.UpdatedAt = scanTimestamp(updatedAt)
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &t.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields: %w", err)
		}
	}
	if rawJSON.Valid && rawJSON.String != "" {
		t.Raw = json.RawMessage(rawJSON.String)
	}
	return &t, nil
}
