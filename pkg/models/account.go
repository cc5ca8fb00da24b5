package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a bank account registered for a tenant, together with its sync cursor.
type Account struct {
	ID    int64
	OrgID string
	Label string
	// Token is the provider access token. Never log it.
	Token     string
	IsDefault bool
	// ProviderAccountID is the account number reported by the provider, if known
	ProviderAccountID string
	Currency          string

	Cursor SyncCursor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasToken reports whether a usable token is stored for the account.
func (a *Account) HasToken() bool {
	return a.Token != ""
}

// SyncCursor is the persisted record of what has been synced for an account.
type SyncCursor struct {
	LastSyncAt *time.Time
	// LastSyncFrom and LastSyncTo hold the range that was last requested
	LastSyncFrom *time.Time
	LastSyncTo   *time.Time
	// LastStatementStart and LastStatementEnd hold the range the provider reported
	LastStatementStart *time.Time
	LastStatementEnd   *time.Time
	LastOpeningBalance decimal.NullDecimal
	LastClosingBalance decimal.NullDecimal
	LastIDTo           *int64
}

// CursorUpdate is what the cursor tracker writes after a successful account sync.
type CursorUpdate struct {
	SyncedAt time.Time
	From     time.Time
	To       time.Time

	// Reported is taken from the final window's statement info, nil if it had none
	Reported *ReportedStatement
}

// ReportedStatement is the normalized statement header of a window.
type ReportedStatement struct {
	ProviderAccountID string
	Currency          string
	IDTo              *int64
	OpeningBalance    decimal.NullDecimal
	ClosingBalance    decimal.NullDecimal
	Start             *time.Time
	End               *time.Time
}
