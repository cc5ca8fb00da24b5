package db

import (
	"context"
	"time"

	"github.com/vpnda/fio-sync/pkg/models"
)

// AccountStore is the account registry and cursor tracker used by the syncer.
type AccountStore interface {
	GetAccount(ctx context.Context, orgID string, id int64) (*models.Account, error)
	ListAccounts(ctx context.Context, orgID string) ([]models.Account, error)
	UpdateSyncCursor(ctx context.Context, accountID int64, update models.CursorUpdate) error
}

// TransactionStore is the deduplicating transaction ledger.
type TransactionStore interface {
	UpsertTransactions(ctx context.Context, transactions []models.Transaction) (UpsertResult, error)
	LatestBookingDate(ctx context.Context, orgID string, accountID int64) (*time.Time, error)
}

// DBInterface defines the interface for database operations
type DBInterface interface {
	AccountStore
	TransactionStore

	Initialize() error
	Close() error
	CreateAccount(ctx context.Context, account *models.Account) error
	SetDefaultAccount(ctx context.Context, orgID string, id int64) error
	UpdateAccountToken(ctx context.Context, orgID string, id int64, token string) error
	ListTransactions(ctx context.Context, orgID string, accountID *int64, limit int) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, orgID string, accountID int64, uid string) (*models.Transaction, error)
	CountTransactions(ctx context.Context, orgID string, accountID int64) (int, error)
}

// Ensure DB implements DBInterface
var _ DBInterface = (*DB)(nil)

// Ensure MockDB implements DBInterface
var _ DBInterface = (*MockDB)(nil)
