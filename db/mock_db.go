package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vpnda/fio-sync/pkg/models"
)

// MockDB is a mock implementation of the DB for testing
type MockDB struct {
	mu sync.Mutex

	// Mock data storage
	Accounts     map[int64]*models.Account
	Transactions map[string]*models.Transaction
	nextID       int64

	// CursorUpdates records every cursor write, in order
	CursorUpdates []models.CursorUpdate
	// UpsertBatches records every non-empty batch passed to UpsertTransactions
	UpsertBatches [][]models.Transaction

	// Error values to return
	GetAccountErr        error
	ListAccountsErr      error
	CreateAccountErr     error
	UpdateSyncCursorErr  error
	UpsertErr            error
	LatestBookingDateErr error
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		Accounts:     make(map[int64]*models.Account),
		Transactions: make(map[string]*models.Transaction),
	}
}

func transactionKey(orgID string, accountID int64, uid string) string {
	return fmt.Sprintf("%s/%d/%s", orgID, accountID, uid)
}

// Initialize is a no-op for the mock database
func (m *MockDB) Initialize() error {
	return nil
}

// Close is a no-op for the mock database
func (m *MockDB) Close() error {
	return nil
}

// CreateAccount stores a copy of the account and assigns its id
func (m *MockDB) CreateAccount(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateAccountErr != nil {
		return m.CreateAccountErr
	}

	for _, existing := range m.Accounts {
		if existing.OrgID != account.OrgID {
			continue
		}
		if existing.Label == account.Label {
			return fmt.Errorf("failed to create account: label %q already exists", account.Label)
		}
		if account.IsDefault {
			existing.IsDefault = false
		}
	}

	m.nextID++
	account.ID = m.nextID
	stored := *account
	m.Accounts[account.ID] = &stored
	return nil
}

// GetAccount returns a copy of the account, or nil if it is not found in the tenant
func (m *MockDB) GetAccount(_ context.Context, orgID string, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccountErr != nil {
		return nil, m.GetAccountErr
	}

	account, ok := m.Accounts[id]
	if !ok || account.OrgID != orgID {
		return nil, nil
	}
	found := *account
	return &found, nil
}

// ListAccounts returns the tenant's accounts, default first then by label
func (m *MockDB) ListAccounts(_ context.Context, orgID string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListAccountsErr != nil {
		return nil, m.ListAccountsErr
	}

	var accounts []models.Account
	for _, account := range m.Accounts {
		if account.OrgID == orgID {
			accounts = append(accounts, *account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].IsDefault != accounts[j].IsDefault {
			return accounts[i].IsDefault
		}
		return accounts[i].Label < accounts[j].Label
	})
	return accounts, nil
}

// SetDefaultAccount makes id the only default account of the tenant
func (m *MockDB) SetDefaultAccount(_ context.Context, orgID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.Accounts[id]
	if !ok || target.OrgID != orgID {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
	}
	for _, account := range m.Accounts {
		if account.OrgID == orgID {
			account.IsDefault = account.ID == id
		}
	}
	return nil
}

// UpdateAccountToken replaces the token of an account
func (m *MockDB) UpdateAccountToken(_ context.Context, orgID string, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.Accounts[id]
	if !ok || account.OrgID != orgID {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
	}
	account.Token = token
	return nil
}

// UpdateSyncCursor applies a cursor update the same way the sqlite store does
func (m *MockDB) UpdateSyncCursor(_ context.Context, accountID int64, update models.CursorUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateSyncCursorErr != nil {
		return m.UpdateSyncCursorErr
	}

	account, ok := m.Accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
	}
	m.CursorUpdates = append(m.CursorUpdates, update)

	syncedAt, from, to := update.SyncedAt, update.From, update.To
	account.Cursor.LastSyncAt = &syncedAt
	account.Cursor.LastSyncFrom = &from
	account.Cursor.LastSyncTo = &to

	if r := update.Reported; r != nil {
		if r.ProviderAccountID != "" {
			account.ProviderAccountID = r.ProviderAccountID
		}
		if account.Currency == "" {
			account.Currency = r.Currency
		}
		if r.IDTo != nil {
			account.Cursor.LastIDTo = r.IDTo
		}
		if r.OpeningBalance.Valid {
			account.Cursor.LastOpeningBalance = r.OpeningBalance
		}
		if r.ClosingBalance.Valid {
			account.Cursor.LastClosingBalance = r.ClosingBalance
		}
		if r.Start != nil {
			account.Cursor.LastStatementStart = r.Start
		}
		if r.End != nil {
			account.Cursor.LastStatementEnd = r.End
		}
	}
	return nil
}

// LatestBookingDate returns the newest booking date stored for the account
func (m *MockDB) LatestBookingDate(_ context.Context, orgID string, accountID int64) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LatestBookingDateErr != nil {
		return nil, m.LatestBookingDateErr
	}

	var latest *time.Time
	for _, t := range m.Transactions {
		if t.OrgID != orgID || t.AccountID != accountID || t.BookingDate == nil {
			continue
		}
		if latest == nil || t.BookingDate.After(*latest) {
			latest = t.BookingDate
		}
	}
	return latest, nil
}

// UpsertTransactions merges a batch into the mock store with the same rules as the sqlite store
func (m *MockDB) UpsertTransactions(_ context.Context, transactions []models.Transaction) (UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return UpsertResult{}, m.UpsertErr
	}

	batch := DedupeBatch(transactions)
	if len(batch) == 0 {
		return UpsertResult{}, nil
	}
	m.UpsertBatches = append(m.UpsertBatches, batch)

	var result UpsertResult
	for _, t := range batch {
		key := transactionKey(t.OrgID, t.AccountID, t.UID)
		stored := t
		if existing, ok := m.Transactions[key]; ok {
			if existing.Currency != "" {
				stored.Currency = existing.Currency
			}
		} else {
			result.Inserted++
		}
		m.Transactions[key] = &stored
		result.Written++
	}
	return result, nil
}

// ListTransactions returns the tenant's transactions, newest booking date first
func (m *MockDB) ListTransactions(_ context.Context, orgID string, accountID *int64, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var transactions []models.Transaction
	for _, t := range m.Transactions {
		if t.OrgID != orgID || (accountID != nil && t.AccountID != *accountID) {
			continue
		}
		transactions = append(transactions, *t)
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].BookingDateString() > transactions[j].BookingDateString()
	})
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

// GetTransaction returns a transaction by identity, or nil if it is not found
func (m *MockDB) GetTransaction(_ context.Context, orgID string, accountID int64, uid string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Transactions[transactionKey(orgID, accountID, uid)]
	if !ok {
		return nil, nil
	}
	found := *t
	return &found, nil
}

// CountTransactions returns the number of stored transactions of an account
func (m *MockDB) CountTransactions(_ context.Context, orgID string, accountID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.Transactions {
		if t.OrgID == orgID && t.AccountID == accountID {
			count++
		}
	}
	return count, nil
}
