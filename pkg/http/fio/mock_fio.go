package fio

import (
	"context"
	"sync"

	"github.com/vpnda/fio-sync/pkg/models"
)

// FetchCall records one call made to MockFetcher.
type FetchCall struct {
	Token string
	Start string
	End   string
}

// MockFetcher is a mock implementation of the statement fetcher for testing
type MockFetcher struct {
	mu sync.Mutex

	// Statements and Errors are keyed by "start..end"
	Statements map[string]*models.Statement
	Errors     map[string]error
	// FetchFunc, when set, takes precedence over the maps
	FetchFunc func(ctx context.Context, token, start, end string) (*models.Statement, error)

	Calls []FetchCall
}

// NewMockFetcher creates a new mock fetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Statements: make(map[string]*models.Statement),
		Errors:     make(map[string]error),
	}
}

// FetchStatement records the call and returns the configured response.
// Unknown windows yield an empty statement.
func (m *MockFetcher) FetchStatement(ctx context.Context, token, start, end string) (*models.Statement, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, FetchCall{Token: token, Start: start, End: end})
	fn := m.FetchFunc
	key := start + ".." + end
	statement, err := m.Statements[key], m.Errors[key]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, start, end)
	}
	if err != nil {
		return nil, err
	}
	if statement == nil {
		return &models.Statement{}, nil
	}
	return statement, nil
}

// CallsFor returns the calls made with the given token, in order.
func (m *MockFetcher) CallsFor(token string) []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []FetchCall
	for _, c := range m.Calls {
		if c.Token == token {
			calls = append(calls, c)
		}
	}
	return calls
}
