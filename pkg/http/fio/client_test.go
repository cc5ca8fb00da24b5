package fio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementJSON = `{
  "accountStatement": {
    "info": {
      "accountId": "2000000000",
      "bankId": "2010",
      "currency": "CZK",
      "iban": "CZ1000000000002000000000",
      "bic": "FIOBCZPPXXX",
      "openingBalance": 1000.50,
      "closingBalance": 850.00,
      "dateStart": "2024-05-01+0200",
      "dateEnd": "2024-05-10+0200",
      "idFrom": 100,
      "idTo": 101
    },
    "transactionList": {
      "transaction": [
        {
          "column22": {"value": 100, "name": "ID pohybu", "id": 22},
          "column0": {"value": "2024-05-02+0200", "name": "Datum", "id": 0},
          "column1": {"value": -150.50, "name": "Objem", "id": 1},
          "column6": null
        },
        {
          "column22": {"value": 101, "name": "ID pohybu", "id": 22},
          "column1": {"value": 0.00, "name": "Objem", "id": 1}
        }
      ]
    }
  }
}`

func newTestClient(server *httptest.Server, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithBaseURL(server.URL),
		WithMinInterval(0),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return NewClient(opts...)
}

func TestFetchStatement(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(statementJSON))
	}))
	defer server.Close()

	client := newTestClient(server)
	statement, err := client.FetchStatement(context.Background(), "tok-123", "2024-05-01", "2024-05-10")
	require.NoError(t, err)

	assert.Equal(t, "/periods/tok-123/2024-05-01/2024-05-10/transactions.json", gotPath)
	require.NotNil(t, statement.Info)
	assert.Equal(t, "2000000000", string(statement.Info.AccountID))
	assert.Equal(t, "CZK", statement.Info.Currency)
	assert.Equal(t, "1000.5", statement.Info.OpeningBalance.Decimal.String())
	assert.Equal(t, "850", statement.Info.ClosingBalance.Decimal.String())
	require.NotNil(t, statement.Info.IDTo)
	assert.Equal(t, int64(101), *statement.Info.IDTo)
	assert.Equal(t, "2024-05-10+0200", statement.Info.DateEnd)

	require.Len(t, statement.Transactions, 2)
	assert.Len(t, statement.Transactions[0].Fields, 4)
	assert.Contains(t, string(statement.Transactions[0].Raw), `"ID pohybu"`)
}

func TestFetchStatementEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accountStatement":{"info":{"accountId":2000000000,"currency":"EUR"},"transactionList":null}}`))
	}))
	defer server.Close()

	statement, err := newTestClient(server).FetchStatement(context.Background(), "tok", "2024-05-01", "2024-05-10")
	require.NoError(t, err)
	assert.Empty(t, statement.Transactions)
	assert.Equal(t, "2000000000", string(statement.Info.AccountID))
}

func TestFetchStatementValidation(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()
	client := newTestClient(server)

	_, err := client.FetchStatement(context.Background(), "  ", "2024-05-01", "2024-05-10")
	assert.ErrorIs(t, err, ErrMissingToken)

	for _, bad := range []string{"", "2024-5-1", "01.05.2024", "2024-02-30", "2024-05-01T00:00:00"} {
		_, err := client.FetchStatement(context.Background(), "tok", bad, "2024-05-10")
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
	_, err = client.FetchStatement(context.Background(), "tok", "2024-05-01", "tomorrow")
	assert.ErrorIs(t, err, ErrInvalidDate)

	assert.Zero(t, atomic.LoadInt32(&hits), "validation must happen before any request")
}

func TestFetchStatementConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchStatement(context.Background(), "tok", "2024-05-01", "2024-05-10")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, http.StatusConflict, StatusForError(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "smaller date range")
	assert.Contains(t, apiErr.Message, "chunk_days")
}

func TestFetchStatementServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchStatement(context.Background(), "tok", "2024-05-01", "2024-05-10")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
	assert.False(t, IsConflict(err))
}

func TestFetchStatementTransportErrors(t *testing.T) {
	t.Run("Timeout maps to 504", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		client := newTestClient(server, WithTimeout(50*time.Millisecond))
		_, err := client.FetchStatement(context.Background(), "secret-token", "2024-05-01", "2024-05-10")
		require.Error(t, err)
		assert.Equal(t, http.StatusGatewayTimeout, StatusForError(err))
		assert.NotContains(t, err.Error(), "secret-token")
	})

	t.Run("Connection failure maps to 502", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		_, err := newTestClient(server).FetchStatement(context.Background(), "secret-token", "2024-05-01", "2024-05-10")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, StatusForError(err))
		assert.NotContains(t, err.Error(), "secret-token")
	})
}

func TestFetchStatementRateLimitIsPerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accountStatement":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server, WithMinInterval(time.Hour))

	_, err := client.FetchStatement(context.Background(), "tok-a", "2024-05-01", "2024-05-10")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.FetchStatement(ctx, "tok-a", "2024-05-01", "2024-05-10")
	assert.Error(t, err, "second request with the same token must wait")

	_, err = client.FetchStatement(context.Background(), "tok-b", "2024-05-01", "2024-05-10")
	assert.NoError(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t,
		"https://fioapi.fio.cz/v1/rest/periods/***/2024-05-01/2024-05-10/transactions.json",
		RedactURL("https://fioapi.fio.cz/v1/rest/periods/abcDEF123/2024-05-01/2024-05-10/transactions.json"))
	assert.Equal(t, "GET /last/***/transactions.json", RedactURL("GET /last/tok/transactions.json"))
	assert.True(t, strings.HasPrefix(RedactURL("no token here"), "no token"))
}

func TestMockFetcher(t *testing.T) {
	m := NewMockFetcher()
	m.Errors["2024-05-01..2024-05-10"] = &APIError{StatusCode: http.StatusConflict}

	_, err := m.FetchStatement(context.Background(), "a", "2024-05-01", "2024-05-10")
	assert.True(t, IsConflict(err))

	statement, err := m.FetchStatement(context.Background(), "b", "2024-04-01", "2024-04-30")
	require.NoError(t, err)
	assert.Empty(t, statement.Transactions)

	assert.Len(t, m.Calls, 2)
	assert.Equal(t, []FetchCall{{Token: "b", Start: "2024-04-01", End: "2024-04-30"}}, m.CallsFor("b"))
}
