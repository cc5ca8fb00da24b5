package http

import (
	"context"

	"github.com/vpnda/fio-sync/pkg/http/fio"
	"github.com/vpnda/fio-sync/pkg/models"
)

// StatementFetcher downloads one statement window for the account a token belongs to.
type StatementFetcher interface {
	FetchStatement(ctx context.Context, token, start, end string) (*models.Statement, error)
}

var (
	_ StatementFetcher = &fio.Client{}
	_ StatementFetcher = &fio.MockFetcher{}
)
