package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vpnda/fio-sync/db"
	fiohttp "github.com/vpnda/fio-sync/pkg/http"
	"github.com/vpnda/fio-sync/pkg/http/fio"
	"github.com/vpnda/fio-sync/pkg/models"
)

// Store is what the syncer needs from persistence.
type Store interface {
	db.AccountStore
	db.TransactionStore
}

// Options are the configured defaults of a sync run.
type Options struct {
	DefaultOrg  string
	OverlapDays int
	ChunkDays   int
	// Concurrency is how many accounts are synced at once. Windows of one
	// account are always fetched in order.
	Concurrency int
	// RetryConflicts is how many times a window is retried after a 409. Zero disables retrying.
	RetryConflicts int
	RetryInterval  time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		OverlapDays:   DefaultOverlapDays,
		ChunkDays:     DefaultChunkDays,
		Concurrency:   1,
		RetryInterval: fio.DefaultMinInterval,
	}
}

// Syncer pulls statements for a tenant's accounts into the store.
type Syncer struct {
	store      Store
	fetcher    fiohttp.StatementFetcher
	normalizer *Normalizer
	logger     zerolog.Logger
	now        func() time.Time
	opts       Options
}

// SyncerOption configures the syncer
type SyncerOption func(*Syncer)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		s.now = now
	}
}

// WithNormalizer replaces the default normalizer
func WithNormalizer(n *Normalizer) SyncerOption {
	return func(s *Syncer) {
		s.normalizer = n
	}
}

func NewSyncer(store Store, fetcher fiohttp.StatementFetcher, opts Options, options ...SyncerOption) *Syncer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &Syncer{
		store:      store,
		fetcher:    fetcher,
		normalizer: NewNormalizer(),
		logger:     log.Logger,
		now:        time.Now,
		opts:       opts,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// runParams is a validated sync request.
type runParams struct {
	orgID       string
	accountID   *int64
	incremental bool
	overlapDays int
	chunkDays   int
	start       *time.Time
	end         *time.Time
}

func (s *Syncer) validate(req models.SyncRequest) (runParams, error) {
	p := runParams{
		orgID:       req.OrgID,
		accountID:   req.AccountID,
		incremental: lo.FromPtrOr(req.Incremental, true),
		overlapDays: lo.FromPtrOr(req.OverlapDays, s.opts.OverlapDays),
		chunkDays:   lo.FromPtrOr(req.ChunkDays, s.opts.ChunkDays),
	}
	if p.orgID == "" {
		p.orgID = s.opts.DefaultOrg
	}
	if p.orgID == "" {
		return p, newValidationError("org_id", "is required")
	}
	if p.overlapDays < 0 || p.overlapDays > MaxOverlapDays {
		return p, newValidationError("overlap_days", "must be between 0 and %d, got %d", MaxOverlapDays, p.overlapDays)
	}
	if p.chunkDays < 0 || p.chunkDays > MaxChunkDays {
		return p, newValidationError("chunk_days", "must be between 0 and %d, got %d", MaxChunkDays, p.chunkDays)
	}

	var err error
	if p.start, err = parseRequestDate("start_date", req.StartDate); err != nil {
		return p, err
	}
	if p.end, err = parseRequestDate("end_date", req.EndDate); err != nil {
		return p, err
	}
	return p, nil
}

func parseRequestDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil || len(s) != len(time.DateOnly) {
		return nil, newValidationError(field, "expected YYYY-MM-DD, got %q", s)
	}
	return &t, nil
}

// Sync runs one sync for the requested accounts. Request problems are
// returned as *ValidationError before anything is fetched; failures of
// individual accounts are reported in their results and never abort the run.
func (s *Syncer) Sync(ctx context.Context, req models.SyncRequest) (*models.SyncResponse, error) {
	params, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	accounts, err := s.selectAccounts(ctx, params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Str("org_id", params.orgID).Logger()
	logger.Info().Int("accounts", len(accounts)).Msg("Starting sync")

	results := make([]models.AccountResult, len(accounts))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range accounts {
		i := i
		g.Go(func() error {
			results[i] = s.syncAccount(ctx, logger, params, &accounts[i])
			return nil
		})
	}
	_ = g.Wait()

	resp := &models.SyncResponse{
		OK:      true,
		RunID:   runID,
		Results: results,
	}
	for _, r := range results {
		resp.OK = resp.OK && r.OK
		resp.TotalFetched += r.Fetched
		resp.TotalUpserted += r.Upserted
	}

	logger.Info().
		Bool("ok", resp.OK).
		Int("fetched", resp.TotalFetched).
		Int("upserted", resp.TotalUpserted).
		Msg("Sync finished")
	return resp, nil
}

func (s *Syncer) selectAccounts(ctx context.Context, p runParams) ([]models.Account, error) {
	if p.accountID != nil {
		account, err := s.store.GetAccount(ctx, p.orgID, *p.accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		if account == nil {
			return nil, newValidationError("account_id", "account %d not found", *p.accountID)
		}
		return []models.Account{*account}, nil
	}

	accounts, err := s.store.ListAccounts(ctx, p.orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// accountRun carries one account through
// planned -> fetching -> normalizing -> upserting -> cursor_update -> done.
type accountRun struct {
	logger zerolog.Logger
	result models.AccountResult
}

func (r *accountRun) state(state string) {
	r.logger.Debug().Str("state", state).Msg("Account sync state")
}

func (r *accountRun) fail(kind string, status int, err error, message string) models.AccountResult {
	r.result.OK = false
	r.result.Error = kind
	r.result.Status = status
	r.result.Message = message
	r.logger.Warn().Err(err).Str("error_kind", kind).Msg("Account sync failed")
	r.state("failed")
	return r.result
}

func (s *Syncer) syncAccount(ctx context.Context, logger zerolog.Logger, p runParams, account *models.Account) models.AccountResult {
	run := &accountRun{
		logger: logger.With().Int64("account_id", account.ID).Str("account", account.Label).Logger(),
		result: models.AccountResult{
			AccountID: account.ID,
			Label:     account.Label,
			Windows:   []models.WindowResult{},
		},
	}
	run.state("planned")

	if !account.HasToken() {
		return run.fail(models.ErrorKindMissingToken, 0, fio.ErrMissingToken,
			"No Fio API token is stored for this account.")
	}

	in := PlanInput{
		Today:       s.now(),
		Start:       p.start,
		End:         p.end,
		Incremental: p.incremental,
		OverlapDays: p.overlapDays,
		ChunkDays:   p.chunkDays,
	}
	if p.incremental && p.start == nil {
		lastKnown, err := s.lastKnownDate(ctx, account)
		if err != nil {
			return run.fail(models.ErrorKindStore, http.StatusInternalServerError, err, err.Error())
		}
		in.LastKnown = lastKnown
	}

	plan, err := PlanWindows(in)
	if errors.Is(err, ErrHistoryLimit) {
		return run.fail(models.ErrorKindHistoryLimit, 0, err, fmt.Sprintf(
			"The requested range is older than the %d days of history Fio serves: %v. Choose a more recent start or end date.",
			HistoryDays, err))
	} else if err != nil {
		return run.fail(models.ErrorKindStore, http.StatusInternalServerError, err, err.Error())
	}
	run.result.StartDate = plan.Start.Format(time.DateOnly)
	run.result.EndDate = plan.End.Format(time.DateOnly)
	run.result.Warnings = plan.Warnings

	total := decimal.Zero
	var finalInfo *models.StatementInfo
	for _, w := range plan.Windows {
		run.state("fetching")
		wlog := run.logger.With().Str("start", w.StartDate()).Str("end", w.EndDate()).Logger()

		statement, err := s.fetchWindow(ctx, wlog, account.Token, w)
		if err != nil {
			if fio.IsConflict(err) {
				var apiErr *fio.APIError
				errors.As(err, &apiErr)
				return run.fail(models.ErrorKindConflict, http.StatusConflict, err, apiErr.Message)
			}
			return run.fail(models.ErrorKindUpstream, fio.StatusForError(err), err, err.Error())
		}
		finalInfo = statement.Info

		run.state("normalizing")
		currency := account.Currency
		if statement.Info != nil && statement.Info.Currency != "" {
			currency = statement.Info.Currency
		}
		rows := lo.Map(statement.Transactions, func(record models.RawRecord, _ int) models.Transaction {
			return s.normalizer.Normalize(p.orgID, account.ID, record, currency)
		})

		run.state("upserting")
		written, err := s.store.UpsertTransactions(ctx, rows)
		if err != nil {
			return run.fail(models.ErrorKindStore, http.StatusInternalServerError, err, err.Error())
		}

		for _, row := range rows {
			if row.Amount.Valid {
				total = total.Add(row.Amount.Decimal)
			}
		}
		run.result.Fetched += len(rows)
		run.result.Upserted += written.Written
		run.result.Inserted += written.Inserted
		run.result.Windows = append(run.result.Windows, models.WindowResult{
			StartDate: w.StartDate(),
			EndDate:   w.EndDate(),
			Fetched:   len(rows),
		})
		wlog.Info().Int("fetched", len(rows)).Int("upserted", written.Written).Int("inserted", written.Inserted).Msg("Window synced")
	}

	run.state("cursor_update")
	update := models.CursorUpdate{
		SyncedAt: s.now().UTC(),
		From:     plan.Start,
		To:       plan.End,
		Reported: reportedStatement(finalInfo),
	}
	if err := s.store.UpdateSyncCursor(ctx, account.ID, update); err != nil {
		return run.fail(models.ErrorKindStore, http.StatusInternalServerError, err, err.Error())
	}

	run.result.OK = true
	run.result.AmountTotal = total.String()
	run.state("done")
	run.logger.Info().
		Int("fetched", run.result.Fetched).
		Int("upserted", run.result.Upserted).
		Str("start", run.result.StartDate).
		Str("end", run.result.EndDate).
		Msg("Account synced")
	return run.result
}

// lastKnownDate is the cursor's last synced day, else the newest stored booking date.
func (s *Syncer) lastKnownDate(ctx context.Context, account *models.Account) (*time.Time, error) {
	if account.Cursor.LastSyncTo != nil {
		return account.Cursor.LastSyncTo, nil
	}
	latest, err := s.store.LatestBookingDate(ctx, account.OrgID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve last booking date: %w", err)
	}
	return latest, nil
}

// fetchWindow fetches one window, retrying only on 409 when retries are enabled.
func (s *Syncer) fetchWindow(ctx context.Context, logger zerolog.Logger, token string, w models.Window) (*models.Statement, error) {
	if s.opts.RetryConflicts <= 0 {
		return s.fetcher.FetchStatement(ctx, token, w.StartDate(), w.EndDate())
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.opts.RetryInterval
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.opts.RetryConflicts)), ctx)

	var statement *models.Statement
	err := backoff.RetryNotify(func() error {
		st, err := s.fetcher.FetchStatement(ctx, token, w.StartDate(), w.EndDate())
		if err != nil {
			if fio.IsConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		statement = st
		return nil
	}, b, func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("Fio conflict, retrying window")
	})
	return statement, err
}

func reportedStatement(info *models.StatementInfo) *models.ReportedStatement {
	if info == nil {
		return nil
	}
	return &models.ReportedStatement{
		ProviderAccountID: string(info.AccountID),
		Currency:          info.Currency,
		IDTo:              info.IDTo,
		OpeningBalance:    info.OpeningBalance,
		ClosingBalance:    info.ClosingBalance,
		Start:             ParseDate(info.DateStart),
		End:               ParseDate(info.DateEnd),
	}
}
