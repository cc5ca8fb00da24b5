// Package fio implements the statement fetcher for the Fio banka REST API.
package fio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vpnda/fio-sync/pkg/models"
	"github.com/vpnda/fio-sync/pkg/utils"
)

const (
	DefaultBaseURL = "https://fioapi.fio.cz/v1/rest"
	DefaultTimeout = 60 * time.Second
	// DefaultMinInterval is the provider's limit of one request per token every 30 seconds.
	DefaultMinInterval = 30 * time.Second

	maxErrorBody = 4 << 10
)

var (
	ErrMissingToken = errors.New("fio token is missing")
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
)

// Client fetches account statements, one request per window.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      zerolog.Logger
	minInterval time.Duration
	debug       bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithTransport sets the HTTP transport
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithMinInterval sets the minimum delay between two requests with the same
// token. Zero or less disables rate limiting.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.minInterval = d
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug dumps requests and responses, with tokens redacted, at debug level
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// NewClient creates a new Fio API client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		logger:      log.Logger,
		minInterval: DefaultMinInterval,
		limiters:    make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.debug {
		httpClient := *c.httpClient
		httpClient.Transport = utils.DebugRoundTripperWithUnderlying(httpClient.Transport, c.logger, RedactURL)
		c.httpClient = &httpClient
	}
	return c
}

func (c *Client) limiter(token string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[token]
	if !ok {
		if c.minInterval <= 0 {
			l = rate.NewLimiter(rate.Inf, 1)
		} else {
			l = rate.NewLimiter(rate.Every(c.minInterval), 1)
		}
		c.limiters[token] = l
	}
	return l
}

type statementResponse struct {
	AccountStatement struct {
		Info            *models.StatementInfo `json:"info"`
		TransactionList *struct {
			Transaction []models.RawRecord `json:"transaction"`
		} `json:"transactionList"`
	} `json:"accountStatement"`
}

// FetchStatement downloads the statement of [start, end] for the account the
// token belongs to. Dates are YYYY-MM-DD. It never retries.
func (c *Client) FetchStatement(ctx context.Context, token, start, end string) (*models.Statement, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	for _, d := range []string{start, end} {
		if !validDate(d) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, d)
		}
	}

	if err := c.limiter(token).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s/periods/%s/%s/%s/transactions.json", c.baseURL, url.PathEscape(token), start, end)
	logURL := RedactURL(reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", redactError(err))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", logURL).Str("start", start).Str("end", end).Msg("Fetching fio statement")

	begin := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(begin)
	if err != nil {
		err = redactError(err)
		c.logger.Error().Err(err).Str("start", start).Str("end", end).Dur("elapsed", elapsed).Msg("Fio request failed")
		return nil, fmt.Errorf("failed to fetch statement %s..%s: %w", start, end, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(resp.StatusCode, RedactURL(strings.TrimSpace(string(body))))
		c.logger.Warn().Int("status", resp.StatusCode).Str("start", start).Str("end", end).Dur("elapsed", elapsed).Msg("Fio non-OK response")
		return nil, apiErr
	}

	var payload statementResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode statement %s..%s: %w", start, end, err)
	}

	statement := &models.Statement{Info: payload.AccountStatement.Info}
	if list := payload.AccountStatement.TransactionList; list != nil {
		statement.Transactions = list.Transaction
	}

	c.logger.Debug().
		Str("start", start).
		Str("end", end).
		Int("fetched", len(statement.Transactions)).
		Dur("elapsed", elapsed).
		Msg("Fetched fio statement")
	return statement, nil
}

func validDate(s string) bool {
	if len(s) != len(time.DateOnly) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

var tokenInPath = regexp.MustCompile(`/(periods|by-id|last|set-last-id|set-last-date|lastStatement)/[^/?#\s]+`)

// RedactURL hides the token segment of every Fio API path in s.
func RedactURL(s string) string {
	return tokenInPath.ReplaceAllString(s, "/$1/***")
}

// redactError rewrites the URL carried by transport errors so that tokens do
// not leak into logs or results.
func redactError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactURL(urlErr.URL)
	}
	return err
}

// StatusForError maps a fetch error onto the HTTP status reported to callers:
// the provider's own status for API errors, 504 for timeouts and 502 for any
// other transport failure.
func StatusForError(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
