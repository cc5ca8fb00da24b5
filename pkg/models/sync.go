package models

// SyncRequest is the body accepted by the sync trigger. Nil fields fall back to
// configured defaults.
type SyncRequest struct {
	OrgID       string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	AccountID   *int64 `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Incremental *bool  `json:"incremental,omitempty" yaml:"incremental,omitempty"`
	OverlapDays *int   `json:"overlap_days,omitempty" yaml:"overlap_days,omitempty"`
	ChunkDays   *int   `json:"chunk_days,omitempty" yaml:"chunk_days,omitempty"`
	StartDate   string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// SyncResponse is returned by the sync trigger. It always holds one result per
// requested account, whether or not that account succeeded.
type SyncResponse struct {
	OK            bool            `json:"ok" yaml:"ok"`
	RunID         string          `json:"run_id" yaml:"run_id"`
	Results       []AccountResult `json:"results" yaml:"results"`
	TotalFetched  int             `json:"total_fetched" yaml:"total_fetched"`
	TotalUpserted int             `json:"total_upserted" yaml:"total_upserted"`
}

// Error kinds reported on failed account results.
const (
	ErrorKindMissingToken = "missing_token"
	ErrorKindHistoryLimit = "fio_history_limit"
	ErrorKindConflict     = "fio_conflict"
	ErrorKindUpstream     = "upstream_error"
	ErrorKindStore        = "store_error"
)

// Warnings recorded when the planner had to adjust the requested range.
const (
	WarningStartClamped = "start_clamped"
	WarningEndClamped   = "end_clamped"
)

// AccountResult reports the outcome of one account within a sync run.
type AccountResult struct {
	AccountID   int64          `json:"account_id" yaml:"account_id"`
	Label       string         `json:"label" yaml:"label"`
	OK          bool           `json:"ok" yaml:"ok"`
	Fetched     int            `json:"fetched" yaml:"fetched"`
	Upserted    int            `json:"upserted" yaml:"upserted"`
	Inserted    int            `json:"inserted" yaml:"inserted"`
	AmountTotal string         `json:"amount_total,omitempty" yaml:"amount_total,omitempty"`
	StartDate   string         `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string         `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Windows     []WindowResult `json:"windows" yaml:"windows"`
	Warnings    []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Message     string         `json:"message,omitempty" yaml:"message,omitempty"`
	Status      int            `json:"status,omitempty" yaml:"status,omitempty"`
}

// WindowResult reports one fetched window.
type WindowResult struct {
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
	Fetched   int    `json:"fetched" yaml:"fetched"`
}
