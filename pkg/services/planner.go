package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/vpnda/fio-sync/pkg/models"
)

const (
	// HistoryDays is how far back the provider serves statements for a token.
	HistoryDays = 90

	DefaultOverlapDays = 2
	DefaultChunkDays   = 30
	MaxOverlapDays     = 31
	MaxChunkDays       = 120
)

// ErrHistoryLimit is returned when the whole requested range predates the
// provider's history window.
var ErrHistoryLimit = errors.New("requested range is outside the provider history window")

// PlanInput holds everything the planner needs. All dates are calendar dates.
type PlanInput struct {
	Today time.Time
	// Start and End are explicit caller overrides
	Start *time.Time
	End   *time.Time

	Incremental bool
	OverlapDays int
	ChunkDays   int

	// LastKnown is the last booking date already synced for the account
	LastKnown *time.Time
}

// Plan is the outcome of PlanWindows.
type Plan struct {
	Start    time.Time
	End      time.Time
	Windows  []models.Window
	Warnings []string
}

// PlanWindows turns a requested range into ordered, contiguous fetch windows
// that fit inside the provider's history window. It never reads the clock.
func PlanWindows(in PlanInput) (Plan, error) {
	var plan Plan
	today := truncateDay(in.Today)

	end := today
	if in.End != nil {
		end = truncateDay(*in.End)
	}
	if end.After(today) {
		end = today
		plan.Warnings = append(plan.Warnings, models.WarningEndClamped)
	}

	var start time.Time
	switch {
	case in.Start != nil:
		start = truncateDay(*in.Start)
	case in.Incremental && in.LastKnown != nil:
		start = truncateDay(*in.LastKnown).AddDate(0, 0, -in.OverlapDays)
	default:
		start = end.AddDate(0, 0, -(HistoryDays - 1))
	}

	if start.After(end) {
		start, end = end, start
		// a start in the future becomes the end after swapping
		if end.After(today) {
			end = today
			if !lo.Contains(plan.Warnings, models.WarningEndClamped) {
				plan.Warnings = append(plan.Warnings, models.WarningEndClamped)
			}
		}
	}

	minAllowed := today.AddDate(0, 0, -(HistoryDays - 1))
	if end.Before(minAllowed) {
		return Plan{}, fmt.Errorf("%w: %s..%s ends before %s",
			ErrHistoryLimit, start.Format(time.DateOnly), end.Format(time.DateOnly), minAllowed.Format(time.DateOnly))
	}
	if start.Before(minAllowed) {
		start = minAllowed
		plan.Warnings = append(plan.Warnings, models.WarningStartClamped)
	}

	plan.Start = start
	plan.End = end
	plan.Windows = splitWindows(start, end, in.ChunkDays)
	return plan, nil
}

// splitWindows cuts [start, end] into inclusive windows of at most chunkDays
// days. A non-positive chunkDays yields a single window.
func splitWindows(start, end time.Time, chunkDays int) []models.Window {
	if chunkDays <= 0 {
		return []models.Window{{Start: start, End: end}}
	}

	var windows []models.Window
	for s := start; !s.After(end); {
		e := s.AddDate(0, 0, chunkDays-1)
		if e.After(end) {
			e = end
		}
		windows = append(windows, models.Window{Start: s, End: e})
		s = e.AddDate(0, 0, 1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
