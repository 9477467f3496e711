// Package app orchestrates ledger operations over the pure domain
// functions and the storage ports.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/artpar/costledger/domain/export"
	"github.com/artpar/costledger/domain/retention"
	"github.com/artpar/costledger/domain/threshold"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

// ErrThresholdBreached is returned by callers that turn a breached alert
// into a failure (the CLI exits with a distinct status for it).
var ErrThresholdBreached = errors.New("spend threshold breached")

// Named summary windows.
const (
	WindowToday = "today"
	WindowWeek  = "week"
	WindowMonth = "month"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LogInput is one call to record. A zero Timestamp means "now".
type LogInput struct {
	Model            string  `validate:"required"`
	PromptTokens     int64   `validate:"gte=0"`
	CompletionTokens int64   `validate:"gte=0"`
	Cost             float64 `validate:"gte=0"`
	ID               string
	Metadata         usage.Metadata
	Timestamp        time.Time
}

// Recorder logs usage. LedgerService and Session both implement it.
type Recorder interface {
	Log(ctx context.Context, in LogInput) (usage.Record, error)
}

// Limits are spend ceilings in USD. Zero disables a window.
type Limits struct {
	Daily   float64 `json:"daily_limit"`
	Monthly float64 `json:"monthly_limit"`
}

// AlertReport holds the check for each configured window.
type AlertReport struct {
	CheckedAt time.Time         `json:"checked_at"`
	Daily     *threshold.Result `json:"daily,omitempty"`
	Monthly   *threshold.Result `json:"monthly,omitempty"`
}

// Breached reports whether any checked window is breached.
func (r AlertReport) Breached() bool {
	return (r.Daily != nil && r.Daily.Breached) || (r.Monthly != nil && r.Monthly.Breached)
}

// Results returns the checked windows, daily first.
func (r AlertReport) Results() []threshold.Result {
	var out []threshold.Result
	if r.Daily != nil {
		out = append(out, *r.Daily)
	}
	if r.Monthly != nil {
		out = append(out, *r.Monthly)
	}
	return out
}

// LedgerService provides the ledger operations.
type LedgerService struct {
	store  ports.LedgerStore
	clock  ports.Clock
	ids    ports.IDGenerator
	logger zerolog.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store ports.LedgerStore, clock ports.Clock, ids ports.IDGenerator, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// Now returns the service clock's current time.
func (s *LedgerService) Now() time.Time {
	return s.clock.Now()
}

// Log validates the input and appends it as a new record.
func (s *LedgerService) Log(ctx context.Context, in LogInput) (usage.Record, error) {
	if err := validate.Struct(in); err != nil {
		return usage.Record{}, fmt.Errorf("%w: %s", usage.ErrInvalidRecord, describeValidation(err))
	}

	at := in.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}

	r, err := usage.NewRecord(at, in.Model, in.PromptTokens, in.CompletionTokens, in.Cost, in.ID, in.Metadata)
	if err != nil {
		return usage.Record{}, err
	}

	stored, err := s.store.Append(ctx, r)
	if err != nil {
		return usage.Record{}, err
	}

	s.logger.Debug().
		Str("model", stored.Model).
		Int64("tokens", stored.TotalTokens()).
		Float64("cost", stored.Cost).
		Msg("usage recorded")
	return stored, nil
}

// Query returns matching records ordered by timestamp. With limit > 0
// only the most recent limit records are returned, still oldest first.
func (s *LedgerService) Query(ctx context.Context, f usage.Filter, limit int) ([]usage.Record, error) {
	records, err := s.store.Load(ctx, f)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Summary aggregates the records matching f.
func (s *LedgerService) Summary(ctx context.Context, f usage.Filter) (usage.Summary, error) {
	records, err := s.store.Load(ctx, f)
	if err != nil {
		return usage.Summary{}, err
	}
	return usage.Summarize(records), nil
}

// Trend returns one bucket per UTC day for the last days days, today
// included.
func (s *LedgerService) Trend(ctx context.Context, days int) ([]usage.DailyBucket, error) {
	start, end := usage.LastNDays(s.clock.Now(), days)

	records, err := s.store.Load(ctx, usage.Filter{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	return usage.DailyTrend(records, start, end), nil
}

// Export writes the records matching f to w in the named format and
// returns how many were written.
func (s *LedgerService) Export(ctx context.Context, w io.Writer, format string, f usage.Filter) (int, error) {
	exporter, err := export.Lookup(format)
	if err != nil {
		return 0, err
	}

	records, err := s.store.Load(ctx, f)
	if err != nil {
		return 0, err
	}

	if err := exporter.Export(w, records); err != nil {
		return 0, fmt.Errorf("export %s: %w", format, err)
	}
	return len(records), nil
}

// Purge removes records stamped before cutoff and returns how many were
// removed. The ledger is only rewritten when something is removed.
func (s *LedgerService) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.store.Load(ctx, usage.Filter{})
	if err != nil {
		return 0, err
	}

	kept, removed := retention.Partition(records, cutoff)
	if len(removed) == 0 {
		s.logger.Debug().Time("cutoff", cutoff).Msg("nothing to purge")
		return 0, nil
	}

	if err := s.store.Replace(ctx, kept); err != nil {
		return 0, err
	}

	s.logger.Info().
		Time("cutoff", cutoff).
		Int("removed", len(removed)).
		Int("kept", len(kept)).
		Msg("ledger purged")
	return len(removed), nil
}

// Alert checks spend for UTC today and the current month against limits.
// Windows whose limit is not positive are skipped.
func (s *LedgerService) Alert(ctx context.Context, limits Limits) (AlertReport, error) {
	now := s.clock.Now()
	report := AlertReport{CheckedAt: now}
	if limits.Daily <= 0 && limits.Monthly <= 0 {
		return report, nil
	}

	// The month always contains today, so one load serves both windows.
	monthStart, monthEnd := usage.MonthBounds(now)
	records, err := s.store.Load(ctx, usage.Filter{Start: monthStart, End: monthEnd})
	if err != nil {
		return AlertReport{}, err
	}

	if limits.Daily > 0 {
		dayStart, dayEnd := usage.DayBounds(now)
		today := usage.Apply(records, usage.Filter{Start: dayStart, End: dayEnd})
		r := threshold.CheckWindow(threshold.WindowDaily, limits.Daily, usage.Summarize(today))
		report.Daily = &r
	}
	if limits.Monthly > 0 {
		r := threshold.CheckWindow(threshold.WindowMonthly, limits.Monthly, usage.Summarize(records))
		report.Monthly = &r
	}

	for _, r := range report.Results() {
		if r.Level >= threshold.LevelApproaching {
			s.logger.Warn().
				Str("window", string(r.Window)).
				Str("level", r.Level.String()).
				Float64("current", r.Current).
				Float64("limit", r.Limit).
				Msg("spend threshold")
		}
	}
	return report, nil
}

// Window resolves a named window (today, week, month) against the clock.
func (s *LedgerService) Window(name string) (usage.Filter, error) {
	now := s.clock.Now()
	var start, end time.Time
	switch name {
	case WindowToday:
		start, end = usage.DayBounds(now)
	case WindowWeek:
		start, end = usage.WeekBounds(now)
	case WindowMonth:
		start, end = usage.MonthBounds(now)
	default:
		return usage.Filter{}, fmt.Errorf("%w: unknown window %q", usage.ErrInvalidFilter, name)
	}
	return usage.Filter{Start: start, End: end}, nil
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must be %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}

// Ensure interface compliance.
var _ Recorder = (*LedgerService)(nil)
