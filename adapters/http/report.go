// Package http serves read-only ledger reports over HTTP.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

// Default and maximum day counts for /v1/trend.
const (
	DefaultTrendDays = 7
	MaxTrendDays     = 366
)

// Error codes returned in the error envelope.
const (
	CodeInvalidParameter = "invalid_parameter"
	CodeInternal         = "internal_error"
)

// ReportHandler serves ledger reports.
type ReportHandler struct {
	service *app.LedgerService
	limits  func() app.Limits
	logger  zerolog.Logger
}

// NewReportHandler creates a report handler. limits supplies the
// configured spend limits used when /v1/alert is called without them;
// it is read per request so reloaded values apply immediately.
func NewReportHandler(service *app.LedgerService, limits func() app.Limits, logger zerolog.Logger) *ReportHandler {
	if limits == nil {
		limits = func() app.Limits { return app.Limits{} }
	}
	return &ReportHandler{
		service: service,
		limits:  limits,
		logger:  logger,
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	MetricsHandler http.Handler // mounted at MetricsPath when set
	MetricsPath    string       // default /metrics
	RequestTimeout time.Duration
}

// NewRouter creates the report router.
func NewRouter(h *ReportHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", Health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/records", h.Records)
		r.Get("/summary", h.Summary)
		r.Get("/trend", h.Trend)
		r.Get("/alert", h.Alert)
	})

	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	}

	return r
}

// Health returns a simple liveness check.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecordsResponse is the body of /v1/records.
type RecordsResponse struct {
	Count   int          `json:"count"`
	Records []wire.Entry `json:"records"`
}

// Records lists matching records oldest first.
// Query: start, end, model, limit (most recent N).
func (h *ReportHandler) Records(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0, 0, -1)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records, err := h.service.Query(r.Context(), f, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := RecordsResponse{Count: len(records), Records: make([]wire.Entry, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, wire.FromRecord(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SummaryResponse is the body of /v1/summary.
type SummaryResponse struct {
	Start  *time.Time         `json:"start,omitempty"`
	End    *time.Time         `json:"end,omitempty"`
	Totals usage.Summary      `json:"summary"`
	Models []usage.ModelShare `json:"models"`
}

// Summary aggregates matching records.
// Query: start, end, model, or window=today|week|month.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if window := r.URL.Query().Get("window"); window != "" {
		if !f.Start.IsZero() || !f.End.IsZero() {
			h.fail(w, r, &paramError{"window", window, "cannot be combined with start or end"})
			return
		}
		wf, err := h.service.Window(window)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.Start, f.End = wf.Start, wf.End
	}

	s, err := h.service.Summary(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := SummaryResponse{Totals: s, Models: usage.RankModels(s)}
	if !f.Start.IsZero() {
		resp.Start = &f.Start
	}
	if !f.End.IsZero() {
		resp.End = &f.End
	}
	writeJSON(w, http.StatusOK, resp)
}

// TrendResponse is the body of /v1/trend.
type TrendResponse struct {
	Days    int                 `json:"days"`
	Buckets []usage.DailyBucket `json:"buckets"`
}

// Trend returns daily buckets for the last N days (query: days).
func (h *ReportHandler) Trend(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", DefaultTrendDays, 1, MaxTrendDays)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	buckets, err := h.service.Trend(r.Context(), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TrendResponse{Days: days, Buckets: buckets})
}

// AlertResponse is the body of /v1/alert.
type AlertResponse struct {
	app.AlertReport
	Limits   app.Limits `json:"limits"`
	Breached bool       `json:"breached"`
}

// Alert checks spend against limits. Query: daily_limit, monthly_limit;
// each defaults to the configured value.
func (h *ReportHandler) Alert(w http.ResponseWriter, r *http.Request) {
	limits := h.limits()

	var err error
	if limits.Daily, err = floatParam(r, "daily_limit", limits.Daily); err != nil {
		h.fail(w, r, err)
		return
	}
	if limits.Monthly, err = floatParam(r, "monthly_limit", limits.Monthly); err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.service.Alert(r.Context(), limits)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AlertResponse{
		AlertReport: report,
		Limits:      limits,
		Breached:    report.Breached(),
	})
}

// paramError is a rejected query parameter.
type paramError struct {
	name  string
	value string
	msg   string
}

func (e *paramError) Error() string {
	return e.name + ": " + e.msg + " (got " + strconv.Quote(e.value) + ")"
}

func filterFromQuery(r *http.Request) (usage.Filter, error) {
	q := r.URL.Query()

	start, err := usage.ParseTime(q.Get("start"), false)
	if err != nil {
		return usage.Filter{}, &paramError{"start", q.Get("start"), err.Error()}
	}
	end, err := usage.ParseTime(q.Get("end"), true)
	if err != nil {
		return usage.Filter{}, &paramError{"end", q.Get("end"), err.Error()}
	}

	f := usage.Filter{Model: strings.TrimSpace(q.Get("model")), Start: start, End: end}
	if err := f.Validate(); err != nil {
		return usage.Filter{}, err
	}
	return f, nil
}

// intParam parses an integer parameter within [lo, hi]; hi < 0 means
// unbounded.
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name, raw, "must be an integer"}
	}
	if n < lo || (hi >= 0 && n > hi) {
		if hi >= 0 {
			return 0, &paramError{name, raw, "must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)}
		}
		return 0, &paramError{name, raw, "must be >= " + strconv.Itoa(lo)}
	}
	return n, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, &paramError{name, raw, "must be a non-negative number"}
	}
	return v, nil
}

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *ReportHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var pe *paramError
	switch {
	case errors.As(err, &pe), errors.Is(err, usage.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, CodeInvalidParameter, err.Error())
	default:
		h.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("report failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to read ledger")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewLoggingMiddleware logs HTTP requests at debug level.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/health" || r.URL.Path == metricsPath {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
