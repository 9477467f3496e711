package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/artpar/costledger/domain/usage"
)

// SessionMetadataKey is the metadata key that tags records with their session.
const SessionMetadataKey = "session"

// ErrSessionClosed is returned by Log after Close.
var ErrSessionClosed = errors.New("session closed")

// SessionReport summarizes the records logged during a session.
type SessionReport struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Ended    time.Time     `json:"ended"`
	Duration time.Duration `json:"duration_ns"`
	Summary  usage.Summary `json:"summary"`
}

// Session groups the calls of one unit of work. Every record it logs is
// written to the ledger immediately and tagged with the session id.
type Session struct {
	svc     *LedgerService
	id      string
	started time.Time

	mu      sync.Mutex
	records []usage.Record
	report  *SessionReport
}

// Begin starts a session.
func (s *LedgerService) Begin() *Session {
	sess := &Session{
		svc:     s,
		id:      s.ids.New(),
		started: s.clock.Now(),
	}
	s.logger.Debug().Str("session", sess.id).Msg("session started")
	return sess
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Log records a call as part of the session.
func (s *Session) Log(ctx context.Context, in LogInput) (usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report != nil {
		return usage.Record{}, ErrSessionClosed
	}

	md := in.Metadata.Clone()
	if md == nil {
		md = make(usage.Metadata, 1)
	}
	tag, err := json.Marshal(s.id)
	if err != nil {
		return usage.Record{}, fmt.Errorf("encode session id: %w", err)
	}
	md[SessionMetadataKey] = tag
	in.Metadata = md

	r, err := s.svc.Log(ctx, in)
	if err != nil {
		return usage.Record{}, err
	}
	s.records = append(s.records, r)
	return r, nil
}

// Close ends the session and returns its report. Further calls return
// the same report.
func (s *Session) Close() SessionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report != nil {
		return *s.report
	}

	ended := s.svc.clock.Now()
	s.report = &SessionReport{
		ID:       s.id,
		Started:  s.started,
		Ended:    ended,
		Duration: ended.Sub(s.started),
		Summary:  usage.Summarize(s.records),
	}

	s.svc.logger.Info().
		Str("session", s.id).
		Int64("calls", s.report.Summary.Calls).
		Float64("cost", s.report.Summary.Cost).
		Dur("duration", s.report.Duration).
		Msg("session closed")
	return *s.report
}

// WithSession runs fn inside a session that is closed when fn returns,
// including when it fails or panics.
func (s *LedgerService) WithSession(fn func(*Session) error) (report SessionReport, err error) {
	sess := s.Begin()
	defer func() {
		report = sess.Close()
	}()
	err = fn(sess)
	return report, err
}

// Ensure interface compliance.
var _ Recorder = (*Session)(nil)
