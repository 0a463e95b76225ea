package xferwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/eventxfer"
	"github.com/meigma/xferwatch/internal/aggregate"
	"github.com/meigma/xferwatch/internal/intercept"
	"github.com/meigma/xferwatch/internal/oracle"
)

// Service tracks matched transfers across every transport it has wrapped.
// A Service is safe for concurrent use; create one per program and share it.
type Service struct {
	cfg       core.Config
	oracle    SizeOracle
	tracker   *aggregate.Tracker
	observer  *intercept.Observer
	logger    *slog.Logger
	onRecord  RecordFunc
	onSummary SummaryFunc
	sinks     []Sink
	now       func() time.Time
}

// NewService creates a new Service.
//
// By default the size oracle holds the two default payload sizes, correction
// is enabled, progress is reported every 10 percent and URLs containing
// ".data.br" or ".wasm.br" are tracked.
func NewService(opts ...ServiceOption) (*Service, error) {
	s := &Service{
		cfg:    core.DefaultConfig(),
		oracle: oracle.Default(),
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("step %d: %w", s.cfg.Step, err)
	}
	if len(s.cfg.Markers) == 0 {
		s.cfg.Markers = append([]string(nil), core.DefaultMarkers...)
	}

	s.tracker = aggregate.New()
	s.observer = &intercept.Observer{
		Config:     s.cfg,
		Tracker:    s.tracker,
		OnRecord:   s.onRecord,
		OnComplete: s.complete,
		Logger:     s.logger,
		Now:        s.now,
	}
	if s.oracle != nil {
		s.observer.Oracle = s.oracle
	}

	s.logger.Debug("service ready",
		"markers", s.cfg.Markers,
		"step", s.cfg.Step,
		"correction", s.cfg.CorrectionActive(),
		"sinks", len(s.sinks))
	return s, nil
}

// Install wraps rt so matched requests are tracked. A nil rt wraps
// http.DefaultTransport. A transport already wrapped by this Service is
// returned unchanged.
func (s *Service) Install(rt http.RoundTripper) http.RoundTripper {
	if w, ok := rt.(*intercept.RoundTripper); ok && w.Observer() == s.observer {
		return rt
	}
	return intercept.NewRoundTripper(rt, s.observer)
}

// InstallEvents wraps t so matched event requests are tracked. A transport
// already wrapped by this Service is returned unchanged.
func (s *Service) InstallEvents(t eventxfer.Transport) eventxfer.Transport {
	if w, ok := t.(*intercept.EventTransport); ok && w.Observer() == s.observer {
		return t
	}
	return intercept.NewEventTransport(t, s.observer)
}

// HTTPClient returns a shallow copy of base whose transport is installed.
// A nil base copies http.DefaultClient.
func (s *Service) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	c := *base
	c.Transport = s.Install(base.Transport)
	return &c
}

// EventClient returns an installed event transport backed by a new
// eventxfer.Client.
func (s *Service) EventClient(opts ...eventxfer.ClientOption) eventxfer.Transport {
	return s.InstallEvents(eventxfer.NewClient(opts...))
}

// Snapshot returns a copy of the aggregate state.
func (s *Service) Snapshot() Snapshot {
	return s.tracker.Snapshot()
}

// AllDone reports whether at least one transfer matched and every matched
// transfer completed.
func (s *Service) AllDone() bool {
	return s.tracker.AllDone()
}

// Summary returns the summary of the completed transfer stored under key.
func (s *Service) Summary(key string) (Summary, bool) {
	return s.tracker.Summary(key)
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	cfg := s.cfg
	cfg.Markers = append([]string(nil), s.cfg.Markers...)
	return cfg
}

// Wait polls AllDone every interval until it reports true or ctx is done.
func (s *Service) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if s.AllDone() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes every configured sink.
func (s *Service) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// complete runs once per completed transfer.
func (s *Service) complete(ctx context.Context, sum Summary) {
	s.logger.Info("transfer complete",
		"key", sum.Key,
		"transport", string(sum.Transport),
		"loaded", sum.Loaded,
		"elapsed", sum.Elapsed)

	if s.onSummary != nil {
		s.onSummary(sum)
	}

	ctx = context.WithoutCancel(ctx)
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, sum); err != nil {
			s.logger.Warn("sink record failed", "key", sum.Key, "error", err)
		}
	}
}
