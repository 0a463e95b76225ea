package xferwatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/meigma/xferwatch/internal/oracle"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithOracle replaces the size oracle. A nil oracle disables correction
// lookups, so every transfer reports raw bytes.
func WithOracle(o SizeOracle) ServiceOption {
	return func(s *Service) error {
		s.oracle = o
		return nil
	}
}

// WithOracleSizes replaces the size oracle with a table built from sizes,
// keyed by URL substring.
func WithOracleSizes(sizes map[string]int64) ServiceOption {
	return func(s *Service) error {
		table, err := oracle.FromMap(sizes)
		if err != nil {
			return err
		}
		s.oracle = table
		return nil
	}
}

// WithOracleFile replaces the size oracle with a YAML table read from path.
func WithOracleFile(path string) ServiceOption {
	return func(s *Service) error {
		table, err := oracle.LoadFile(path)
		if err != nil {
			return fmt.Errorf("oracle file: %w", err)
		}
		s.oracle = table
		return nil
	}
}

// WithCorrection enables or disables declared-vs-oracle size correction.
func WithCorrection(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.cfg.Correction = enabled
		return nil
	}
}

// WithReportRaw reports raw transport figures even when correction is enabled.
func WithReportRaw(raw bool) ServiceOption {
	return func(s *Service) error {
		s.cfg.ReportRaw = raw
		return nil
	}
}

// WithStep sets the percent distance between progress records.
// The step must be between 1 and 100.
func WithStep(step int) ServiceOption {
	return func(s *Service) error {
		if step <= 0 || step > 100 {
			return fmt.Errorf("step %d: %w", step, ErrInvalidStep)
		}
		s.cfg.Step = step
		return nil
	}
}

// WithMarkers sets the URL substrings that select a request for tracking.
// An empty list keeps the defaults.
func WithMarkers(markers ...string) ServiceOption {
	return func(s *Service) error {
		var kept []string
		for _, m := range markers {
			if m != "" {
				kept = append(kept, m)
			}
		}
		s.cfg.Markers = kept
		return nil
	}
}

// WithRecordFunc sets the callback receiving every record. It is called from
// the goroutines executing requests and must be safe for concurrent use.
func WithRecordFunc(fn RecordFunc) ServiceOption {
	return func(s *Service) error {
		s.onRecord = fn
		return nil
	}
}

// WithSummaryFunc sets the callback receiving each completed transfer.
func WithSummaryFunc(fn SummaryFunc) ServiceOption {
	return func(s *Service) error {
		s.onSummary = fn
		return nil
	}
}

// WithSink adds a sink that persists summaries. Sink errors are logged and
// never affect the transfer. Sinks are closed by Service.Close.
func WithSink(sink Sink) ServiceOption {
	return func(s *Service) error {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
		return nil
	}
}

// WithClock overrides the clock used to time transfers.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		s.now = now
		return nil
	}
}
