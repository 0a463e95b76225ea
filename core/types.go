// Package core provides the shared types and interfaces for xferwatch.
//
// This package exists to break import cycles between the root xferwatch package
// and internal implementation packages. The xferwatch package re-exports all
// public types from this package, so external users should import xferwatch
// directly, not xferwatch/core.
package core

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Sentinel errors for common failure conditions.
var (
	// ErrInvalidOracle indicates a size oracle table entry is unusable.
	ErrInvalidOracle = errors.New("xferwatch: invalid size oracle")

	// ErrInvalidStep indicates the percent step is outside (0, 100].
	ErrInvalidStep = errors.New("xferwatch: invalid percent step")

	// ErrNotOpened indicates Send was called on an event request before Open.
	ErrNotOpened = errors.New("xferwatch: request not opened")

	// ErrAlreadySent indicates Send was called twice on the same event request.
	ErrAlreadySent = errors.New("xferwatch: request already sent")

	// ErrPathTraversal indicates a saved file name would escape its directory.
	ErrPathTraversal = errors.New("xferwatch: path traversal detected")
)

// Default configuration values.
const (
	// DefaultStep is the percent step between throttled progress records.
	DefaultStep = 10

	// MiB is the divisor used for every MB figure in records.
	MiB = 1024 * 1024
)

// DefaultMarkers are the URL substrings tracked when no markers are configured:
// the primary data payload and the compiled code payload.
var DefaultMarkers = []string{".data.br", ".wasm.br"}

// Config holds the static settings shared by the interception layer.
type Config struct {
	// Correction enables declared-vs-oracle size correction.
	Correction bool
	// ReportRaw reports raw transport values even when Correction is set.
	// Correction only applies when Correction is true and ReportRaw is false.
	ReportRaw bool
	// Step is the percent distance between throttled progress records.
	Step int
	// Markers are the URL substrings that select a request for tracking.
	Markers []string
}

// DefaultConfig returns correction on, normalized reporting, 10% steps and
// the default markers.
func DefaultConfig() Config {
	return Config{
		Correction: true,
		Step:       DefaultStep,
		Markers:    append([]string(nil), DefaultMarkers...),
	}
}

// CorrectionActive reports whether oracle correction applies.
func (c Config) CorrectionActive() bool {
	return c.Correction && !c.ReportRaw
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	if c.Step <= 0 || c.Step > 100 {
		return ErrInvalidStep
	}
	return nil
}

// Transport identifies which transport observed a transfer.
type Transport string

// Transports known to the interception layer.
const (
	TransportStream Transport = "stream"
	TransportEvent  Transport = "event"
)

// Record labels emitted by a transfer session.
const (
	LabelStatus          = "Status"
	LabelRequestHeaders  = "Request Headers"
	LabelQueryParams     = "Query Params"
	LabelStartTime       = "Start Time"
	LabelResponseStatus  = "Response Status"
	LabelResponseHeaders = "Response Headers"
	LabelProgress        = "Progress"
	LabelCompleted       = "Completed"
)

// Record is a single (label, value) pair reported for a tracked transfer.
// Value is ready for direct rendering.
type Record struct {
	// Key identifies the transfer (its URL, suffixed on duplicates).
	Key string
	// Title is the header line for the transfer, e.g. "[stream] GET <url>".
	Title string
	// Transport is the transport that carried the transfer.
	Transport Transport
	// Label names the value, e.g. "Progress".
	Label string
	// Value is the human-readable value.
	Value string
	// Percent is the bucket of a throttled progress record, -1 otherwise.
	Percent int
	// Time is when the record was produced.
	Time time.Time
}

// RecordFunc receives records as they are produced.
// Implementations must be safe for concurrent calls from different transfers.
type RecordFunc func(Record)

// Summary describes a completed transfer.
type Summary struct {
	// ID is the correlation id of the transfer session.
	ID string
	// Key identifies the transfer in the aggregate results.
	Key string
	// URL is the request URL.
	URL string
	// Method is the request method.
	Method string
	// Transport is the transport that carried the transfer.
	Transport Transport
	// Elapsed is the time from issuance to completion.
	Elapsed time.Duration
	// DeclaredTotal is the size the transport declared (<= 0 if unknown).
	DeclaredTotal int64
	// Loaded is the raw number of bytes received.
	Loaded int64
	// Reported is the final byte figure shown, normalized when correction applied.
	Reported float64
	// AverageSpeed is the mean of the instantaneous samples in MB/s.
	AverageSpeed float64
	// Digest is the sha256 digest of the received body, empty if no body.
	Digest string
	// NoBody is true when the response carried no body at all.
	NoBody bool
	// Text is the human-readable completion line stored in the aggregate.
	Text string
	// CompletedAt is the completion time.
	CompletedAt time.Time
}

// SummaryFunc receives a summary for each completed transfer.
type SummaryFunc func(Summary)

// Snapshot is a point-in-time copy of the aggregate state.
type Snapshot struct {
	TotalMatched   int               `json:"total_matched"`
	TotalCompleted int               `json:"total_completed"`
	AllDone        bool              `json:"all_done"`
	Results        map[string]string `json:"results"`
}

// Sink persists summaries of completed transfers.
// Sink errors never fail a transfer; they are only logged.
type Sink interface {
	Record(ctx context.Context, s Summary) error
	Close() error
}

// TransferRequest is the request shape resolved once at interception.
// It is either a bare URL or a structured request carrying method and headers.
type TransferRequest struct {
	url        string
	method     string
	header     http.Header
	structured bool
}

// URLOnly returns a request that carries only a URL. Its method is GET.
func URLOnly(u string) TransferRequest {
	return TransferRequest{url: u, method: http.MethodGet}
}

// Structured returns a request with explicit method and headers.
// The header map is cloned so the request stays immutable.
func Structured(u, method string, header http.Header) TransferRequest {
	if method == "" {
		method = http.MethodGet
	}
	return TransferRequest{url: u, method: method, header: header.Clone(), structured: true}
}

// URL returns the request URL.
func (r TransferRequest) URL() string { return r.url }

// Method returns the request method.
func (r TransferRequest) Method() string { return r.method }

// Header returns a copy of the request headers, nil for URL-only requests.
func (r TransferRequest) Header() http.Header { return r.header.Clone() }

// IsStructured reports whether the request was resolved from a structured shape.
func (r TransferRequest) IsStructured() bool { return r.structured }
