// Package session implements the per-request transfer state machine.
//
// A Session is owned by the goroutine executing its request. Observations
// must be delivered sequentially; a Session is not safe for concurrent use.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/internal/normalize"
	"github.com/meigma/xferwatch/internal/throughput"
)

// State is the lifecycle state of a Session.
type State int

// Session states. There is no failed state: a transfer that errors stays
// Active and never counts as completed.
const (
	Created State = iota
	Active
	Completed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Active:
		return "active"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a new Session.
type Options struct {
	// Key identifies the transfer in the aggregate tracker.
	Key string
	// Request is the resolved request shape.
	Request core.TransferRequest
	// Transport is the transport carrying the transfer.
	Transport core.Transport
	// Config holds correction and step settings.
	Config core.Config
	// Oracle supplies expected sizes. May be nil.
	Oracle normalize.Oracle
	// OnRecord receives every record. May be nil.
	OnRecord core.RecordFunc
	// Logger receives debug output. Defaults to a discard logger.
	Logger *slog.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Session tracks a single matched transfer.
type Session struct {
	id        uuid.UUID
	key       string
	req       core.TransferRequest
	transport core.Transport
	cfg       core.Config
	oracle    normalize.Oracle
	onRecord  core.RecordFunc
	logger    *slog.Logger
	now       func() time.Time
	title     string

	startedAt  time.Time
	state      State
	declared   int64
	loaded     int64
	lastBucket int
	terminal   bool
	samples    throughput.Samples

	chunks   [][]byte
	digester digest.Digester
	summary  core.Summary
}

// New creates a Session in the Created state. StartedAt is taken from the
// clock immediately.
func New(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config
	if cfg.Step <= 0 {
		cfg.Step = core.DefaultStep
	}

	s := &Session{
		id:        uuid.New(),
		key:       opts.Key,
		req:       opts.Request,
		transport: opts.Transport,
		cfg:       cfg,
		oracle:    opts.Oracle,
		onRecord:  opts.OnRecord,
		now:       now,
		startedAt: now(),
	}
	if s.key == "" {
		s.key = s.req.URL()
	}
	s.title = fmt.Sprintf("[%s] %s %s", s.transport, s.req.Method(), s.req.URL())
	s.logger = logger.With("session", s.id.String(), "url", s.req.URL())
	return s
}

// ID returns the correlation id of the session.
func (s *Session) ID() uuid.UUID { return s.id }

// Key returns the aggregate key of the session.
func (s *Session) Key() string { return s.key }

// Title returns the header line of the session.
func (s *Session) Title() string { return s.title }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// StartedAt returns the issuance time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Loaded returns the raw number of bytes observed so far.
func (s *Session) Loaded() int64 { return s.loaded }

// DeclaredTotal returns the last known declared total, <= 0 if unknown.
func (s *Session) DeclaredTotal() int64 { return s.declared }

// LastBucket returns the bucket of the last emitted progress record.
func (s *Session) LastBucket() int { return s.lastBucket }

// Samples returns a copy of the speed samples in MB/s.
func (s *Session) Samples() []float64 { return s.samples.Values() }

// Start emits the start records: status, request headers, query parameters
// and start time.
func (s *Session) Start() {
	s.emit(core.LabelStatus, "Starting", -1)
	if h := s.req.Header(); len(h) > 0 {
		s.emit(core.LabelRequestHeaders, headerObject(h), -1)
	}
	if q, ok := queryParams(s.req.URL()); ok {
		s.emit(core.LabelQueryParams, q, -1)
	}
	s.emit(core.LabelStartTime, s.startedAt.Format(time.TimeOnly), -1)
}

// Response emits the response status and headers records.
// Status is the "200 OK" style status line.
func (s *Session) Response(status string, header http.Header) {
	s.emit(core.LabelResponseStatus, status, -1)
	s.emit(core.LabelResponseHeaders, headerPairs(header), -1)
}

// Observe records a chunk delivered by the streaming transport. The chunk is
// copied into the session buffer. Total is the declared total, <= 0 if unknown.
func (s *Session) Observe(chunk []byte, total int64) {
	if s.state == Completed {
		return
	}
	if len(chunk) > 0 {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		s.chunks = append(s.chunks, buf)
		if s.digester == nil {
			s.digester = digest.Canonical.Digester()
		}
		_, _ = s.digester.Hash().Write(buf)
	}
	s.observe(s.loaded+int64(len(chunk)), total)
}

// ObserveTotal records a progress event of the event transport carrying the
// cumulative loaded count and the declared total (<= 0 if unknown).
func (s *Session) ObserveTotal(loaded, total int64) {
	if s.state == Completed {
		return
	}
	s.observe(loaded, total)
}

func (s *Session) observe(raw, declared int64) {
	s.state = Active
	if raw < s.loaded {
		raw = s.loaded
	}
	s.loaded = raw
	if declared > 0 {
		s.declared = declared
	}

	res := normalize.Normalize(raw, declared, s.req.URL(), s.cfg, s.oracle)
	speed := throughput.Instant(res.Loaded, s.now().Sub(s.startedAt))
	s.samples.Add(speed)

	if !res.HasPercent {
		s.emit(core.LabelProgress, fmt.Sprintf("%.2f MB loaded, speed: %.2f MB/s",
			res.Loaded/core.MiB, speed), -1)
		return
	}

	step := s.cfg.Step
	bucket := normalize.Bucket(res.Percent, step)
	crossed := bucket-s.lastBucket >= step
	finished := res.Percent >= 100 && !s.terminal
	if !crossed && !finished {
		return
	}
	if res.Percent >= 100 {
		s.terminal = true
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
	}
	s.emit(core.LabelProgress, fmt.Sprintf("%.2f MB / %.2f MB (%d%%), speed: %.2f MB/s",
		res.Loaded/core.MiB, float64(declared)/core.MiB, s.lastBucket, speed), s.lastBucket)
}

// Complete finalizes a streaming transfer and returns its summary.
// Subsequent calls return the first summary unchanged.
func (s *Session) Complete() core.Summary {
	if s.state == Completed {
		return s.summary
	}
	elapsed := s.now().Sub(s.startedAt)
	reported := normalize.Normalize(s.loaded, s.declared, s.req.URL(), s.cfg, s.oracle).Loaded
	avg := s.samples.Average()

	text := fmt.Sprintf("%.2f s, total: %.2f MB, downloaded: %.2f MB, avg speed: %.2f MB/s",
		elapsed.Seconds(), float64(max(s.declared, 0))/core.MiB, reported/core.MiB, avg)

	sum := s.finish(elapsed, reported, avg, text)
	if s.digester != nil {
		sum.Digest = s.digester.Digest().String()
	} else {
		sum.Digest = digest.Canonical.FromBytes(nil).String()
	}
	s.summary = sum
	return sum
}

// CompleteEvent finalizes an event-transport transfer. Body is the response
// body exposed by the transport and headers its raw response header block.
// The size is normalized against the last known declared total.
func (s *Session) CompleteEvent(body []byte, headers string) core.Summary {
	if s.state == Completed {
		return s.summary
	}
	elapsed := s.now().Sub(s.startedAt)
	avg := s.samples.Average()

	size := "unknown"
	var reported float64
	if len(body) > 0 {
		reported = normalize.Normalize(int64(len(body)), s.declared, s.req.URL(), s.cfg, s.oracle).Loaded
		size = fmt.Sprintf("%.2f", reported/core.MiB)
	}
	if int64(len(body)) > s.loaded {
		s.loaded = int64(len(body))
	}

	text := fmt.Sprintf("%.2f s, size: %s MB, avg speed: %.2f MB/s, headers: %s",
		elapsed.Seconds(), size, avg, headers)

	sum := s.finish(elapsed, reported, avg, text)
	if len(body) > 0 {
		sum.Digest = digest.Canonical.FromBytes(body).String()
	}
	s.summary = sum
	return sum
}

// CompleteNoBody finalizes a transfer whose response carried no body.
func (s *Session) CompleteNoBody() core.Summary {
	if s.state == Completed {
		return s.summary
	}
	elapsed := s.now().Sub(s.startedAt)
	text := fmt.Sprintf("%.2f s (no body stream)", elapsed.Seconds())
	sum := s.finish(elapsed, 0, 0, text)
	sum.NoBody = true
	s.summary = sum
	return sum
}

func (s *Session) finish(elapsed time.Duration, reported, avg float64, text string) core.Summary {
	s.state = Completed
	s.emit(core.LabelCompleted, text, -1)
	s.logger.Debug("transfer completed",
		"key", s.key,
		"loaded", s.loaded,
		"declared", s.declared,
		"elapsed", elapsed,
		"samples", s.samples.Len())
	return core.Summary{
		ID:            s.id.String(),
		Key:           s.key,
		URL:           s.req.URL(),
		Method:        s.req.Method(),
		Transport:     s.transport,
		Elapsed:       elapsed,
		DeclaredTotal: s.declared,
		Loaded:        s.loaded,
		Reported:      reported,
		AverageSpeed:  avg,
		Text:          text,
		CompletedAt:   s.startedAt.Add(elapsed),
	}
}

// Body returns the buffered chunks concatenated in arrival order and
// releases them. Later calls return nil.
func (s *Session) Body() []byte {
	if s.chunks == nil {
		return nil
	}
	body := make([]byte, 0, s.loaded)
	for _, c := range s.chunks {
		body = append(body, c...)
	}
	s.chunks = nil
	return body
}

func (s *Session) emit(label, value string, percent int) {
	s.logger.Debug("transfer record", "label", label, "value", value)
	if s.onRecord == nil {
		return
	}
	s.onRecord(core.Record{
		Key:       s.key,
		Title:     s.title,
		Transport: s.transport,
		Label:     label,
		Value:     value,
		Percent:   percent,
		Time:      s.now(),
	})
}

// headerObject renders headers as a JSON object keyed by lower-case name.
// Repeated values are joined with ", ".
func headerObject(h http.Header) string {
	obj := make(map[string]string, len(h))
	for name, values := range h {
		obj[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// headerPairs renders headers as a JSON list of [name, value] pairs sorted
// by lower-case name.
func headerPairs(h http.Header) string {
	pairs := make([][2]string, 0, len(h))
	for name, values := range h {
		pairs = append(pairs, [2]string{strings.ToLower(name), strings.Join(values, ", ")})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	out, err := json.Marshal(pairs)
	if err != nil {
		return "[]"
	}
	return string(out)
}

// queryParams renders the query parameters of raw as a JSON object. It
// reports false when raw does not parse as an absolute URL or has no
// parameters. For repeated keys the last value wins.
func queryParams(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	values := u.Query()
	if len(values) == 0 {
		return "", false
	}
	obj := make(map[string]string, len(values))
	for k, v := range values {
		obj[k] = v[len(v)-1]
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "", false
	}
	return string(out), true
}
