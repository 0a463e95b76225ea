// Package intercept decorates the streaming and event transports so matched
// transfers are tracked without the caller's involvement.
package intercept

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/internal/aggregate"
	"github.com/meigma/xferwatch/internal/normalize"
	"github.com/meigma/xferwatch/internal/session"
)

// Observer holds the state shared by every wrapped transport of a service:
// matching rules, the size oracle, the aggregate tracker and the callbacks.
type Observer struct {
	Config  core.Config
	Oracle  normalize.Oracle
	Tracker *aggregate.Tracker
	// OnRecord receives every record of every matched transfer.
	OnRecord core.RecordFunc
	// OnComplete runs once per transfer after the tracker recorded it.
	OnComplete func(ctx context.Context, s core.Summary)
	Logger     *slog.Logger
	// Now overrides the clock used by sessions.
	Now func() time.Time
}

// Match reports whether rawURL contains one of the configured markers.
// An empty marker list falls back to core.DefaultMarkers.
func (o *Observer) Match(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	markers := o.Config.Markers
	if len(markers) == 0 {
		markers = core.DefaultMarkers
	}
	for _, m := range markers {
		if m != "" && strings.Contains(rawURL, m) {
			return true
		}
	}
	return false
}

func (o *Observer) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// begin registers a matched transfer and emits its start records.
func (o *Observer) begin(req core.TransferRequest, transport core.Transport) *session.Session {
	key := o.Tracker.Register(req.URL())
	s := session.New(session.Options{
		Key:       key,
		Request:   req,
		Transport: transport,
		Config:    o.Config,
		Oracle:    o.Oracle,
		OnRecord:  o.OnRecord,
		Logger:    o.Logger,
		Now:       o.Now,
	})
	o.logger().Debug("tracking transfer",
		"key", key,
		"session", s.ID().String(),
		"transport", string(transport),
		"method", req.Method())
	s.Start()
	return s
}

// finish records a completed session in the tracker and notifies OnComplete
// the first time only.
func (o *Observer) finish(ctx context.Context, s *session.Session, sum core.Summary) {
	if !o.Tracker.Complete(s.Key(), sum) {
		return
	}
	if o.OnComplete != nil {
		o.OnComplete(ctx, sum)
	}
}

// abandon logs a transfer that failed before completing. The session is left
// active so the aggregate never reports it as done.
func (o *Observer) abandon(s *session.Session, err error) {
	o.logger().Warn("transfer failed",
		"key", s.Key(),
		"session", s.ID().String(),
		"loaded", s.Loaded(),
		"error", err)
}

// resolveHTTP derives the request shape from an outbound HTTP request.
// A plain GET without headers is the URL-only shape.
func resolveHTTP(req *http.Request) core.TransferRequest {
	u := req.URL.String()
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodGet && len(req.Header) == 0 {
		return core.URLOnly(u)
	}
	return core.Structured(u, method, req.Header)
}

// statusLine returns the "200 OK" style status of resp.
func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return strings.TrimSpace(strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode))
}
