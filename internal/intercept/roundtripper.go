package intercept

import (
	"bytes"
	"io"
	"net/http"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/internal/progress"
)

// RoundTripper wraps an http.RoundTripper. Matched responses are read in
// full while being observed and returned as a copy whose body replays the
// received bytes. Other requests pass through untouched.
type RoundTripper struct {
	next http.RoundTripper
	obs  *Observer
}

// NewRoundTripper wraps next. A nil next wraps http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper, obs *Observer) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{next: next, obs: obs}
}

// Unwrap returns the wrapped transport.
func (rt *RoundTripper) Unwrap() http.RoundTripper { return rt.next }

// Observer returns the observer the transport reports to.
func (rt *RoundTripper) Observer() *Observer { return rt.obs }

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !rt.obs.Match(req.URL.String()) {
		return rt.next.RoundTrip(req)
	}

	s := rt.obs.begin(resolveHTTP(req), core.TransportStream)

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		rt.obs.abandon(s, err)
		return nil, err
	}

	s.Response(statusLine(resp), resp.Header)

	if resp.Body == nil || resp.Body == http.NoBody {
		rt.obs.finish(req.Context(), s, s.CompleteNoBody())
		return resp, nil
	}

	pr := progress.NewReader(resp.Body, resp.ContentLength, func(chunk []byte, _, total int64) {
		s.Observe(chunk, total)
	})
	readErr := pr.Drain(nil)
	if err := pr.Close(); err != nil {
		rt.obs.logger().Debug("close response body", "key", s.Key(), "error", err)
	}
	if readErr != nil {
		rt.obs.abandon(s, readErr)
		return nil, readErr
	}

	sum := s.Complete()
	rt.obs.finish(req.Context(), s, sum)

	out := *resp
	out.Body = io.NopCloser(bytes.NewReader(s.Body()))
	return &out, nil
}
