package intercept

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/eventxfer"
	"github.com/meigma/xferwatch/internal/session"
)

// EventTransport wraps an eventxfer.Transport. Requests it creates attach
// tracking listeners when sent to a matched URL.
type EventTransport struct {
	next eventxfer.Transport
	obs  *Observer
}

// NewEventTransport wraps next.
func NewEventTransport(next eventxfer.Transport, obs *Observer) *EventTransport {
	return &EventTransport{next: next, obs: obs}
}

// Unwrap returns the wrapped transport.
func (t *EventTransport) Unwrap() eventxfer.Transport { return t.next }

// Observer returns the observer the transport reports to.
func (t *EventTransport) Observer() *Observer { return t.obs }

// NewRequest implements eventxfer.Transport.
func (t *EventTransport) NewRequest() eventxfer.Request {
	return &eventRequest{
		Request: t.next.NewRequest(),
		obs:     t.obs,
		header:  make(http.Header),
	}
}

// eventRequest records what the caller opens and sets so the request shape
// is known at Send time. Everything else is delegated.
type eventRequest struct {
	eventxfer.Request
	obs    *Observer
	method string
	url    string
	header http.Header
	sent   bool
}

func (r *eventRequest) Open(method, rawURL string) error {
	if err := r.Request.Open(method, rawURL); err != nil {
		return err
	}
	if method == "" {
		method = http.MethodGet
	}
	r.method = strings.ToUpper(method)
	r.url = rawURL
	return nil
}

func (r *eventRequest) SetRequestHeader(name, value string) {
	r.header.Add(name, value)
	r.Request.SetRequestHeader(name, value)
}

func (r *eventRequest) Send(ctx context.Context, body io.Reader) error {
	if r.sent || !r.obs.Match(r.url) {
		return r.Request.Send(ctx, body)
	}
	r.sent = true

	s := r.obs.begin(r.shape(), core.TransportEvent)

	inner := r.Request
	inner.AddEventListener(eventxfer.EventHeaders, func(eventxfer.Event) {
		status := inner.StatusText()
		if status != "" {
			status = " " + status
		}
		s.Response(strconv.Itoa(inner.Status())+status, inner.ResponseHeader())
	})
	inner.AddEventListener(eventxfer.EventProgress, func(e eventxfer.Event) {
		if e.LengthComputable && e.Total > 0 {
			s.ObserveTotal(e.Loaded, e.Total)
			return
		}
		s.ObserveTotal(e.Loaded, 0)
	})
	inner.AddEventListener(eventxfer.EventLoad, func(eventxfer.Event) {
		sum := s.CompleteEvent(inner.Response(), inner.AllResponseHeaders())
		r.obs.finish(ctx, s, sum)
	})

	if err := inner.Send(ctx, body); err != nil {
		if s.State() != session.Completed {
			r.obs.abandon(s, err)
		}
		return err
	}
	return nil
}

func (r *eventRequest) shape() core.TransferRequest {
	if r.method == http.MethodGet && len(r.header) == 0 {
		return core.URLOnly(r.url)
	}
	return core.Structured(r.url, r.method, r.header)
}
