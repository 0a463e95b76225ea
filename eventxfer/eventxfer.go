// Package eventxfer provides an event-based HTTP transport.
//
// A Request is opened with a method and URL, configured with headers and
// listeners, then sent. Send blocks until the transfer finishes and
// dispatches events on the calling goroutine in order: one EventHeaders
// when the response headers arrive, one EventProgress per body chunk, and
// finally either EventLoad or EventError.
//
// Basic usage:
//
//	req := eventxfer.NewClient().NewRequest()
//	if err := req.Open(http.MethodGet, "https://cdn.example.com/app.data.br"); err != nil {
//	    return err
//	}
//	req.AddEventListener(eventxfer.EventProgress, func(e eventxfer.Event) {
//	    fmt.Println(e.Loaded, e.Total)
//	})
//	if err := req.Send(ctx, nil); err != nil {
//	    return err
//	}
//	data := req.Response()
package eventxfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/internal/progress"
)

// Kind names an event type.
type Kind string

// Event kinds dispatched by a Request.
const (
	EventHeaders  Kind = "headers"
	EventProgress Kind = "progress"
	EventLoad     Kind = "load"
	EventError    Kind = "error"
)

// Event is delivered to listeners.
type Event struct {
	Kind Kind
	// Loaded is the cumulative number of body bytes received.
	Loaded int64
	// Total is the declared body length, 0 when unknown.
	Total int64
	// LengthComputable is true when Total is known.
	LengthComputable bool
	// Err is set for EventError.
	Err error
}

// Listener receives events.
type Listener func(Event)

// Request is a single event-based transfer.
type Request interface {
	// Open sets the method and URL. It must be called before Send.
	Open(method, rawURL string) error
	// SetRequestHeader adds a request header.
	SetRequestHeader(name, value string)
	// AddEventListener registers fn for events of kind. Listeners of the
	// same kind run in registration order.
	AddEventListener(kind Kind, fn Listener)
	// Send performs the transfer, dispatching events until it finishes.
	// A Request can only be sent once.
	Send(ctx context.Context, body io.Reader) error

	// Status returns the response status code, 0 before headers arrive.
	Status() int
	// StatusText returns the reason phrase of the response status.
	StatusText() string
	// ResponseHeader returns the response headers.
	ResponseHeader() http.Header
	// AllResponseHeaders returns the response headers as a raw block of
	// lower-case "name: value" lines separated by CRLF.
	AllResponseHeaders() string
	// Response returns the response body once the load event fired.
	Response() []byte
}

// Transport creates requests.
type Transport interface {
	NewRequest() Request
}

// maxPrealloc caps the response buffer reserved from Content-Length.
const maxPrealloc = 1 << 20

// Client is the default Transport backed by an *http.Client.
type Client struct {
	httpClient *http.Client
	bufSize    int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Transport may itself be
// an intercepted RoundTripper.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBufferSize sets the read buffer size, which bounds the size of the
// chunk reported by each progress event.
func WithBufferSize(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.bufSize = n
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		bufSize:    32 * 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest returns a new unopened Request.
func (c *Client) NewRequest() Request {
	return &request{
		client:    c,
		header:    make(http.Header),
		listeners: make(map[Kind][]Listener),
	}
}

type request struct {
	client    *Client
	method    string
	url       string
	opened    bool
	sent      bool
	header    http.Header
	listeners map[Kind][]Listener

	status     int
	statusText string
	respHeader http.Header
	response   []byte
}

func (r *request) Open(method, rawURL string) error {
	if method == "" {
		method = http.MethodGet
	}
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("open %q: %w", rawURL, err)
	}
	r.method = strings.ToUpper(method)
	r.url = rawURL
	r.opened = true
	return nil
}

func (r *request) SetRequestHeader(name, value string) {
	r.header.Add(name, value)
}

func (r *request) AddEventListener(kind Kind, fn Listener) {
	if fn == nil {
		return
	}
	r.listeners[kind] = append(r.listeners[kind], fn)
}

func (r *request) dispatch(e Event) {
	for _, fn := range r.listeners[e.Kind] {
		fn(e)
	}
}

func (r *request) Send(ctx context.Context, body io.Reader) error {
	if !r.opened {
		return core.ErrNotOpened
	}
	if r.sent {
		return core.ErrAlreadySent
	}
	r.sent = true

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		r.dispatch(Event{Kind: EventError, Err: err})
		return err
	}
	req.Header = r.header.Clone()

	resp, err := r.client.httpClient.Do(req)
	if err != nil {
		r.dispatch(Event{Kind: EventError, Err: err})
		return err
	}
	defer resp.Body.Close()

	r.status = resp.StatusCode
	r.statusText = reasonPhrase(resp)
	r.respHeader = resp.Header

	var total int64
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}
	r.dispatch(Event{Kind: EventHeaders, Total: total, LengthComputable: total > 0})

	// The declared length is untrusted; larger bodies grow as chunks arrive.
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(min(total, maxPrealloc)))
	}
	pr := progress.NewReader(resp.Body, total, func(chunk []byte, transferred, total int64) {
		buf.Write(chunk)
		r.dispatch(Event{
			Kind:             EventProgress,
			Loaded:           transferred,
			Total:            total,
			LengthComputable: total > 0,
		})
	})
	if err := pr.Drain(make([]byte, r.client.bufSize)); err != nil {
		r.dispatch(Event{Kind: EventError, Loaded: pr.Transferred(), Total: total, Err: err})
		return err
	}

	r.response = buf.Bytes()
	r.dispatch(Event{Kind: EventLoad, Loaded: pr.Transferred(), Total: total, LengthComputable: total > 0})
	return nil
}

func (r *request) Status() int { return r.status }

func (r *request) StatusText() string { return r.statusText }

func (r *request) ResponseHeader() http.Header { return r.respHeader }

func (r *request) AllResponseHeaders() string {
	names := make([]string, 0, len(r.respHeader))
	for name := range r.respHeader {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.Join(r.respHeader.Values(name), ", "))
		b.WriteString("\r\n")
	}
	return b.String()
}

func (r *request) Response() []byte { return r.response }

// reasonPhrase extracts "OK" from a "200 OK" status line.
func reasonPhrase(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
