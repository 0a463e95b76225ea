package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/internal/aggregate"
)

func newTracker(t *testing.T) *aggregate.Tracker {
	t.Helper()
	tr := aggregate.New()
	a := tr.Register("https://cdn/a.data.br")
	tr.Register("https://cdn/b.wasm.br")
	tr.Complete(a, core.Summary{Text: "1.00 s, total: 1.00 MB, downloaded: 1.00 MB, avg speed: 1.00 MB/s"})
	return tr
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	srv := New(newTracker(t), nil)
	rec := get(t, srv.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.TotalMatched)
	assert.Equal(t, 1, snap.TotalCompleted)
	assert.False(t, snap.AllDone)
	assert.Contains(t, snap.Results, "https://cdn/a.data.br")
}

func TestServer_Done(t *testing.T) {
	t.Parallel()

	tr := newTracker(t)
	srv := New(tr, nil)

	rec := get(t, srv.Handler(), "/api/done")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"all_done":false,"total_matched":2,"total_completed":1}`, rec.Body.String())

	tr.Complete("https://cdn/b.wasm.br", core.Summary{Text: "done"})
	rec = get(t, srv.Handler(), "/api/done")
	assert.JSONEq(t, `{"all_done":true,"total_matched":2,"total_completed":2}`, rec.Body.String())
}

func TestServer_Result(t *testing.T) {
	t.Parallel()

	srv := New(newTracker(t), nil)

	rec := get(t, srv.Handler(), "/api/result?key="+url.QueryEscape("https://cdn/a.data.br"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "avg speed: 1.00 MB/s")

	rec = get(t, srv.Handler(), "/api/result?key="+url.QueryEscape("https://cdn/b.wasm.br"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, srv.Handler(), "/api/result")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := get(t, New(aggregate.New(), nil).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(newTracker(t), nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
