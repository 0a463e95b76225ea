//go:build integration

package main_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rogpeppe/go-internal/testscript"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/xferwatch/cmd/xferwatch/cli"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"xferwatch": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
	}))
}

func TestCLI(t *testing.T) {
	srv := newPayloadServer(t)
	redisAddr := startRedis(t)

	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			env.Setenv("SERVER_URL", srv.URL)
			env.Setenv("REDIS_ADDR", redisAddr)
			// testscript sets HOME=/no-home which is read-only
			env.Setenv("XDG_CONFIG_HOME", env.WorkDir+"/.config")
			env.Setenv("XDG_DATA_HOME", env.WorkDir+"/.local/share")
			return nil
		},
	})
}

// newPayloadServer serves fixed payloads:
//
//	/build/game.data.br  64000 bytes with Content-Length
//	/build/game.wasm.br  32000 bytes, chunked
//	/pkg/game.data.gz    gzip of 10000 bytes
//	/readme.txt          untracked text
//
// Every other path is a 404.
func newPayloadServer(t *testing.T) *httptest.Server {
	t.Helper()

	data := bytes.Repeat([]byte("d"), 64000)
	wasm := bytes.Repeat([]byte("w"), 32000)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(bytes.Repeat([]byte("g"), 10000)); err != nil {
		t.Fatalf("gzip payload: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip payload: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/build/game.data.br", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/build/game.wasm.br", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/wasm")
		for i := 0; i < len(wasm); i += 8000 {
			_, _ = w.Write(wasm[i : i+8000])
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/pkg/game.data.gz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(gz.Bytes())
	})
	mux.HandleFunc("/readme.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello\n"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// startRedis starts a Redis container and returns its host:port.
func startRedis(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return host + ":" + port.Port()
}
