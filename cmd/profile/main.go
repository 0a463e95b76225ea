//go:build profiling
// +build profiling

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"

	"github.com/meigma/xferwatch"
	"github.com/meigma/xferwatch/eventxfer"
)

type profileKind string

const (
	profileCPU   profileKind = "cpu"
	profileFG    profileKind = "fgprof"
	profileTrace profileKind = "trace"
	profileNone  profileKind = "none"
)

const (
	modeStream = "stream"
	modeEvent  = "event"
	modeBoth   = "both"
)

func main() {
	var (
		target    = flag.String("url", "", "URL to fetch (default: a local synthetic payload server)")
		size      = flag.Int("size", 64<<20, "synthetic payload size in bytes")
		chunk     = flag.Int("chunk", 16<<10, "synthetic server write size in bytes")
		chunked   = flag.Bool("chunked", false, "omit Content-Length from the synthetic payload")
		mode      = flag.String("mode", modeStream, "transport: stream, event, or both")
		step      = flag.Int("step", 10, "progress step in percent")
		raw       = flag.Bool("report-raw", false, "report raw byte counts")
		profile   = flag.String("profile", "cpu", "profile type: cpu, fgprof, trace, none")
		outDir    = flag.String("out", "profiles", "output directory for profiles")
		label     = flag.String("label", "", "label suffix for profile files")
		repeat    = flag.Int("repeat", 1, "number of iterations")
		logLevel  = flag.String("log-level", "", "log level: debug, info, warn, error")
		timeout   = flag.Duration("timeout", 15*time.Minute, "overall timeout")
		pyroAddr  = flag.String("pyroscope", "", "Pyroscope server URL (enables streaming, disables local profiles)")
		printRecs = flag.Bool("print-records", false, "print records to stderr")
	)
	flag.Parse()

	runID := time.Now().UTC().Format("20060102T150405Z")

	modeValue := strings.ToLower(*mode)
	if modeValue != modeStream && modeValue != modeEvent && modeValue != modeBoth {
		log.Fatalf("invalid mode %q (expected %s, %s, or %s)", *mode, modeStream, modeEvent, modeBoth)
	}

	profileKindValue := profileKind(strings.ToLower(*profile))
	if !isValidProfile(profileKindValue) {
		log.Fatalf("invalid profile %q (expected cpu, fgprof, trace, none)", *profile)
	}
	if *repeat < 1 {
		log.Fatalf("repeat must be >= 1")
	}

	urlValue := *target
	if urlValue == "" {
		srv := newPayloadServer(*size, *chunk, *chunked)
		defer srv.Close()
		urlValue = srv.URL + "/build/profile.data.br"
		log.Printf("serving %d synthetic bytes at %s", *size, urlValue)
	}

	// When Pyroscope is enabled, stream profiles instead of writing locally
	var pyroProfiler *pyroscope.Profiler
	if *pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "xferwatch-profile",
			ServerAddress:   *pyroAddr,
			// Grafana Cloud requires BasicAuth (AuthToken is deprecated)
			// User: instance ID from Grafana Cloud, Password: API token
			BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
			BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
			// Use a short upload rate since profiling runs are brief (~10s)
			UploadRate: 5 * time.Second,
			Logger:     pyroscope.StandardLogger,
			Tags: map[string]string{
				"mode":    modeValue,
				"git_sha": os.Getenv("GITHUB_SHA"),
				"git_ref": os.Getenv("GITHUB_REF_NAME"),
				"run_id":  runID,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("start pyroscope: %v", err)
		}
		pyroProfiler = profiler
		log.Printf("streaming profiles to %s", *pyroAddr)
	}

	if *pyroAddr == "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("create profile output dir: %v", err)
		}
	}

	labelParts := []string{modeValue}
	if *label != "" {
		labelParts = append(labelParts, sanitizeLabel(*label))
	}
	labelParts = append(labelParts, runID)
	labelValue := strings.Join(labelParts, "_")

	var records atomic.Int64
	opts := []xferwatch.ServiceOption{
		xferwatch.WithStep(*step),
		xferwatch.WithReportRaw(*raw),
		xferwatch.WithRecordFunc(func(rec xferwatch.Record) {
			records.Add(1)
			if *printRecs {
				fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", rec.Key, rec.Label, rec.Value)
			}
		}),
	}
	if *logLevel != "" {
		level, err := parseLogLevel(*logLevel)
		if err != nil {
			log.Fatalf("parse log level: %v", err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		opts = append(opts, xferwatch.WithLogger(logger))
	}

	svc, err := xferwatch.NewService(opts...)
	if err != nil {
		log.Fatalf("create service: %v", err)
	}
	defer svc.Close()

	// Only start local profiling when not streaming to Pyroscope
	var stopProfile func() error
	if *pyroAddr == "" {
		stopProfile, err = startProfile(profileKindValue, *outDir, labelValue)
		if err != nil {
			log.Fatalf("start profile: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := svc.HTTPClient(nil)
	events := svc.EventClient()

	for i := range *repeat {
		if *repeat > 1 {
			log.Printf("iteration %d/%d", i+1, *repeat)
		}
		if modeValue == modeStream || modeValue == modeBoth {
			start := time.Now()
			n, err := fetchStream(ctx, client, urlValue)
			if err != nil {
				log.Fatalf("stream fetch: %v", err)
			}
			log.Printf("stream fetch complete: %d bytes in %s", n, time.Since(start))
		}
		if modeValue == modeEvent || modeValue == modeBoth {
			start := time.Now()
			n, err := fetchEvent(ctx, events, urlValue)
			if err != nil {
				log.Fatalf("event fetch: %v", err)
			}
			log.Printf("event fetch complete: %d bytes in %s", n, time.Since(start))
		}
	}

	snap := svc.Snapshot()
	log.Printf("tracked %d/%d transfers, %d records", snap.TotalCompleted, snap.TotalMatched, records.Load())

	// Stop profiling - either Pyroscope or local
	if pyroProfiler != nil {
		if err := pyroProfiler.Stop(); err != nil {
			log.Fatalf("stop pyroscope: %v", err)
		}
		log.Printf("pyroscope profiling stopped")
	} else {
		if stopErr := stopProfile(); stopErr != nil {
			log.Fatalf("stop profile: %v", stopErr)
		}
		if err := writeHeapProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write heap profile: %v", err)
		}
		if err := writeAllocsProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write allocs profile: %v", err)
		}
	}
}

// newPayloadServer serves size bytes in chunk-sized writes.
func newPayloadServer(size, chunk int, chunked bool) *httptest.Server {
	payload := bytes.Repeat([]byte{0x5a}, size)
	if chunk <= 0 {
		chunk = size
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		if !chunked {
			w.Header().Set("Content-Length", strconv.Itoa(size))
		}
		flusher, _ := w.(http.Flusher)
		for off := 0; off < len(payload); off += chunk {
			end := min(off+chunk, len(payload))
			if _, err := w.Write(payload[off:end]); err != nil {
				return
			}
			if chunked && flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func fetchStream(ctx context.Context, client *http.Client, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(io.Discard, resp.Body)
}

func fetchEvent(ctx context.Context, t eventxfer.Transport, rawURL string) (int64, error) {
	req := t.NewRequest()
	if err := req.Open(http.MethodGet, rawURL); err != nil {
		return 0, err
	}
	if err := req.Send(ctx, nil); err != nil {
		return 0, err
	}
	return int64(len(req.Response())), nil
}

func isValidProfile(kind profileKind) bool {
	switch kind {
	case profileCPU, profileFG, profileTrace, profileNone:
		return true
	default:
		return false
	}
}

func startProfile(kind profileKind, outDir, label string) (func() error, error) {
	switch kind {
	case profileCPU:
		path := filepath.Join(outDir, "cpu_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			pprof.StopCPUProfile()
			return f.Close()
		}, nil
	case profileFG:
		path := filepath.Join(outDir, "fgprof_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		return func() error {
			stopErr := stop()
			closeErr := f.Close()
			return errors.Join(stopErr, closeErr)
		}, nil
	case profileTrace:
		path := filepath.Join(outDir, "trace_"+label+".out")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			trace.Stop()
			return f.Close()
		}, nil
	case profileNone:
		return func() error { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown profile type: %s", kind)
	}
}

func writeHeapProfile(outDir, label string) error {
	path := filepath.Join(outDir, "heap_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

func writeAllocsProfile(outDir, label string) error {
	path := filepath.Join(outDir, "allocs_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.Lookup("allocs").WriteTo(f, 0)
}

func sanitizeLabel(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}

func parseLogLevel(value string) (slog.Leveler, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unknown level %q", value)
	}
}
