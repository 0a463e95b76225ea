package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/xferwatch"
	"github.com/meigma/xferwatch/cmd/xferwatch/cli/config"
	"github.com/meigma/xferwatch/core"
	"github.com/meigma/xferwatch/eventxfer"
	"github.com/meigma/xferwatch/internal/safepath"
	"github.com/meigma/xferwatch/internal/sink"
	"github.com/meigma/xferwatch/internal/statusapi"
)

var (
	errUnknownTransport = errors.New("unknown transport")
	errHTTPStatus       = errors.New("unexpected HTTP status")
)

// completionWait bounds how long fetch polls for completion after every
// request has returned.
const completionWait = 5 * time.Second

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>...",
	Short: "Fetch URLs and report transfer progress",
	Long: `Fetch one or more URLs concurrently through an observed transport.

Tracked transfers report their request, response and throttled progress as
they run. When every tracked transfer completes a summary table is printed.

Examples:
  xferwatch fetch https://cdn.example.com/game.data.br
  xferwatch fetch --transport event -o ./out https://cdn.example.com/game.wasm.br
  xferwatch fetch --marker .bin --sizes sizes.yaml https://cdn.example.com/a.bin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

var (
	fetchOutput     string
	fetchDecompress bool
	fetchTimeout    time.Duration
	fetchNoCorrect  bool
)

func init() {
	f := fetchCmd.Flags()
	f.String("transport", "stream", "Transport to fetch with: stream or event")
	f.StringVarP(&fetchOutput, "output", "o", "", "Directory to save fetched bodies in")
	f.BoolVar(&fetchDecompress, "decompress", false, "Decompress saved .gz and .zst bodies")
	f.String("status-addr", "", "Serve the status API on this address while fetching")
	f.String("history", "", "Append summaries to this history file")
	f.String("redis-addr", "", "Write summaries to the Redis server at this address")
	f.Int("step", core.DefaultStep, "Report progress every N percent")
	f.BoolVar(&fetchNoCorrect, "no-correction", false, "Disable correction against expected sizes")
	f.Bool("report-raw", false, "Report raw byte counts even when correction is enabled")
	f.StringSlice("marker", nil, "URL substring to track (repeatable)")
	f.String("sizes", "", "YAML file of expected payload sizes")
	f.IntP("concurrency", "c", 4, "Maximum concurrent fetches")
	f.DurationVar(&fetchTimeout, "timeout", 0, "Overall timeout (0 disables)")

	for key, flag := range map[string]string{
		"transport":   "transport",
		"status-addr": "status-addr",
		"history":     "history",
		"redis.addr":  "redis-addr",
		"step":        "step",
		"report-raw":  "report-raw",
		"markers":     "marker",
		"sizes":       "sizes",
		"concurrency": "concurrency",
	} {
		//nolint:errcheck // flags are defined above
		viper.BindPFlag(key, f.Lookup(flag))
	}

	//nolint:errcheck // flag is defined above
	fetchCmd.RegisterFlagCompletionFunc("transport", completeTransports)
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchNoCorrect {
		cfg.Correction = false
	}
	transport, err := parseTransport(cfg.Transport)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if fetchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, fetchTimeout)
		defer cancelTimeout()
	}

	logger := newLogger()
	sinks, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	records := newRecordWriter(cmd.ErrOrStderr())
	opts := []xferwatch.ServiceOption{xferwatch.WithRecordFunc(records.Record)}
	for _, s := range sinks {
		opts = append(opts, xferwatch.WithSink(s))
	}

	svc, err := newService(cfg, logger, opts...)
	if err != nil {
		closeSinks(sinks)
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Warn("close sinks", "error", closeErr)
		}
	}()

	if cfg.StatusAddr != "" {
		stop, err := startStatusAPI(ctx, svc, cfg.StatusAddr, logger, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer stop()
	}

	if fetchOutput != "" {
		if err := os.MkdirAll(fetchOutput, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f := &fetcher{
		transport:  transport,
		client:     svc.HTTPClient(nil),
		events:     svc.EventClient(),
		output:     fetchOutput,
		decompress: fetchDecompress,
		stderr:     cmd.ErrOrStderr(),
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(max(cfg.Concurrency, 1))
	for _, rawURL := range args {
		g.Go(func() error {
			if err := f.fetch(ctx, rawURL); err != nil {
				err = fmt.Errorf("fetch %s: %w", rawURL, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	var fetchErr error
	if err := g.Wait(); err != nil {
		fetchErr = errors.Join(errs...)
	}

	snap := svc.Snapshot()
	if snap.TotalMatched == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "No transfers matched markers %v\n", svc.Config().Markers)
		return fetchErr
	}

	if fetchErr == nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, completionWait)
		defer cancelWait()
		if err := svc.Wait(waitCtx, 50*time.Millisecond); err != nil {
			logger.Warn("not every transfer completed", "error", err)
		}
		snap = svc.Snapshot()
	}

	printSummary(cmd.OutOrStdout(), snap, svc.Summary)
	return fetchErr
}

func parseTransport(value string) (xferwatch.Transport, error) {
	switch xferwatch.Transport(value) {
	case xferwatch.TransportStream:
		return xferwatch.TransportStream, nil
	case xferwatch.TransportEvent:
		return xferwatch.TransportEvent, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownTransport, value)
	}
}

// openSinks opens the configured result sinks. Once handed to a service
// the service closes them.
func openSinks(ctx context.Context, cfg config.Config) ([]xferwatch.Sink, error) {
	var sinks []xferwatch.Sink

	if cfg.History != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		b, err := sink.OpenBolt(cfg.History)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, b)
	}

	if cfg.Redis.Addr != "" {
		r, err := sink.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Prefix)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, r)
	}

	return sinks, nil
}

func closeSinks(sinks []xferwatch.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

// startStatusAPI listens on addr and serves the status API until the
// returned stop function is called.
func startStatusAPI(ctx context.Context, svc *xferwatch.Service, addr string, logger *slog.Logger, w io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status api: listen %s: %w", addr, err)
	}
	fmt.Fprintf(w, "Status API listening on http://%s\n", ln.Addr())

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- statusapi.New(svc, logger).Serve(ctx, ln)
	}()

	return func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("status api stopped", "error", err)
		}
	}, nil
}

// fetcher downloads one URL over the selected transport.
type fetcher struct {
	transport  xferwatch.Transport
	client     *http.Client
	events     eventxfer.Transport
	output     string
	decompress bool
	stderr     io.Writer
}

func (f *fetcher) fetch(ctx context.Context, rawURL string) error {
	var (
		body []byte
		err  error
	)
	switch f.transport {
	case xferwatch.TransportEvent:
		body, err = f.fetchEvent(ctx, rawURL)
	default:
		body, err = f.fetchStream(ctx, rawURL)
	}
	if err != nil {
		return err
	}
	if f.output == "" {
		return nil
	}
	return f.save(rawURL, body)
}

func (f *fetcher) fetchStream(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", errHTTPStatus, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (f *fetcher) fetchEvent(ctx context.Context, rawURL string) ([]byte, error) {
	req := f.events.NewRequest()
	if err := req.Open(http.MethodGet, rawURL); err != nil {
		return nil, err
	}
	if err := req.Send(ctx, nil); err != nil {
		return nil, err
	}
	if req.Status() >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d %s", errHTTPStatus, req.Status(), req.StatusText())
	}
	return req.Response(), nil
}

func (f *fetcher) save(rawURL string, body []byte) error {
	dst, err := safepath.Join(f.output, outputName(rawURL))
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, body, 0o600); err != nil {
		return fmt.Errorf("save body: %w", err)
	}
	fmt.Fprintf(f.stderr, "Saved %s\n", dst)

	if !f.decompress {
		return nil
	}
	out, err := decompressFile(dst)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintf(f.stderr, "Decompressed %s\n", out)
	}
	return nil
}

// outputName returns the file name a URL body is saved under.
func outputName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index"
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/":
		return "index"
	default:
		return name
	}
}
