// Package cli implements the xferwatch command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/xferwatch"
	"github.com/meigma/xferwatch/cmd/xferwatch/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "xferwatch",
	Short: "Observe progress of large network transfers",
	Long: `Xferwatch fetches URLs through an observed transport and reports
per-transfer progress, throughput and a completion summary.

Transfers whose URL contains one of the configured markers are tracked.
Progress is corrected against a table of expected payload sizes when the
server reports a compressed length.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/xferwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().String("progress", "auto", "Progress display: auto, tty, or plain")
	//nolint:errcheck // flag is defined above
	viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))
	rootCmd.Version = version
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// initConfig loads defaults, the config file and XFERWATCH_* variables.
func initConfig() {
	setDefaults("", config.Defaults())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if path, err := config.File(); err == nil {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("XFERWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: read config: %v\n", err)
		}
	}
}

func setDefaults(prefix string, values map[string]any) {
	for k, v := range values {
		if nested, ok := v.(map[string]any); ok {
			setDefaults(prefix+k+".", nested)
			continue
		}
		viper.SetDefault(prefix+k, v)
	}
}

// loadConfig returns the effective CLI configuration.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the CLI logger: debug level with --verbose, warnings
// only otherwise.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newService creates a service from cfg plus any extra options.
func newService(cfg config.Config, logger *slog.Logger, extra ...xferwatch.ServiceOption) (*xferwatch.Service, error) {
	opts := []xferwatch.ServiceOption{
		xferwatch.WithLogger(logger),
		xferwatch.WithStep(cfg.Step),
		xferwatch.WithCorrection(cfg.Correction),
		xferwatch.WithReportRaw(cfg.ReportRaw),
	}
	if len(cfg.Markers) > 0 {
		opts = append(opts, xferwatch.WithMarkers(cfg.Markers...))
	}
	if cfg.Sizes != "" {
		opts = append(opts, xferwatch.WithOracleFile(cfg.Sizes))
	}
	return xferwatch.NewService(append(opts, extra...)...)
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts xferwatch errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, xferwatch.ErrInvalidStep):
		return fmt.Sprintf("Error: invalid progress step: %v", err)
	case errors.Is(err, xferwatch.ErrInvalidOracle):
		return fmt.Sprintf("Error: invalid size table: %v", err)
	case errors.Is(err, xferwatch.ErrPathTraversal):
		return fmt.Sprintf("Error: refusing to save outside the output directory: %v", err)
	case errors.Is(err, errUnknownTransport):
		return fmt.Sprintf("Error: %v (expected stream or event)", err)
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: operation timed out"
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
