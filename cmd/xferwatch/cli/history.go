package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/xferwatch/cmd/xferwatch/cli/config"
	"github.com/meigma/xferwatch/internal/sink"
)

var (
	historyFile  string
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List transfers recorded in a history file",
	Long: `List completed transfers recorded by "fetch --history".

The file defaults to the configured history path, or
$XDG_DATA_HOME/xferwatch/history.db when none is configured.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyFile, "file", "f", "", "History file to read")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most N recent transfers (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path, err := historyPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("no history at %s", path)
	}

	b, err := sink.OpenBolt(path)
	if err != nil {
		return err
	}
	defer b.Close()

	entries, err := b.List(historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printHistory(cmd.OutOrStdout(), entries, time.Now())
	return nil
}

// historyPath resolves the history file from the flag, the config, then
// the default location.
func historyPath() (string, error) {
	if historyFile != "" {
		return historyFile, nil
	}
	if p := viper.GetString("history"); p != "" {
		return p, nil
	}
	return config.HistoryFile()
}

func printHistory(w io.Writer, entries []sink.Entry, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tTRANSFER\tTRANSPORT\tSIZE\tTIME\tAVG SPEED")
	for _, e := range entries {
		completed := e.CompletedAt
		if t, err := time.Parse(time.RFC3339Nano, e.CompletedAt); err == nil {
			completed = humanize.RelTime(t, now, "ago", "from now")
		}
		size := "-"
		if !e.NoBody && e.Loaded >= 0 {
			size = humanize.Bytes(uint64(e.Loaded))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f MB/s\n",
			completed,
			e.Key,
			e.Transport,
			size,
			time.Duration(e.ElapsedMS)*time.Millisecond,
			e.AverageSpeed)
	}
	tw.Flush()
}
