package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/xferwatch"
)

// printSummary prints one row per completed transfer in snap, then the
// completion count.
func printSummary(w io.Writer, snap xferwatch.Snapshot, lookup func(key string) (xferwatch.Summary, bool)) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSFER\tTRANSPORT\tSIZE\tTIME\tAVG SPEED\tDIGEST")
	for _, key := range slices.Sorted(maps.Keys(snap.Results)) {
		sum, ok := lookup(key)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f MB/s\t%s\n",
			key,
			sum.Transport,
			formatSize(sum),
			sum.Elapsed.Round(time.Millisecond),
			sum.AverageSpeed,
			shortDigest(sum.Digest))
	}
	tw.Flush()

	fmt.Fprintf(w, "%d/%d transfers complete\n", snap.TotalCompleted, snap.TotalMatched)
}

func formatSize(sum xferwatch.Summary) string {
	if sum.NoBody {
		return "-"
	}
	if sum.Loaded < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(sum.Loaded))
}

// shortDigest truncates a digest to its algorithm and 12 hex characters.
func shortDigest(d string) string {
	const keep = len("sha256:") + 12
	if len(d) <= keep {
		return d
	}
	return d[:keep]
}
