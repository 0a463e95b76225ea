package cli

import (
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/xferwatch"
	"github.com/meigma/xferwatch/cmd/xferwatch/cli/config"
)

// completeTransports suggests values for --transport.
func completeTransports(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, t := range []xferwatch.Transport{xferwatch.TransportStream, xferwatch.TransportEvent} {
		if strings.HasPrefix(string(t), toComplete) {
			out = append(out, string(t))
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeConfigKeys suggests keys for "config set". Only the first
// argument is completed.
func completeConfigKeys(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) >= 1 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, key := range configKeys() {
		if strings.HasPrefix(key, toComplete) {
			out = append(out, key)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// configKeys returns every settable key in dotted form, sorted.
func configKeys() []string {
	keys := map[string]bool{
		"history":        true,
		"sizes":          true,
		"status-addr":    true,
		"redis.addr":     true,
		"redis.password": true,
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if nested, ok := v.(map[string]any); ok {
				walk(prefix+k+".", nested)
				continue
			}
			keys[prefix+k] = true
		}
	}
	walk("", config.Defaults())
	return slices.Sorted(maps.Keys(keys))
}
