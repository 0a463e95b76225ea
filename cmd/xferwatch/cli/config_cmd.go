package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meigma/xferwatch/cmd/xferwatch/cli/config"
	"github.com/meigma/xferwatch/internal/oracle"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage xferwatch configuration",
	Long: `View and modify xferwatch configuration.

Without arguments, displays the current effective configuration.
Use subcommands to view the config path, initialize a config file,
or set configuration values.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSizesCmd)
	rootCmd.AddCommand(configCmd)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a default configuration file at the XDG config path.

The file will be created at ~/.config/xferwatch/config.yaml (or
$XDG_CONFIG_HOME/xferwatch/config.yaml if set).`,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	// Check if already exists
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o750); mkdirErr != nil {
		return mkdirErr
	}

	data, err := yaml.Marshal(config.Defaults())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if writeErr := os.WriteFile(path, data, 0o600); writeErr != nil {
		return writeErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  xferwatch config set step 5
  xferwatch config set correction false
  xferwatch config set markers .data.br,.wasm.br,.bundle
  xferwatch config set redis.addr localhost:6379`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		parsedValue := parseConfigValue(key, value)

		viper.Set(key, parsedValue)

		path, err := configPath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s = %v\n", key, parsedValue)
		return nil
	},
}

// parseConfigValue converts a command-line value to the type stored for key.
func parseConfigValue(key, value string) any {
	if key == "markers" {
		var markers []string
		for m := range strings.SplitSeq(value, ",") {
			if m = strings.TrimSpace(m); m != "" {
				markers = append(markers, m)
			}
		}
		return markers
	}
	switch key {
	case "step", "concurrency":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.File()
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	// Show all settings with their effective values
	settings := viper.AllSettings()
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

var configSizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "Show the expected payload size table",
	Long: `Show the table of expected payload sizes used to correct progress.

The table is read from the configured sizes file, or the built-in
defaults when none is set. Patterns are matched in the order shown.`,
	RunE: runConfigSizes,
}

func runConfigSizes(cmd *cobra.Command, _ []string) error {
	table := oracle.Default()
	source := "built-in"
	if path := viper.GetString("sizes"); path != "" {
		t, err := oracle.LoadFile(path)
		if err != nil {
			return err
		}
		table, source = t, path
	}
	printSizes(cmd.OutOrStdout(), table, source)
	return nil
}

// printSizes writes the size table in lookup order.
func printSizes(w io.Writer, table *oracle.Table, source string) {
	fmt.Fprintf(w, "%d entries (%s)\n", table.Len(), source)
	if table.Len() == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tBYTES\tSIZE")
	for _, e := range table.Entries() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Pattern, e.Size, humanize.Bytes(uint64(e.Size)))
	}
	tw.Flush()
}
