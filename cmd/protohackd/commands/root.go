// Package commands holds the protohackd CLI's cobra subcommands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/protohackd/internal/config"
	"github.com/teranos/protohackd/internal/logger"
)

// RootCmd is the protohackd binary's top-level command.
var RootCmd = &cobra.Command{
	Use:   "protohackd",
	Short: "protohackd - Protohackers-style network protocol servers",
	Long: `protohackd runs a family of small network protocol servers:

  speed     - Speed Daemon: average-speed traffic camera enforcement
  lrcp      - Line Reversal Control Protocol over UDP
  pest      - Pest Control: checksummed upstream-authority policy broker
  jobcentre - Job Centre: a priority job queue with long polling
  all       - run every server above under one process
  diag      - report local process stats
  version   - print build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json")
		theme, _ := cmd.Flags().GetString("theme")
		if err := logger.Initialize(logger.Options{JSON: jsonLogs, Verbosity: verbosity, Theme: theme}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var cfgPath string

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	RootCmd.PersistentFlags().Bool("json", false, "Emit structured JSON logs instead of the themed console format")
	RootCmd.PersistentFlags().String("theme", "slate", "Console log theme (slate, amber)")
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to protohackd.toml (default: search standard locations)")

	RootCmd.AddCommand(speedCmd)
	RootCmd.AddCommand(lrcpCmd)
	RootCmd.AddCommand(pestCmd)
	RootCmd.AddCommand(jobCentreCmd)
	RootCmd.AddCommand(allCmd)
	RootCmd.AddCommand(diagCmd)
	RootCmd.AddCommand(VersionCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}
