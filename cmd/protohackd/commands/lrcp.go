package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/lrcp"
	"github.com/teranos/protohackd/internal/netio"
)

var lrcpCmd = &cobra.Command{
	Use:   "lrcp",
	Short: "Run the Line Reversal Control Protocol server over UDP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUntilSignal(func(ctx context.Context) error {
			configWatcher(cfg)
			return netio.ServeUDP(ctx, cfg.LRCP.Addr, logger.Named("lrcp"), 1000, lrcp.Handler(ctx))
		})
	},
}
