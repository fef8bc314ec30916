package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
	"github.com/teranos/protohackd/internal/speed"
)

var speedCmd = &cobra.Command{
	Use:   "speed",
	Short: "Run the Speed Daemon average-speed traffic camera server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUntilSignal(func(ctx context.Context) error {
			configWatcher(cfg)
			store := speed.NewStore()
			return netio.ServeTCP(ctx, cfg.Speed.Addr, logger.Named("speed"), speed.Handler(store))
		})
	},
}
