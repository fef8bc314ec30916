package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/protohackd/internal/config"
	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
	"github.com/teranos/protohackd/internal/pest"
)

var pestCmd = &cobra.Command{
	Use:   "pest",
	Short: "Run the Pest Control policy broker server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUntilSignal(func(ctx context.Context) error {
			reg := pest.NewRegistry(cfg.Pest.UpstreamAddr)
			if w := configWatcher(cfg); w != nil {
				w.OnReload(func(c *config.Config) { reg.SetUpstreamAddr(c.Pest.UpstreamAddr) })
			}
			return netio.ServeTCP(ctx, cfg.Pest.Addr, logger.Named("pest"), pest.Handler(reg))
		})
	},
}
