package commands

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/protohackd/internal/config"
	"github.com/teranos/protohackd/internal/jobcentre"
	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/lrcp"
	"github.com/teranos/protohackd/internal/netio"
	"github.com/teranos/protohackd/internal/pest"
	"github.com/teranos/protohackd/internal/speed"
)

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every server (speed, lrcp, pest, jobcentre) under one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUntilSignal(func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)

			store := speed.NewStore()
			g.Go(func() error {
				return netio.ServeTCP(gctx, cfg.Speed.Addr, logger.Named("speed"), speed.Handler(store))
			})

			g.Go(func() error {
				return netio.ServeUDP(gctx, cfg.LRCP.Addr, logger.Named("lrcp"), 1000, lrcp.Handler(gctx))
			})

			reg := pest.NewRegistry(cfg.Pest.UpstreamAddr)
			if w := configWatcher(cfg); w != nil {
				w.OnReload(func(c *config.Config) { reg.SetUpstreamAddr(c.Pest.UpstreamAddr) })
			}
			g.Go(func() error {
				return netio.ServeTCP(gctx, cfg.Pest.Addr, logger.Named("pest"), pest.Handler(reg))
			})

			broker := jobcentre.NewBroker()
			g.Go(func() error {
				return netio.ServeTCP(gctx, cfg.JobCentre.Addr, logger.Named("jobcentre"), jobcentre.Handler(broker))
			})

			return g.Wait()
		})
	},
}
