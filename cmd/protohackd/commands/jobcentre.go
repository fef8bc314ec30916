package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/protohackd/internal/jobcentre"
	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
)

var jobCentreCmd = &cobra.Command{
	Use:   "jobcentre",
	Short: "Run the Job Centre priority job queue server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUntilSignal(func(ctx context.Context) error {
			configWatcher(cfg)
			broker := jobcentre.NewBroker()
			return netio.ServeTCP(ctx, cfg.JobCentre.Addr, logger.Named("jobcentre"), jobcentre.Handler(broker))
		})
	},
}
