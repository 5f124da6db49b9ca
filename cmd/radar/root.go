package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nationradar/nation-radar/internal/config"
	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/internal/metrics"
)

// runtime is what every subcommand receives after config and logging are initialized.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	metrics metrics.Recorder
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "radar",
		Short:         "Nation Radar social monitoring pipeline",
		Long:          "Nation Radar fetches posts for configured keywords, scores them once per distinct content and serves the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := logger.Init(cfg); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg = cfg
			rt.log = logger.New()
			rt.metrics = metrics.New(cfg.MetricsEnabled)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd(rt))
	root.AddCommand(newOnceCmd(rt))
	root.AddCommand(newServeCmd(rt))
	root.AddCommand(newPurgeCmd(rt))
	return root
}
