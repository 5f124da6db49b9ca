package main

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nationradar/nation-radar/internal/app"
)

func newRunCmd(rt *runtime) *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion loop on the configured interval",
		Long: `Run an ingestion pass immediately and then once per crawl_interval until interrupted.

Unless --api=false is given, the dashboard API is served from the same process and
shares the content store handle.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoop(cmd.Context(), rt, withAPI)
		},
	}
	cmd.Flags().BoolVar(&withAPI, "api", true, "serve the dashboard API alongside the loop")
	return cmd
}

func runLoop(ctx context.Context, rt *runtime, withAPI bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	radar, err := app.NewRadar(ctx, rt.cfg, rt.log, rt.metrics)
	if err != nil {
		return fmt.Errorf("init radar: %w", err)
	}
	defer func() {
		if err := radar.Close(); err != nil {
			rt.log.ErrorObj("radar close failed", "error", err.Error())
		}
	}()

	apiErr := make(chan error, 1)
	if withAPI {
		src, closeSrc, err := app.OpenQuerySource(rt.cfg, radar.Store())
		if err != nil {
			return fmt.Errorf("init query source: %w", err)
		}
		defer closeSrc()

		srv, err := app.NewServer(rt.cfg, src, rt.metrics, rt.log)
		if err != nil {
			return fmt.Errorf("init api server: %w", err)
		}
		go func() {
			apiErr <- srv.Run(ctx)
			cancel()
		}()
	} else {
		close(apiErr)
	}

	runErr := radar.Run(ctx)
	cancel()
	return errors.Join(runErr, <-apiErr)
}

func newOnceCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single ingestion pass and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			radar, err := app.NewRadar(cmd.Context(), rt.cfg, rt.log, rt.metrics)
			if err != nil {
				return fmt.Errorf("init radar: %w", err)
			}
			defer radar.Close()

			stats, runErr := radar.RunOnce(cmd.Context())
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("encode run stats: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if runErr != nil {
				return runErr
			}
			if stats.Degraded() {
				return fmt.Errorf("run %s finished with %d store errors", stats.RunID, stats.StoreErrors)
			}
			return nil
		},
	}
}
