package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nationradar/nation-radar/internal/app"
)

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only dashboard API",
		Long: `Serve the dashboard API without running the ingestion loop.

With query_source=local the content store is opened by this process; bbolt allows a single
process per file, so use "radar run" to ingest and serve together, or point
query_source=remote at a running instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, closeSrc, err := app.OpenQuerySource(rt.cfg, nil)
			if err != nil {
				return fmt.Errorf("init query source: %w", err)
			}
			defer closeSrc()

			srv, err := app.NewServer(rt.cfg, src, rt.metrics, rt.log)
			if err != nil {
				return fmt.Errorf("init api server: %w", err)
			}
			return srv.Run(cmd.Context())
		},
	}
}
