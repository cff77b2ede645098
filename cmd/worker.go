// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/publishrunner/config"
	"github.com/cardinalhq/publishrunner/internal/debugging"
	"github.com/cardinalhq/publishrunner/internal/healthcheck"
)

func init() {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and publish due queue items on an interval",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, doneFx, err := setupTelemetry(config.ServiceWorker)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer shutdownTelemetry(doneFx)

			go debugging.RunPprof(ctx)
			healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())

			svc, err := newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			healthServer.AddCheck("pubdb", svc.store.Pool().Ping)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return healthServer.Start(gctx) })
			g.Go(func() error { return svc.worker.Run(gctx, svc.cfg.Worker.Interval, svc.sweeper) })
			healthServer.SetStatus(healthcheck.StatusHealthy)
			return ignoreCanceled(g.Wait())
		},
	}
	rootCmd.AddCommand(workerCmd)

	var batch int32
	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single worker tick and print the result as JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, doneFx, err := setupTelemetry(config.ServiceWorker)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer shutdownTelemetry(doneFx)

			svc, err := newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, tickErr := svc.worker.TickN(ctx, batch)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if tickErr != nil {
				return fmt.Errorf("tick finished with errors: %w", tickErr)
			}
			return nil
		},
	}
	tickCmd.Flags().Int32Var(&batch, "batch", 0, "Batch size for this tick (defaults to worker.batch_size)")
	rootCmd.AddCommand(tickCmd)
}
