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
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/publishrunner/config"
	"github.com/cardinalhq/publishrunner/internal/debugging"
	"github.com/cardinalhq/publishrunner/internal/healthcheck"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Reclaim stuck queue items and prune old webhook delivery logs",
		RunE: func(_ *cobra.Command, _ []string) error {
			doneCtx, doneFx, err := setupTelemetry(config.ServiceSweeper)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer shutdownTelemetry(doneFx)

			go debugging.RunPprof(doneCtx)
			healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())

			svc, err := newServices(doneCtx)
			if err != nil {
				return err
			}
			defer svc.Close()
			healthServer.AddCheck("pubdb", svc.store.Pool().Ping)

			g, gctx := errgroup.WithContext(doneCtx)
			g.Go(func() error { return healthServer.Start(gctx) })
			g.Go(func() error { return svc.sweeper.Run(gctx) })
			healthServer.SetStatus(healthcheck.StatusHealthy)
			return ignoreCanceled(g.Wait())
		},
	}

	rootCmd.AddCommand(cmd)
}
