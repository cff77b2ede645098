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
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/publishrunner/config"
	"github.com/cardinalhq/publishrunner/internal/api"
	"github.com/cardinalhq/publishrunner/internal/apiauth"
	"github.com/cardinalhq/publishrunner/internal/debugging"
	"github.com/cardinalhq/publishrunner/internal/healthcheck"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

func init() {
	var embeddedWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the publish queue and webhook API",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, doneFx, err := setupTelemetry(config.ServiceAPI)
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

			staticKeys, err := apiauth.LoadKeyFile(svc.cfg.API.KeysFile)
			if err != nil {
				return err
			}
			var verifier apiauth.TokenVerifier
			if svc.cfg.API.JWKSURL != "" {
				jwks := apiauth.NewJWKSVerifier(svc.cfg.API.JWKSURL, svc.cfg.API.JWKSRefresh)
				defer jwks.Close()
				verifier = jwks
			} else {
				slog.Warn("No JWKS URL configured, bearer tokens are rejected")
			}
			auth := apiauth.NewAuthenticator(svc.store, apiauth.Config{
				Verifier:      verifier,
				StaticKeys:    staticKeys,
				MembershipTTL: svc.cfg.API.MemberCacheTTL,
			})
			defer auth.Close()

			if svc.cfg.API.WorkerSecret == "" {
				slog.Warn("No worker secret configured, the tick endpoint is disabled")
			}
			server := api.NewServer(api.Config{
				ListenAddr:   svc.cfg.API.ListenAddr,
				WorkerSecret: svc.cfg.API.WorkerSecret,
			}, svc.queue, webhooks.NewService(svc.store, svc.deliverer), auth, svc.worker)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return healthServer.Start(gctx) })
			g.Go(func() error { return server.Run(gctx) })
			if embeddedWorker {
				slog.Info("Running embedded worker", slog.Duration("interval", svc.cfg.Worker.Interval))
				g.Go(func() error { return svc.worker.Run(gctx, svc.cfg.Worker.Interval, svc.sweeper) })
			}

			healthServer.SetStatus(healthcheck.StatusHealthy)
			return ignoreCanceled(g.Wait())
		},
	}
	cmd.Flags().BoolVar(&embeddedWorker, "embedded-worker", false, "Also run the publish worker loop in this process")

	rootCmd.AddCommand(cmd)
}
