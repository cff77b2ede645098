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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/publishrunner/config"
	"github.com/cardinalhq/publishrunner/internal/events"
)

func init() {
	var check bool

	cmd := &cobra.Command{
		Use:   "events-topic",
		Short: "Create or verify the Kafka topic for queue lifecycle events",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := handleSignals(context.Background())
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, 5*time.Minute)
			defer cancelTimeout()
			return events.SyncTopic(ctx, cfg.Events, !check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report differences, do not change the topic")

	rootCmd.AddCommand(cmd)
}
