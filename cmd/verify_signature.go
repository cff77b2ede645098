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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

func init() {
	var (
		secret    string
		timestamp string
		signature string
		bodyFile  string
		tolerance time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify-signature",
		Short: "Check a webhook delivery signature the way a receiver would",
		RunE: func(c *cobra.Command, _ []string) error {
			var (
				body []byte
				err  error
			)
			if bodyFile == "-" {
				body, err = io.ReadAll(c.InOrStdin())
			} else {
				body, err = os.ReadFile(bodyFile)
			}
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}

			if err := webhooks.Verify(secret, timestamp, signature, body, time.Now(), tolerance); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.OutOrStdout(), "signature valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Webhook signing secret")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Value of the X-Webhook-Timestamp header")
	cmd.Flags().StringVar(&signature, "signature", "", "Value of the X-Webhook-Signature header")
	cmd.Flags().StringVar(&bodyFile, "body-file", "-", "File holding the raw request body, or - for stdin")
	cmd.Flags().DurationVar(&tolerance, "tolerance", webhooks.DefaultTolerance, "Accepted clock skew")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("timestamp")
	_ = cmd.MarkFlagRequired("signature")

	rootCmd.AddCommand(cmd)
}
