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
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

func TestVerifySignatureCommand(t *testing.T) {
	body := []byte(`{"event":"test","timestamp":"2025-10-09T08:53:20Z","data":{}}`)
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	ts := time.Now().Unix()
	sig := webhooks.Sign("whsec_test", ts, body)

	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{"valid", "whsec_test", nil},
		{"wrong secret", "whsec_other", webhooks.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&out)
			rootCmd.SetArgs([]string{"verify-signature",
				"--secret", tt.secret,
				"--timestamp", strconv.FormatInt(ts, 10),
				"--signature", sig,
				"--body-file", path,
			})
			err := rootCmd.Execute()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), "signature valid")
		})
	}
}
