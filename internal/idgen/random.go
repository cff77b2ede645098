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

package idgen

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	requestEntropyMu sync.Mutex
	requestEntropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewRequestID returns a ULID used to correlate an HTTP request with its
// log lines.
func NewRequestID() string {
	requestEntropyMu.Lock()
	defer requestEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), requestEntropy).String()
}

// WebhookSecretPrefix marks secrets generated for webhook signing.
const WebhookSecretPrefix = "whsec_"

// NewWebhookSecret returns a fresh signing secret: the prefix followed by
// 32 random bytes, hex encoded.
func NewWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	return WebhookSecretPrefix + hex.EncodeToString(b), nil
}
