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

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cardinalhq/publishrunner/internal/helpers"
)

type ErrorType string

const (
	ErrorTimeout         ErrorType = "timeout"
	ErrorNetwork         ErrorType = "network"
	ErrorRateLimited     ErrorType = "rate_limited"
	ErrorAuth            ErrorType = "auth"
	ErrorClient          ErrorType = "client_error"
	ErrorServer          ErrorType = "server_error"
	ErrorInvalidResponse ErrorType = "invalid_response"
	ErrorConfiguration   ErrorType = "configuration"
	ErrorNotFound        ErrorType = "not_found"
	// ErrorInternal is a failure on our side, such as a storage error while
	// preparing the attempt.
	ErrorInternal ErrorType = "internal"
)

const (
	MaxErrorLength = helpers.MaxErrorLength
	// MaxResponseBytes caps how much of a destination's response is read.
	MaxResponseBytes = 1 << 20
)

// Outcome is the classified result of one publish attempt. A failed HTTP
// call is an Outcome with Success false, never a Go error.
type Outcome struct {
	Success         bool            `json:"success"`
	StatusCode      int             `json:"status_code,omitempty"`
	PublishedURL    string          `json:"published_url,omitempty"`
	PublishedPostID string          `json:"published_post_id,omitempty"`
	PublishedData   json.RawMessage `json:"published_data,omitempty"`
	Error           string          `json:"error,omitempty"`
	ErrorType       ErrorType       `json:"error_type,omitempty"`
	Duration        time.Duration   `json:"-"`
}

func failure(t ErrorType, format string, args ...any) Outcome {
	return Outcome{
		ErrorType: t,
		Error:     helpers.Truncate(fmt.Sprintf(format, args...), MaxErrorLength),
	}
}

// ClassifyStatus maps a non-2xx HTTP status to an ErrorType.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorAuth
	case code >= 500:
		return ErrorServer
	case code >= 400:
		return ErrorClient
	default:
		return ErrorInvalidResponse
	}
}

// ClassifyTransportError distinguishes timeouts from other network failures.
func ClassifyTransportError(err error) ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTimeout
	}
	return ErrorNetwork
}

// bodySnippet renders a response body for an error message.
func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "(empty body)"
	}
	return helpers.Truncate(strings.ToValidUTF8(s, "?"), 500)
}
