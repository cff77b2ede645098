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

package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalhq/publishrunner/internal/helpers"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "publishrunner-webhooks/1"

	maxBodyRead = 64 << 10
)

// DeliveryLogger appends delivery log rows.
type DeliveryLogger interface {
	WebhookDeliveryInsert(ctx context.Context, arg pubdb.WebhookDeliveryInsertParams) (pubdb.WebhookDelivery, error)
}

// DeliveryResult reports one delivery. A skipped delivery is successful and
// makes no network call.
type DeliveryResult struct {
	Skipped    bool   `json:"skipped,omitempty"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Deliverer sends signed event envelopes to webhook endpoints and records
// every attempt.
type Deliverer struct {
	client    *http.Client
	log       DeliveryLogger
	userAgent string
	now       func() time.Time
}

func NewDeliverer(log DeliveryLogger, timeout time.Duration, userAgent string) *Deliverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Deliverer{
		client:    &http.Client{Timeout: timeout},
		log:       log,
		userAgent: userAgent,
		now:       time.Now,
	}
}

// Deliver posts eventType with payload to hook. It never returns an error:
// failures are reported in the result and in the delivery log.
func (d *Deliverer) Deliver(ctx context.Context, hook pubdb.Webhook, eventType string, payload any) DeliveryResult {
	if hook.Status != "active" || !subscribed(hook.EventTypes, eventType) {
		return DeliveryResult{Skipped: true, Success: true}
	}

	logger := logctx.FromContext(ctx).With(
		slog.String("webhook_id", hook.ID.String()),
		slog.String("event_type", eventType),
	)

	sentAt := d.now()
	body, err := json.Marshal(Envelope{
		Event:     eventType,
		Timestamp: sentAt.UTC().Format(time.RFC3339),
		Data:      payload,
	})
	var res DeliveryResult
	if err != nil {
		// Nothing is sent; the log row keeps an empty payload.
		body = []byte("{}")
		res = DeliveryResult{Error: "encoding payload: " + err.Error()}
	} else {
		res = d.post(ctx, hook, eventType, sentAt, body)
	}
	res.DurationMs = d.now().Sub(sentAt).Milliseconds()
	res.Error = helpers.Truncate(res.Error, helpers.MaxErrorLength)
	recordDelivery(ctx, eventType, res.Success)

	entry := pubdb.WebhookDeliveryInsertParams{
		WebhookID:  hook.ID,
		EventType:  eventType,
		Payload:    body,
		Success:    res.Success,
		DurationMs: int32(res.DurationMs),
	}
	if res.StatusCode != 0 {
		code := int32(res.StatusCode)
		entry.StatusCode = &code
	}
	if res.Error != "" {
		msg := res.Error
		entry.ErrorMessage = &msg
	}
	if _, err := d.log.WebhookDeliveryInsert(ctx, entry); err != nil {
		logger.Error("Failed to record webhook delivery", slog.Any("error", err))
	}

	if res.Success {
		logger.Debug("Delivered webhook", slog.Int("status_code", res.StatusCode))
	} else {
		logger.Warn("Webhook delivery failed",
			slog.Int("status_code", res.StatusCode),
			slog.String("error", res.Error))
	}
	return res
}

func (d *Deliverer) post(ctx context.Context, hook pubdb.Webhook, eventType string, sentAt time.Time, body []byte) DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.Url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Error: "building request: " + err.Error()}
	}
	ts := sentAt.Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderID, hook.ID.String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, Sign(hook.Secret, ts, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	res := DeliveryResult{StatusCode: resp.StatusCode}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		res.Success = true
		return res
	}
	res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	if s := strings.TrimSpace(strings.ToValidUTF8(string(respBody), "?")); s != "" {
		res.Error += ": " + s
	}
	return res
}
