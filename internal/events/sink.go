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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink receives queue lifecycle events. Emit never fails the caller;
// delivery problems are logged by the sink.
type Sink interface {
	Emit(ctx context.Context, ev Event)
	Close() error
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) {}
func (NoopSink) Close() error                { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events as JSON, keyed by queue item id so every
// transition of one item lands on the same partition.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

// New returns a KafkaSink when cfg.Enabled is set and a NoopSink otherwise.
func New(cfg Config) (Sink, error) {
	if !cfg.Enabled {
		return NoopSink{}, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events enabled but no brokers configured")
	}
	compression, err := cfg.compression()
	if err != nil {
		return nil, err
	}
	mechanism, err := cfg.saslMechanism()
	if err != nil {
		return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  compression,
		Async:        true,
		Transport: &kafka.Transport{
			SASL: mechanism,
			TLS:  cfg.tlsConfig(),
		},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("Failed to publish lifecycle events",
					slog.Int("count", len(messages)),
					slog.Any("error", err))
			}
		},
	}
	return newKafkaSink(w), nil
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w, now: time.Now}
}

func (s *KafkaSink) Emit(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode lifecycle event", slog.Any("error", err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.QueueItemID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("Failed to write lifecycle event",
			slog.String("type", string(ev.Type)),
			slog.String("queue_item_id", ev.QueueItemID.String()),
			slog.Any("error", err))
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
