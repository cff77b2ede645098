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
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
)

// topicsConfig describes the lifecycle events topic for kafka-sync.
func (c Config) topicsConfig() *kafkasync.Config {
	topicConfig := map[string]string{}
	if c.Retention > 0 {
		topicConfig["retention.ms"] = strconv.FormatInt(c.Retention.Milliseconds(), 10)
	}
	return &kafkasync.Config{
		Defaults: kafkasync.Defaults{
			PartitionCount:    c.PartitionCount,
			ReplicationFactor: c.ReplicationFactor,
			TopicConfig:       topicConfig,
		},
		Topics:           []kafkasync.Topic{{Name: c.Topic}},
		OperationTimeout: time.Minute,
	}
}

// SyncTopic reports on the events topic, creating or correcting it when
// fix is set.
func SyncTopic(ctx context.Context, c Config, fix bool) error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn := kafkasync.ConnectionConfig{
		BootstrapServers: c.Brokers,
		TLS:              c.tlsConfig(),
	}
	if c.SASLEnabled {
		mechanism, err := c.saslMechanism()
		if err != nil {
			return fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		conn.SASLMechanism = mechanism
	}

	syncer, err := kafkasync.NewSyncer(conn, c.topicsConfig())
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	mode := kafkasync.SyncModeInfo
	if fix {
		mode = kafkasync.SyncModeFix
	}
	slog.Info("Syncing lifecycle events topic", slog.String("topic", c.Topic), slog.Bool("fix", fix))
	if err := syncer.Sync(ctx, mode); err != nil {
		return fmt.Errorf("failed to sync topic %s: %w", c.Topic, err)
	}
	return nil
}
