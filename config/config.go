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

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/publishrunner/internal/apiauth"
	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/events"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/internal/publishworker"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Events   events.Config  `mapstructure:"events"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
}

type APIConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	WorkerSecret   string        `mapstructure:"worker_secret"`
	JWKSURL        string        `mapstructure:"jwks_url"`
	JWKSRefresh    time.Duration `mapstructure:"jwks_refresh"`
	MemberCacheTTL time.Duration `mapstructure:"member_cache_ttl"`
	KeysFile       string        `mapstructure:"keys_file"`
}

type WorkerConfig struct {
	BatchSize   int32                `mapstructure:"batch_size"`
	Interval    time.Duration        `mapstructure:"interval"`
	Backoff     publishqueue.Backoff `mapstructure:"backoff"`
	StuckAfter  time.Duration        `mapstructure:"stuck_after"`
	MaxAttempts int32                `mapstructure:"max_attempts"`
}

type DeliveryConfig struct {
	CMSTimeout     time.Duration `mapstructure:"cms_timeout"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type SweeperConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	DeliveryLogRetention time.Duration `mapstructure:"delivery_log_retention"`
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			ListenAddr:     ":8080",
			JWKSRefresh:    apiauth.DefaultJWKSRefresh,
			MemberCacheTTL: apiauth.DefaultMembershipTTL,
		},
		Worker: WorkerConfig{
			BatchSize:   publishworker.DefaultBatchSize,
			Interval:    publishworker.DefaultInterval,
			Backoff:     publishqueue.DefaultBackoff(),
			StuckAfter:  publishworker.DefaultStuckAfter,
			MaxAttempts: publishqueue.DefaultMaxAttempts,
		},
		Delivery: DeliveryConfig{
			CMSTimeout:     delivery.DefaultTimeout,
			WebhookTimeout: webhooks.DefaultTimeout,
			UserAgent:      delivery.DefaultUserAgent,
		},
		Events: events.DefaultConfig(),
		Sweeper: SweeperConfig{
			Interval:             publishworker.DefaultSweepInterval,
			DeliveryLogRetention: publishworker.DefaultDeliveryLogRetention,
		},
	}
}

// SweeperSettings combines the sweeper section with the worker's stuck
// threshold.
func (c *Config) SweeperSettings() publishworker.SweeperConfig {
	return publishworker.SweeperConfig{
		StuckAfter:           c.Worker.StuckAfter,
		DeliveryLogRetention: c.Sweeper.DeliveryLogRetention,
		Interval:             c.Sweeper.Interval,
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "PUBLISHRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "worker.batch_size"
// becomes "PUBLISHRUNNER_WORKER_BATCH_SIZE".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PUBLISHRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, &cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("events.brokers"); b != "" {
		cfg.Events.Brokers = strings.Split(b, ",")
	}
	return &cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
