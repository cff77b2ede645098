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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/publishrunner/pubdb"
	pubdbmigrations "github.com/cardinalhq/publishrunner/pubdb/migrations"
)

// SetupTestPubDB creates a clean pubdb database with migrations applied.
// When PUBDB_HOST is set the database is created on that server, otherwise
// a throwaway Postgres container is started. Cleanup is registered with
// t.Cleanup.
func SetupTestPubDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_pubdb_%d_%d", time.Now().Unix(), rand.Intn(10000))

	var baseConnStr, testConnStr string
	if host := os.Getenv("PUBDB_HOST"); host != "" {
		port := getEnvOrDefault("PUBDB_PORT", "5432")
		user := getEnvOrDefault("PUBDB_USER", os.Getenv("USER"))
		baseDB := getEnvOrDefault("PUBDB_DBNAME", "testing_pubdb")
		password := os.Getenv("PUBDB_PASSWORD")
		baseConnStr = connString(user, password, host+":"+port, baseDB)
		testConnStr = connString(user, password, host+":"+port, dbName)
	} else {
		container, err := gnomock.Start(
			postgres.Preset(
				postgres.WithUser("publishrunner", "publishrunner"),
				postgres.WithDatabase("testing_pubdb"),
			),
		)
		if err != nil {
			t.Fatalf("Failed to start postgres container: %v", err)
		}
		t.Cleanup(func() {
			if err := gnomock.Stop(container); err != nil {
				slog.Error("Failed to stop postgres container", slog.Any("error", err))
			}
		})
		addr := container.DefaultAddress()
		baseConnStr = connString("publishrunner", "publishrunner", addr, "testing_pubdb")
		testConnStr = connString("publishrunner", "publishrunner", addr, dbName)
	}

	basePool, err := pgxpool.New(ctx, baseConnStr)
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testPool, err := pubdb.NewConnectionPool(ctx, testConnStr)
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pubdbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run pubdb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()

		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

// NewTestStore creates a pubdb store connected to a fresh test database.
func NewTestStore(t *testing.T) *pubdb.Store {
	return pubdb.NewStore(SetupTestPubDB(t))
}

// SeedArticle inserts an article owned by orgID and returns its id.
func SeedArticle(t *testing.T, pool *pgxpool.Pool, orgID uuid.UUID, title string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO articles (organization_id, title, slug, content)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		orgID, title, slugify(title), "<p>"+title+"</p>",
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed article: %v", err)
	}
	return id
}

// SeedIntegration inserts an integration for platform and returns its id.
func SeedIntegration(t *testing.T, pool *pgxpool.Pool, orgID uuid.UUID, platform string, config string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO integrations (organization_id, platform, name, config)
		 VALUES ($1, $2, $3, $4::jsonb) RETURNING id`,
		orgID, platform, platform+" integration", config,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed integration: %v", err)
	}
	return id
}

func connString(user, password, hostport, dbName string) string {
	if password != "" {
		return fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable", user, password, hostport, dbName)
	}
	return fmt.Sprintf("postgresql://%s@%s/%s?sslmode=disable", user, hostport, dbName)
}

func slugify(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
