// Package shardtest builds shard configurations backed by in-memory sqlite
// databases, so storage and service tests run without Postgres.
package shardtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/samandartukhtayev/user-sync/config"
)

// Config returns the default configuration with numShards in-memory shards.
// Every shard gets one replica that shares the primary's database.
func Config(t testing.TB, numShards int) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Shards = make([]config.ShardConfig, numShards)

	run := uuid.NewString()
	for i := range cfg.Shards {
		db := config.DatabaseConfig{
			Driver: "sqlite3",
			DSN:    fmt.Sprintf("file:%s-shard%d?mode=memory&cache=shared", run, i),
		}
		cfg.Shards[i] = config.ShardConfig{
			ShardID:  i,
			Primary:  db,
			Replicas: []config.DatabaseConfig{db},
		}
	}
	return cfg
}
