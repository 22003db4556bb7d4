package sharding

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/config"
)

// ShardManager manages database shards and their replicas
type ShardManager struct {
	shards    []*Shard
	numShards int
	mu        sync.RWMutex
}

// Shard represents a single database shard with primary and replica connections
type Shard struct {
	ShardID  int
	Primary  *sql.DB
	Replicas []*sql.DB
}

// NewShardManager opens and pings every primary and replica in the configuration
func NewShardManager(ctx context.Context, cfg *config.Config) (*ShardManager, error) {
	logger := klog.FromContext(ctx)

	if len(cfg.Shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}

	sm := &ShardManager{
		shards:    make([]*Shard, 0, len(cfg.Shards)),
		numShards: len(cfg.Shards),
	}

	for _, shardCfg := range cfg.Shards {
		shard := &Shard{
			ShardID:  shardCfg.ShardID,
			Replicas: make([]*sql.DB, 0, len(shardCfg.Replicas)),
		}
		sm.shards = append(sm.shards, shard)

		primaryDB, err := open(ctx, shardCfg.Primary)
		if err != nil {
			return nil, multierr.Append(
				fmt.Errorf("failed to connect to primary for shard %d: %w", shardCfg.ShardID, err),
				sm.Close(),
			)
		}
		shard.Primary = primaryDB

		for j, replicaCfg := range shardCfg.Replicas {
			replicaDB, err := open(ctx, replicaCfg)
			if err != nil {
				return nil, multierr.Append(
					fmt.Errorf("failed to connect to replica %d for shard %d: %w", j, shardCfg.ShardID, err),
					sm.Close(),
				)
			}
			shard.Replicas = append(shard.Replicas, replicaDB)
		}

		logger.V(2).Info("Connected shard", "shard", shardCfg.ShardID,
			"driver", shardCfg.Primary.DriverName(), "replicas", len(shard.Replicas))
	}

	return sm, nil
}

func open(ctx context.Context, dc config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(dc.DriverName(), dc.ConnectionString())
	if err != nil {
		return nil, err
	}

	// sqlite serialises writers; one connection avoids "database is locked"
	if dc.DriverName() == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to ping: %w", err), db.Close())
	}
	return db, nil
}

// GetShardID maps a key to a shard with FNV-1a, so the same key always lands on the same shard
func (sm *ShardManager) GetShardID(shardKey string) int {
	h := fnv.New32a()
	h.Write([]byte(shardKey))
	return int(h.Sum32() % uint32(sm.numShards))
}

// GetPrimaryDB returns the primary database for a given shard key
// All write operations should use this
func (sm *ShardManager) GetPrimaryDB(shardKey string) *sql.DB {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.shards[sm.GetShardID(shardKey)].Primary
}

// GetReplicaDB returns a random replica for a given shard key,
// or the primary when the shard has no replicas
func (sm *ShardManager) GetReplicaDB(shardKey string) *sql.DB {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.shards[sm.GetShardID(shardKey)].Reader()
}

// Reader returns a random replica, or the primary when there is none
func (s *Shard) Reader() *sql.DB {
	if len(s.Replicas) == 0 {
		return s.Primary
	}
	return s.Replicas[rand.Intn(len(s.Replicas))]
}

// GetAllShards returns a copy of the shard list
func (sm *ShardManager) GetAllShards() []*Shard {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	shardsCopy := make([]*Shard, len(sm.shards))
	copy(shardsCopy, sm.shards)
	return shardsCopy
}

// Ping checks every primary and replica
func (sm *ShardManager) Ping(ctx context.Context) error {
	var err error
	for _, shard := range sm.GetAllShards() {
		if pingErr := shard.Primary.PingContext(ctx); pingErr != nil {
			err = multierr.Append(err, fmt.Errorf("primary for shard %d: %w", shard.ShardID, pingErr))
		}
		for i, replica := range shard.Replicas {
			if pingErr := replica.PingContext(ctx); pingErr != nil {
				err = multierr.Append(err, fmt.Errorf("replica %d for shard %d: %w", i, shard.ShardID, pingErr))
			}
		}
	}
	return err
}

// Close closes all database connections
func (sm *ShardManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var err error
	for _, shard := range sm.shards {
		if shard.Primary != nil {
			if closeErr := shard.Primary.Close(); closeErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to close primary for shard %d: %w", shard.ShardID, closeErr))
			}
		}

		for i, replica := range shard.Replicas {
			if closeErr := replica.Close(); closeErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to close replica %d for shard %d: %w", i, shard.ShardID, closeErr))
			}
		}
	}

	return err
}

// NumShards returns the total number of shards
func (sm *ShardManager) NumShards() int {
	return sm.numShards
}
