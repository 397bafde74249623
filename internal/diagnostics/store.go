// Package diagnostics persists failure snapshots (last poll payloads,
// download attempt logs) so an operator can inspect what the remote service
// answered. Storage is optional: without redis the store is a no-op.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"customer-export/internal/config"
	"customer-export/internal/misa"

	"github.com/redis/go-redis/v9"
)

// Snapshot is one failed-run record keyed by its run id.
type Snapshot struct {
	RunID     string          `json:"run_id"`
	ExportID  string          `json:"export_id,omitempty"`
	Stage     string          `json:"stage"`
	Message   string          `json:"message"`
	LastPoll  json.RawMessage `json:"last_poll,omitempty"`
	Attempts  []misa.Attempt  `json:"attempts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewClient creates a redis client from config, or nil when no address is
// configured.
func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func snapshotKey(runID string) string {
	return "export_snapshot:" + runID
}

// Save writes the snapshot under its run id with the store TTL. Saving with
// no redis configured succeeds silently.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if s == nil || s.client == nil {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot to redis: %w", err)
	}
	return nil
}

// Get returns the snapshot for a run id, or nil when absent.
func (s *Store) Get(ctx context.Context, runID string) (*Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	val, err := s.client.Get(ctx, snapshotKey(runID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
