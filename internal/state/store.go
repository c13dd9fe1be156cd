// Package state persists research run snapshots in Redis so the HTTP API
// can serve status and reports without querying workflow history. Snapshots
// are written by activities at stage boundaries and expire after a TTL.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const (
	runKeyPrefix = "deepresearch:run:"
	recentKey    = "deepresearch:runs:recent"
	recentLimit  = 100
)

// ErrNotFound is returned when no snapshot exists for a run.
var ErrNotFound = errors.New("run state not found")

// Store reads and writes run snapshots.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore wraps an existing Redis client. ttl bounds how long finished run
// snapshots remain readable.
func NewStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

func runKey(runID string) string { return runKeyPrefix + runID }

// Save snapshots the full run state and records the run in the recent list.
func (s *Store) Save(ctx context.Context, st *research.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, runKey(st.RunID), payload, s.ttl)
	pipe.LRem(ctx, recentKey, 0, st.RunID)
	pipe.LPush(ctx, recentKey, st.RunID)
	pipe.LTrim(ctx, recentKey, 0, recentLimit-1)
	pipe.Expire(ctx, recentKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}

	s.logger.Debug("Run state saved",
		zap.String("run_id", st.RunID),
		zap.String("step", string(st.CurrentStep)),
		zap.Int("iteration", st.Iteration),
	)
	return nil
}

// Load returns the latest snapshot for a run, or ErrNotFound.
func (s *Store) Load(ctx context.Context, runID string) (*research.State, error) {
	raw, err := s.rdb.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}
	var st research.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}
	return &st, nil
}

// Recent lists up to limit run IDs, most recently saved first.
func (s *Store) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > recentLimit {
		limit = recentLimit
	}
	ids, err := s.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	return ids, nil
}

// Delete removes a run's snapshot and its recent-list entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, runKey(runID))
	pipe.LRem(ctx, recentKey, 0, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete run state: %w", err)
	}
	return nil
}
