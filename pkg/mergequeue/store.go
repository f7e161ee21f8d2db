package mergequeue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/services"
)

// keyPrefix namespaces queue keys in Redis. One sorted set per repository.
const keyPrefix = "mergeQueue:"

// replaceRetries bounds optimistic-lock retries when a Replace races a
// concurrent writer on the same key.
const replaceRetries = 5

// RedisStore keeps each repository's queue in a Redis sorted set. Members
// are item JSON, scores are insertion scores, so ZRANGE yields processing
// order without any client-side sort.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func queueKey(repositoryID string) string {
	return keyPrefix + repositoryID
}

// Add inserts an item with the given ordering score.
func (s *RedisStore) Add(ctx context.Context, repositoryID string, item *models.QueueItem, score float64) error {
	member, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, queueKey(repositoryID), redis.Z{
		Score:  score,
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("failed to add queue item for pr %d: %w", item.PRNumber, err)
	}
	return nil
}

// Remove deletes the item for a pull request.
func (s *RedisStore) Remove(ctx context.Context, repositoryID string, prNumber int) (bool, error) {
	member, _, err := s.findMember(ctx, s.rdb, repositoryID, prNumber)
	if err != nil {
		return false, err
	}
	if member == "" {
		return false, nil
	}
	removed, err := s.rdb.ZRem(ctx, queueKey(repositoryID), member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove queue item for pr %d: %w", prNumber, err)
	}
	return removed > 0, nil
}

// Range returns all items in score-ascending order.
func (s *RedisStore) Range(ctx context.Context, repositoryID string) ([]*models.QueueItem, error) {
	raws, err := s.rdb.ZRange(ctx, queueKey(repositoryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range queue %s: %w", repositoryID, err)
	}
	items := make([]*models.QueueItem, 0, len(raws))
	for _, raw := range raws {
		var item models.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("corrupt queue member in %s: %w", repositoryID, err)
		}
		items = append(items, &item)
	}
	return items, nil
}

// RangeWithScores returns all items with their scores, score-ascending.
func (s *RedisStore) RangeWithScores(ctx context.Context, repositoryID string) ([]ScoredItem, error) {
	entries, err := s.rdb.ZRangeWithScores(ctx, queueKey(repositoryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range queue %s: %w", repositoryID, err)
	}
	scored := make([]ScoredItem, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Member.(string)
		if !ok {
			continue
		}
		var item models.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("corrupt queue member in %s: %w", repositoryID, err)
		}
		scored = append(scored, ScoredItem{Item: &item, Score: entry.Score})
	}
	return scored, nil
}

// Replace swaps the stored rendition of a pull request's item without
// changing its score. The swap runs under WATCH, so a concurrent write to
// the key aborts the transaction and the swap retries against fresh state.
func (s *RedisStore) Replace(ctx context.Context, repositoryID string, prNumber int, item *models.QueueItem) error {
	key := queueKey(repositoryID)
	member, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	swap := func(tx *redis.Tx) error {
		old, score, err := s.findMember(ctx, tx, repositoryID, prNumber)
		if err != nil {
			return err
		}
		if old == "" {
			return fmt.Errorf("pr %d not queued in %s: %w", prNumber, repositoryID, services.ErrNotFound)
		}
		if old == string(member) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, key, old)
			pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: string(member)})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < replaceRetries; attempt++ {
		err := s.rdb.Watch(ctx, swap, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("replace of pr %d in %s kept losing to concurrent writers", prNumber, repositoryID)
}

// Repositories lists repository IDs with at least one queued item.
func (s *RedisStore) Repositories(ctx context.Context) ([]string, error) {
	var (
		repos  []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue keys: %w", err)
		}
		for _, key := range keys {
			repos = append(repos, strings.TrimPrefix(key, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return repos, nil
		}
	}
}

// redisCmdable covers the read commands shared by *redis.Client and the
// transactional *redis.Tx.
type redisCmdable interface {
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
}

// findMember locates the raw member string and score for a pull request.
// Returns "" when the item is not queued.
func (s *RedisStore) findMember(ctx context.Context, rdb redisCmdable, repositoryID string, prNumber int) (string, float64, error) {
	entries, err := rdb.ZRangeWithScores(ctx, queueKey(repositoryID), 0, -1).Result()
	if err != nil {
		return "", 0, fmt.Errorf("failed to scan queue %s: %w", repositoryID, err)
	}
	for _, entry := range entries {
		raw, ok := entry.Member.(string)
		if !ok {
			continue
		}
		var probe struct {
			PRNumber int `json:"pr_number"`
		}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			continue
		}
		if probe.PRNumber == prNumber {
			return raw, entry.Score, nil
		}
	}
	return "", 0, nil
}
