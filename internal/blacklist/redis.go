package blacklist

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
)

// DefaultRedisKey is the hash holding normalized keyword -> keyword.
const DefaultRedisKey = "regwatch:blacklist:keywords"

// RedisStore keeps keywords in a Redis hash keyed by the normalized form, so
// keywords differing only in case or accents are stored once.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ database.KeywordRepository = (*RedisStore)(nil)

// NewRedisStore creates a store on key, or DefaultRedisKey when empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// List implements database.KeywordRepository.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	vals, err := s.client.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals %s: %w", s.key, err)
	}
	sort.Slice(vals, func(i, j int) bool { return strings.ToLower(vals[i]) < strings.ToLower(vals[j]) })
	return vals, nil
}

// Add implements database.KeywordRepository.
func (s *RedisStore) Add(ctx context.Context, keywords ...string) (int, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.BoolCmd, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		field := Normalize(kw)
		if field == "" {
			continue
		}
		cmds = append(cmds, pipe.HSetNX(ctx, s.key, field, kw))
	}
	if len(cmds) == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis hsetnx %s: %w", s.key, err)
	}
	added := 0
	for _, cmd := range cmds {
		if cmd.Val() {
			added++
		}
	}
	return added, nil
}

// Remove implements database.KeywordRepository.
func (s *RedisStore) Remove(ctx context.Context, keyword string) (bool, error) {
	n, err := s.client.HDel(ctx, s.key, Normalize(keyword)).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel %s: %w", s.key, err)
	}
	return n > 0, nil
}
