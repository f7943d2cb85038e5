package matchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps the graph as one JSON value under a single key, so every
// save is a single atomic SET.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Graph, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Graph{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match index from Redis: %w", err)
	}

	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		log.Warn().Err(err).Str("redisKey", s.key).Msg("Match index value is corrupt, starting empty")
		return Graph{}, nil
	}
	return g.Clean(), nil
}

func (s *RedisStore) Save(ctx context.Context, g Graph) error {
	data, err := json.Marshal(g.Clean())
	if err != nil {
		return fmt.Errorf("failed to encode match index: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write match index to Redis: %w", err)
	}
	return nil
}
