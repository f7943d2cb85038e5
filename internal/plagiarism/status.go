package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statusKeyPrefix = "plagiarism_check_status:"
	statusTTL       = 12 * time.Hour
)

// StatusCache mirrors check statuses into Redis so status polling does not
// hit the record store.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (s *StatusCache) Publish(ctx context.Context, checkID string, status models.CheckStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown check status: %s", status)
	}

	rkey := statusKeyPrefix + checkID

	err := s.client.Set(ctx, rkey, string(status), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("status", string(status)).
			Str("checkId", checkID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("status", string(status)).
		Str("checkId", checkID).
		Msg("Status updated in Redis")

	return nil
}

// Status returns the cached status of a check. ok is false on a cache miss.
func (s *StatusCache) Status(ctx context.Context, checkID string) (status models.CheckStatus, ok bool, err error) {
	raw, err := s.client.Get(ctx, statusKeyPrefix+checkID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read status from Redis: %w", err)
	}

	status = models.CheckStatus(raw)
	if !status.Valid() {
		return "", false, nil
	}
	return status, true, nil
}
