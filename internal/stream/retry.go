package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 10 * time.Second
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryWithBackoff dead-letters it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type RetryHandler struct {
	client        *redis.Client
	deadLetterKey string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewRetryHandler(client *redis.Client, deadLetterKey string) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxRetries:    defaultMaxRetries,
		baseDelay:     defaultBaseDelay,
		maxDelay:      defaultMaxDelay,
	}
}

// RetryWithBackoff runs fn until it succeeds, doubling the delay between
// attempts. When attempts run out the message is moved to the dead letter
// stream and the last error is returned.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var lastErr error
	delay := h.baseDelay

	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(lastErr, &permanent) {
			break
		}

		log.Warn().
			Err(lastErr).
			Str("message_id", messageID).
			Int("attempt", attempt).
			Msg("Message processing failed")

		if attempt == h.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, h.maxDelay)
	}

	if err := h.sendToDeadLetter(ctx, messageID, fields, lastErr); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to move message to dead letter stream")
	}
	return lastErr
}

func (h *RetryHandler) sendToDeadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values["original_id"] = messageID
	values["error"] = cause.Error()
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.deadLetterKey,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to dead letter stream: %w", err)
	}

	log.Warn().
		Str("message_id", messageID).
		Str("dead_letter_stream", h.deadLetterKey).
		Msg("Message moved to dead letter stream")
	return nil
}
