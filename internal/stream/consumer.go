package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/labcheck/internal/ingest"
	"github.com/RishiKendai/labcheck/internal/metrics"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	readCount       = 10
	readBlock       = time.Second
	claimMinIdle    = time.Minute
	claimCount      = 100
	reclaimInterval = 30 * time.Second
	trimInterval    = time.Hour
	errorBackoff    = time.Second
)

// EventHandler stores a synchronized report.
type EventHandler interface {
	IngestEvent(ctx context.Context, event *models.ReportEvent) (ingest.Outcome, error)
}

// Consumer reads report events from a Redis stream as a member of a consumer
// group. Entries left unacknowledged by a crashed member are claimed again
// once idle, and entries older than the retention window are trimmed.
type Consumer struct {
	client    *redis.Client
	stream    string
	group     string
	name      string
	handler   EventHandler
	retry     *RetryHandler
	retention time.Duration
}

func NewConsumer(
	client *redis.Client,
	stream string,
	group string,
	name string,
	handler EventHandler,
	retry *RetryHandler,
	retention time.Duration,
) *Consumer {
	return &Consumer{
		client:    client,
		stream:    stream,
		group:     group,
		name:      name,
		handler:   handler,
		retry:     retry,
		retention: retention,
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Str("group", c.group).Msg("Could not create consumer group")
	}

	c.reclaim(ctx)
	go c.maintain(ctx)

	log.Info().
		Str("stream", c.stream).
		Str("group", c.group).
		Str("consumer", c.name).
		Dur("retention", c.retention).
		Msg("Stream consumer running")

	for ctx.Err() == nil {
		if err := c.readBatch(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("stream", c.stream).Msg("Failed to read report events")
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		}
	}
	return ctx.Err()
}

// ensureGroup creates the group at the stream tail; an existing group is kept.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// maintain periodically claims stale pending entries and trims old ones.
func (c *Consumer) maintain(ctx context.Context) {
	reclaimTicker := time.NewTicker(reclaimInterval)
	defer reclaimTicker.Stop()
	trimTicker := time.NewTicker(trimInterval)
	defer trimTicker.Stop()

	c.trim(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			c.reclaim(ctx)
		case <-trimTicker.C:
			c.trim(ctx)
		}
	}
}

// reclaim takes over entries that another member read but never acknowledged.
func (c *Consumer) reclaim(ctx context.Context) {
	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  claimMinIdle,
			Start:    start,
			Count:    claimCount,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Str("stream", c.stream).Msg("Failed to claim pending report events")
			}
			return
		}

		if len(msgs) > 0 {
			log.Info().Int("claimed", len(msgs)).Msg("Claimed pending report events")
		}
		for i := range msgs {
			c.handle(ctx, &msgs[i])
		}

		if next == "0-0" || next == "" {
			return
		}
		start = next
	}
}

func (c *Consumer) readBatch(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, s := range streams {
		for i := range s.Messages {
			c.handle(ctx, &s.Messages[i])
		}
	}
	return nil
}

// handle ingests one entry and acknowledges it unless the consumer is
// shutting down, in which case the entry stays pending for a later claim.
func (c *Consumer) handle(ctx context.Context, msg *redis.XMessage) {
	fields := make(map[string]string, len(msg.Values))
	raw := make(map[string]interface{}, len(msg.Values))
	for k, v := range msg.Values {
		raw[k] = v
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	event, err := ParseReportEvent(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed report event")
		metrics.StreamEvents.WithLabelValues("invalid").Inc()
		c.ack(ctx, msg.ID)
		return
	}

	var outcome ingest.Outcome
	err = c.retry.RetryWithBackoff(ctx, func() error {
		var ingestErr error
		outcome, ingestErr = c.handler.IngestEvent(ctx, event)
		if isPermanent(ingestErr) {
			return Permanent(ingestErr)
		}
		return ingestErr
	}, msg.ID, raw)

	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		log.Debug().Str("message_id", msg.ID).Msg("Shutting down, leaving report event pending")
		return
	case err != nil:
		metrics.StreamEvents.WithLabelValues("dead_letter").Inc()
	default:
		metrics.StreamEvents.WithLabelValues(string(outcome)).Inc()
		log.Debug().
			Str("message_id", msg.ID).
			Str("name", event.Name).
			Str("outcome", string(outcome)).
			Msg("Report event handled")
	}
	c.ack(ctx, msg.ID)
}

func isPermanent(err error) bool {
	return errors.Is(err, ingest.ErrInvalidCloudLink) ||
		errors.Is(err, ingest.ErrEmptyText) ||
		errors.Is(err, ingest.ErrMissingName)
}

// trim drops entries older than the retention window.
func (c *Consumer) trim(ctx context.Context) {
	cutoff := time.Now().Add(-c.retention)
	minID := fmt.Sprintf("%d-0", cutoff.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.stream, minID).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("stream", c.stream).Msg("Failed to trim stream")
		}
		return
	}
	if trimmed > 0 {
		log.Debug().Int64("trimmed", trimmed).Time("cutoff", cutoff).Msg("Trimmed old report events")
	}
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge report event")
	}
}
