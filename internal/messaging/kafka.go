package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/internal/services"
	"github.com/codera/memefeed/internal/validation"
	"github.com/codera/memefeed/pkg/models"
)

const ConsumerGroup = "memefeed-cache-invalidators"

// interactionMessage is the wire form of an interaction event on the
// user-interactions topic.
type interactionMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	ItemID     uuid.UUID `json:"item_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InteractionConsumer watches the interaction topic and bumps cache
// family versions so cached recommendations go stale on the next read.
// Entries are never deleted; version mismatch alone invalidates them.
type InteractionConsumer struct {
	reader    *kafka.Reader
	validator *validation.SchemaValidator
	cache     *services.VersionedCache
	logger    *logrus.Logger
}

func NewInteractionConsumer(
	cfg *config.Config,
	validator *validation.SchemaValidator,
	cache *services.VersionedCache,
	logger *logrus.Logger,
) *InteractionConsumer {
	return &InteractionConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topics.UserInteractions,
			GroupID:        ConsumerGroup,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		validator: validator,
		cache:     cache,
		logger:    logger,
	}
}

// Run consumes until the context is canceled. Malformed messages are
// logged and skipped; transient bump failures leave the message
// uncommitted for redelivery.
func (c *InteractionConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithError(err).Error("Failed to read interaction message")
				continue
			}

			if err := c.handle(ctx, message.Value); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"offset":    message.Offset,
					"partition": message.Partition,
				}).Error("Failed to process interaction message")
			}
		}
	}
}

func (c *InteractionConsumer) handle(ctx context.Context, payload []byte) error {
	if result := c.validator.ValidateInteractionEvent(payload); !result.Valid {
		c.logger.WithField("errors", result.Error()).Warn("Dropped invalid interaction event")
		return nil
	}

	var msg interactionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal interaction event: %w", err)
	}

	for _, family := range services.CacheFamilies {
		version, err := c.cache.Bump(ctx, family, services.BumpPatch)
		if err != nil {
			return fmt.Errorf("failed to bump %s version: %w", family, err)
		}
		metrics.VersionBump(family, string(services.BumpPatch))
		c.logger.WithFields(logrus.Fields{
			"family":  family,
			"version": version,
			"user_id": msg.UserID,
			"type":    models.InteractionType(msg.Type),
		}).Debug("Cache family version bumped")
	}
	return nil
}

func (c *InteractionConsumer) Close() error {
	return c.reader.Close()
}
