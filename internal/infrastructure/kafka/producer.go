package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
)

const topicFeedDisabled = "feed.disabled"

// FeedsDisabledMessage announces feeds deactivated after a permanent delivery
// failure; the bot service consumes it to notify the owner.
type FeedsDisabledMessage struct {
	OwnerID   string   `json:"owner_id"`
	FeedIDs   []string `json:"feed_ids"`
	ErrorCode string   `json:"error_code"`
	Timestamp int64    `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer creates a feed status event producer
func NewProducer(cfg *config.KafkaConfig, logger zerolog.Logger) (deps.EventProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Msg("Kafka producer initialized")

	return &Producer{
		writer: writer,
		logger: logger,
	}, nil
}

// SendFeedsDisabled publishes a feeds disabled event
func (p *Producer) SendFeedsDisabled(ctx context.Context, ownerID string, feedIDs []string, errorCode string) error {
	msg := FeedsDisabledMessage{
		OwnerID:   ownerID,
		FeedIDs:   feedIDs,
		ErrorCode: errorCode,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicFeedDisabled,
		Key:   []byte(ownerID),
		Value: data,
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("owner_id", ownerID).
			Strs("feed_ids", feedIDs).
			Msg("Failed to send feeds disabled message")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug().
		Str("owner_id", ownerID).
		Strs("feed_ids", feedIDs).
		Msg("Feeds disabled message sent")

	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
