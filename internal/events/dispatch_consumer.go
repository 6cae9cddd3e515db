package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TripCanceller is the slice of the trip service the dispatch consumer needs.
type TripCanceller interface {
	CancelTripByDispatch(ctx context.Context, tripID uuid.UUID, reason string) error
}

// DispatchEventConsumer listens to dispatch events and cancels trips the
// dispatch service has voided.
type DispatchEventConsumer struct {
	consumer *Consumer
	service  TripCanceller
	logger   *zap.Logger
}

// NewDispatchEventConsumer creates a new DispatchEventConsumer.
func NewDispatchEventConsumer(
	brokers []string,
	groupID string,
	service TripCanceller,
	logger *zap.Logger,
) *DispatchEventConsumer {
	consumer := NewConsumer(brokers, groupID, TopicDispatchEvents, logger)
	return &DispatchEventConsumer{
		consumer: consumer,
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming dispatch events. This blocks until the context is cancelled.
func (c *DispatchEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *DispatchEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *DispatchEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var cloudEvent CloudEvent
	if err := json.Unmarshal(msg.Value, &cloudEvent); err != nil {
		c.logger.Error("failed to parse cloud event from dispatch topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case DispatchRideCancelled:
		return c.handleRideCancelled(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled dispatch event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *DispatchEventConsumer) handleRideCancelled(ctx context.Context, cloudEvent CloudEvent) error {
	var evt RideCancelledByDispatchEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse RideCancelledByDispatchEvent data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	c.logger.Info("processing dispatch ride cancelled event",
		zap.String("trip_id", evt.TripID.String()),
		zap.String("reason", evt.Reason),
	)

	if err := c.service.CancelTripByDispatch(ctx, evt.TripID, evt.Reason); err != nil {
		c.logger.Error("failed to cancel trip after dispatch event",
			zap.String("trip_id", evt.TripID.String()),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("trip cancelled after dispatch event",
		zap.String("trip_id", evt.TripID.String()),
	)
	return nil
}
