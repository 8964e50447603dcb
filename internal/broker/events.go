package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"retail-core/internal/models"
	"retail-core/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink delivers one keyed event. Producer writes to Kafka; LocalSink hands
// the event straight to an in-process EventHandler.
type Sink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events. A nil sink turns every
// publish into a no-op.
type EventPublisher struct {
	sink Sink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink Sink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	if ep.sink == nil {
		return nil
	}
	if err := ep.sink.PublishEvent(ctx, key, event); err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return err
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	return nil
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishOrderUpdated publishes OrderUpdated event
func (ep *EventPublisher) PublishOrderUpdated(ctx context.Context, event *models.OrderUpdatedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishOrderDeleted publishes OrderDeleted event
func (ep *EventPublisher) PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishReturnApproved is keyed by order so it follows the order's own events
func (ep *EventPublisher) PublishReturnApproved(ctx context.Context, event *models.ReturnApprovedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishReturnRejected publishes ReturnRejected event
func (ep *EventPublisher) PublishReturnRejected(ctx context.Context, event *models.ReturnRejectedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishStockLow publishes StockLow event
func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	return ep.publish(ctx, fmt.Sprintf("product-%d", event.ProductID), event.EventType, event)
}

// PublishInvoiceGenerated publishes InvoiceGenerated event
func (ep *EventPublisher) PublishInvoiceGenerated(ctx context.Context, event *models.InvoiceGeneratedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("invoice-%d", event.InvoiceID), event.EventType, event)
}

// PublishExpenseRecorded publishes ExpenseRecorded event
func (ep *EventPublisher) PublishExpenseRecorded(ctx context.Context, event *models.ExpenseRecordedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("expense-%d", event.ExpenseID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCreated   func(context.Context, *models.OrderCreatedEvent) error
	onOrderDeleted   func(context.Context, *models.OrderDeletedEvent) error
	onReturnApproved func(context.Context, *models.ReturnApprovedEvent) error
	onStockLow       func(context.Context, *models.StockLowEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("events")}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnOrderDeleted registers a handler for OrderDeleted events
func (eh *EventHandler) OnOrderDeleted(handler func(context.Context, *models.OrderDeletedEvent) error) {
	eh.onOrderDeleted = handler
}

// OnReturnApproved registers a handler for ReturnApproved events
func (eh *EventHandler) OnReturnApproved(handler func(context.Context, *models.ReturnApprovedEvent) error) {
	eh.onReturnApproved = handler
}

// OnStockLow registers a handler for StockLow events
func (eh *EventHandler) OnStockLow(handler func(context.Context, *models.StockLowEvent) error) {
	eh.onStockLow = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	err := eh.dispatch(ctx, baseEvent.EventType, msg.Value)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, result).Inc()
	return err
}

func (eh *EventHandler) dispatch(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderDeleted:
		if eh.onOrderDeleted != nil {
			var event models.OrderDeletedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderDeleted event: %w", err)
			}
			return eh.onOrderDeleted(ctx, &event)
		}

	case models.EventTypeReturnApproved:
		if eh.onReturnApproved != nil {
			var event models.ReturnApprovedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReturnApproved event: %w", err)
			}
			return eh.onReturnApproved(ctx, &event)
		}

	case models.EventTypeStockLow:
		if eh.onStockLow != nil {
			var event models.StockLowEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockLow event: %w", err)
			}
			return eh.onStockLow(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", eventType))
	}

	return nil
}
