package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing lifecycle events. Every event is keyed by
// its table so consumers see one table's history in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderStarted publishes OrderStarted event
func (ep *EventPublisher) PublishOrderStarted(ctx context.Context, event *models.OrderStartedEvent) error {
	return ep.producer.PublishEvent(ctx, tableKey(event.TableID), event)
}

// PublishKitchenTicket publishes KitchenTicket event
func (ep *EventPublisher) PublishKitchenTicket(ctx context.Context, event *models.KitchenTicketEvent) error {
	return ep.producer.PublishEvent(ctx, tableKey(event.TableID), event)
}

// PublishOrderClosed publishes OrderClosed event
func (ep *EventPublisher) PublishOrderClosed(ctx context.Context, event *models.OrderClosedEvent) error {
	return ep.producer.PublishEvent(ctx, tableKey(event.TableID), event)
}

// PublishOrderCanceled publishes OrderCanceled event
func (ep *EventPublisher) PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	return ep.producer.PublishEvent(ctx, tableKey(event.TableID), event)
}

// PublishSaleCanceled publishes SaleCanceled event
func (ep *EventPublisher) PublishSaleCanceled(ctx context.Context, event *models.SaleCanceledEvent) error {
	return ep.producer.PublishEvent(ctx, tableKey(event.TableID), event)
}

func tableKey(tableID int64) string {
	return fmt.Sprintf("table-%d", tableID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onTableAlertRaised  func(context.Context, *models.TableAlertEvent) error
	onTableAlertCleared func(context.Context, *models.TableAlertEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("event-handler")}
}

// OnTableAlertRaised registers a handler for TableAlertRaised events
func (eh *EventHandler) OnTableAlertRaised(handler func(context.Context, *models.TableAlertEvent) error) {
	eh.onTableAlertRaised = handler
}

// OnTableAlertCleared registers a handler for TableAlertCleared events
func (eh *EventHandler) OnTableAlertCleared(handler func(context.Context, *models.TableAlertEvent) error) {
	eh.onTableAlertCleared = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	var handler func(context.Context, *models.TableAlertEvent) error
	switch baseEvent.EventType {
	case models.EventTypeTableAlertRaised:
		handler = eh.onTableAlertRaised
	case models.EventTypeTableAlertCleared:
		handler = eh.onTableAlertCleared
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
		return nil
	}
	if handler == nil {
		return nil
	}

	var event models.TableAlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
