package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher turns ledger changes into domain events
type EventPublisher struct {
	writer EventWriter
	logger *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter) *EventPublisher {
	return &EventPublisher{writer: writer, logger: util.GetLogger()}
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}

// PublishSaleCommitted publishes SaleCommitted event
func (ep *EventPublisher) PublishSaleCommitted(ctx context.Context, sale *models.Sale) error {
	event := &models.SaleCommittedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSaleCommitted, sale.CreatedAt),
		SaleID:      sale.ID,
		TotalAmount: sale.TotalAmount,
		Profit:      sale.Profit,
		Items:       make([]models.SaleItemData, len(sale.Lines)),
	}
	for i, l := range sale.Lines {
		event.Items[i] = models.SaleItemData{
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			StockAfter: l.StockAfter,
			Threshold:  l.Threshold,
		}
	}
	return ep.writer.PublishEvent(ctx, "sale-"+sale.ID, event)
}

// PublishProfitReset publishes ProfitReset event
func (ep *EventPublisher) PublishProfitReset(ctx context.Context, reset *models.ProfitReset) error {
	event := &models.ProfitResetEvent{
		BaseEvent:     newBaseEvent(models.EventTypeProfitReset, reset.ResetTimestamp),
		PreviousTotal: reset.PreviousTotal,
	}
	return ep.writer.PublishEvent(ctx, "profit-ledger", event)
}

// PublishProfitCredited publishes ProfitCredited event
func (ep *EventPublisher) PublishProfitCredited(ctx context.Context, change service.LedgerChange) error {
	event := &models.ProfitCreditedEvent{
		BaseEvent: newBaseEvent(models.EventTypeProfitCredit, change.At),
		Amount:    change.Amount,
	}
	if change.Total != nil {
		event.Total = *change.Total
	}
	return ep.writer.PublishEvent(ctx, "profit-ledger", event)
}

// Observer publishes every ledger change. Publish failures are logged; the
// change itself is already durable.
func (ep *EventPublisher) Observer() service.Observer {
	return func(ctx context.Context, change service.LedgerChange) {
		var err error
		switch change.Kind {
		case service.ChangeSale:
			if change.Sale != nil {
				err = ep.PublishSaleCommitted(ctx, change.Sale)
			}
		case service.ChangeReset:
			if change.Reset != nil {
				err = ep.PublishProfitReset(ctx, change.Reset)
			}
		case service.ChangeCredit:
			err = ep.PublishProfitCredited(ctx, change)
		}
		if err != nil {
			ep.logger.Error("Failed to publish ledger change",
				zap.String("kind", string(change.Kind)),
				zap.Error(err))
		}
	}
}

// EventHandler handles incoming events
type EventHandler struct {
	onSaleCommitted func(context.Context, *models.SaleCommittedEvent) error
	onProfitReset   func(context.Context, *models.ProfitResetEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSaleCommitted registers a handler for SaleCommitted events
func (eh *EventHandler) OnSaleCommitted(handler func(context.Context, *models.SaleCommittedEvent) error) {
	eh.onSaleCommitted = handler
}

// OnProfitReset registers a handler for ProfitReset events
func (eh *EventHandler) OnProfitReset(handler func(context.Context, *models.ProfitResetEvent) error) {
	eh.onProfitReset = handler
}

// ErrMalformedMessage marks a message that can never be decoded
var ErrMalformedMessage = errors.New("malformed message")

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSaleCommitted:
		if eh.onSaleCommitted != nil {
			var event models.SaleCommittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: SaleCommitted event: %v", ErrMalformedMessage, err)
			}
			return eh.onSaleCommitted(ctx, &event)
		}

	case models.EventTypeProfitReset:
		if eh.onProfitReset != nil {
			var event models.ProfitResetEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: ProfitReset event: %v", ErrMalformedMessage, err)
			}
			return eh.onProfitReset(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
