package worker

import (
	"context"
	"fmt"

	"inventory-service/internal/broker"
	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// Alert levels
const (
	LevelLowStock   = "low_stock"
	LevelOutOfStock = "out_of_stock"
)

// StockAlert is raised for a sold product that is now low or out of stock
type StockAlert struct {
	ProductID int64
	Stock     int
	Threshold int
	Level     string
	SaleID    string
}

// StockAlertWorker raises stock alerts from committed sale events
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	events       service.EventLog
	onAlert      func(StockAlert)
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker. consumer may be nil
// when events are fed in directly.
func NewStockAlertWorker(consumer *broker.Consumer, events service.EventLog) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		events:       events,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSaleCommitted(w.HandleSaleCommitted)
	w.eventHandler.OnProfitReset(w.handleProfitReset)
	return w
}

// OnAlert registers a callback invoked for every alert raised
func (w *StockAlertWorker) OnAlert(fn func(StockAlert)) {
	w.onAlert = fn
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

// HandleSaleCommitted raises alerts for the event's products at most once
// per event id.
func (w *StockAlertWorker) HandleSaleCommitted(ctx context.Context, event *models.SaleCommittedEvent) error {
	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	for _, item := range event.Items {
		alert, ok := classify(event.SaleID, item)
		if !ok {
			continue
		}
		util.StockAlertsTotal.WithLabelValues(alert.Level).Inc()
		w.logger.Warn("Stock alert",
			zap.String("level", alert.Level),
			zap.Int64("product_id", alert.ProductID),
			zap.Int("stock", alert.Stock),
			zap.Int("threshold", alert.Threshold),
			zap.String("sale_id", alert.SaleID))
		if w.onAlert != nil {
			w.onAlert(alert)
		}
	}

	return w.events.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *StockAlertWorker) handleProfitReset(ctx context.Context, event *models.ProfitResetEvent) error {
	w.logger.Info("Profit ledger was reset",
		zap.String("event_id", event.EventID),
		zap.String("previous_total", event.PreviousTotal.StringFixed(2)),
		zap.Time("reset_at", event.Timestamp))
	return nil
}

func classify(saleID string, item models.SaleItemData) (StockAlert, bool) {
	threshold := item.Threshold
	if threshold <= 0 {
		threshold = models.DefaultLowStockThreshold
	}

	alert := StockAlert{
		ProductID: item.ProductID,
		Stock:     item.StockAfter,
		Threshold: threshold,
		SaleID:    saleID,
	}
	switch {
	case item.StockAfter <= 0:
		alert.Level = LevelOutOfStock
	case item.StockAfter < threshold:
		alert.Level = LevelLowStock
	default:
		return alert, false
	}
	return alert, true
}
