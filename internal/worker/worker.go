package worker

import (
	"context"
	"errors"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// AlertService applies table alert changes
type AlertService interface {
	SetAlert(ctx context.Context, tableID int64) (*models.Table, error)
	ClearAlert(ctx context.Context, tableID int64) (*models.Table, error)
}

// AlertWorker applies alert events written by the external table monitor
type AlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	service      AlertService
	logger       *zap.Logger
}

// NewAlertWorker creates a new alert worker
func NewAlertWorker(consumer *broker.Consumer, service AlertService) *AlertWorker {
	w := &AlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		service:      service,
		logger:       util.Named("alert-worker"),
	}

	w.eventHandler.OnTableAlertRaised(w.handleRaised)
	w.eventHandler.OnTableAlertCleared(w.handleCleared)
	return w
}

// Start starts the worker
func (w *AlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting alert worker")
	err := w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop stops the worker
func (w *AlertWorker) Stop() error {
	w.logger.Info("Stopping alert worker")
	return w.consumer.Close()
}

func (w *AlertWorker) handleRaised(ctx context.Context, event *models.TableAlertEvent) error {
	_, err := w.service.SetAlert(ctx, event.TableID)
	return w.settle(event, err)
}

func (w *AlertWorker) handleCleared(ctx context.Context, event *models.TableAlertEvent) error {
	_, err := w.service.ClearAlert(ctx, event.TableID)
	return w.settle(event, err)
}

// settle drops alerts that no longer apply. The monitor may observe a table
// just before it is freed, so a stale alert is not an error.
func (w *AlertWorker) settle(event *models.TableAlertEvent, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrNotFound) {
		w.logger.Info("Ignoring stale table alert",
			zap.String("event_type", event.EventType),
			zap.Int64("table_id", event.TableID),
			zap.Error(err))
		return nil
	}
	return err
}
