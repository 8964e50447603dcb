package worker

import (
	"context"

	"retail-core/internal/broker"
	"retail-core/internal/service"
	"retail-core/internal/util"

	"go.uber.org/zap"
)

// StatsWorker consumes domain events and drives the customer stats
// projection and low-stock alerting
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatsWorker wires projector handlers onto a fresh event handler
func NewStatsWorker(consumer *broker.Consumer, projector *service.StatsProjector) *StatsWorker {
	return &StatsWorker{
		consumer:     consumer,
		eventHandler: Handler(projector),
		logger:       util.Named("worker"),
	}
}

// Handler routes the events the projector cares about
func Handler(projector *service.StatsProjector) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(projector.HandleOrderCreated)
	eventHandler.OnOrderDeleted(projector.HandleOrderDeleted)
	eventHandler.OnReturnApproved(projector.HandleReturnApproved)
	eventHandler.OnStockLow(projector.HandleStockLow)
	return eventHandler
}

// Start blocks consuming until ctx is cancelled
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.consumer.Close()
}
