package service

import (
	"context"
	"fmt"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatsProjector keeps customer running totals in step with order and
// return events. Each event is applied at most once, keyed by event id.
// Totals are UGX at the rate carried by the event.
type StatsProjector struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewStatsProjector creates a new customer stats projector
func NewStatsProjector(repo store.Repository) *StatsProjector {
	return &StatsProjector{repo: repo, logger: util.Named("projector")}
}

// once runs apply unless eventID was already handled, then marks it
func (p *StatsProjector) once(ctx context.Context, event models.BaseEvent, apply func() error) error {
	processed, err := p.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := apply(); err != nil {
		return err
	}

	if err := p.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (p *StatsProjector) adjust(ctx context.Context, phone string, purchases int, spent decimal.Decimal) error {
	if phone == "" {
		return nil
	}
	if err := p.repo.AdjustCustomerTotals(ctx, phone, purchases, spent); err != nil {
		return fmt.Errorf("failed to adjust customer totals: %w", err)
	}
	return nil
}

// HandleOrderCreated counts the purchase against the customer
func (p *StatsProjector) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsProjector.HandleOrderCreated")
	defer span.End()

	return util.RecordError(span, p.once(ctx, event.BaseEvent, func() error {
		spent := ToUGX(event.TotalAmount, event.Currency, event.ExchangeRate)
		p.logger.Info("Recording purchase",
			zap.Int64("order_id", event.OrderID),
			zap.String("customer_phone", event.CustomerPhone),
			zap.String("spent_ugx", spent.String()))
		return p.adjust(ctx, event.CustomerPhone, 1, spent)
	}))
}

// HandleOrderDeleted reverses the purchase
func (p *StatsProjector) HandleOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsProjector.HandleOrderDeleted")
	defer span.End()

	return util.RecordError(span, p.once(ctx, event.BaseEvent, func() error {
		spent := ToUGX(event.TotalAmount, event.Currency, event.ExchangeRate)
		return p.adjust(ctx, event.CustomerPhone, -1, spent.Neg())
	}))
}

// HandleReturnApproved deducts the refund from the customer's spend
func (p *StatsProjector) HandleReturnApproved(ctx context.Context, event *models.ReturnApprovedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsProjector.HandleReturnApproved")
	defer span.End()

	return util.RecordError(span, p.once(ctx, event.BaseEvent, func() error {
		refund := ToUGX(event.TotalRefund, event.Currency, event.ExchangeRate)
		return p.adjust(ctx, event.CustomerPhone, 0, refund.Neg())
	}))
}

// HandleStockLow surfaces the alert in the worker log
func (p *StatsProjector) HandleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	log := p.logger.Info
	if event.AlertLevel == AlertCritical {
		log = p.logger.Warn
	}
	log("Low stock",
		zap.Int64("product_id", event.ProductID),
		zap.String("sku", event.SKU),
		zap.Int("quantity", event.Quantity),
		zap.Int("threshold", event.Threshold),
		zap.String("alert_level", event.AlertLevel))
	return nil
}
