package service

import (
	"context"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Low-stock alert levels
const (
	AlertCritical = "critical"
	AlertHigh     = "high"
	AlertMedium   = "medium"
)

// AlertLevel grades a product at or below its threshold
func AlertLevel(quantity, threshold int) string {
	switch {
	case quantity == 0:
		return AlertCritical
	case quantity*2 <= threshold:
		return AlertHigh
	default:
		return AlertMedium
	}
}

// InventoryClient keeps the stock cache in step with the store and raises
// low-stock events. A nil cache disables the fast path.
type InventoryClient struct {
	repo   store.Repository
	cache  StockCache
	events EventPublisher
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(repo store.Repository, cache StockCache, events EventPublisher) *InventoryClient {
	return &InventoryClient{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: util.Named("inventory"),
	}
}

// Reserve takes quantities from the cached counters. On a short counter
// every reservation already taken is released and a conflict is returned.
// Products the cache cannot answer for are left to the store.
func (ic *InventoryClient) Reserve(ctx context.Context, quantities map[int64]int) (map[int64]int, error) {
	reserved := make(map[int64]int, len(quantities))
	if ic.cache == nil {
		return reserved, nil
	}

	ctx, span := util.StartSpan(ctx, "InventoryClient.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	for productID, qty := range quantities {
		ok, err := ic.cache.ReserveStock(ctx, productID, qty)
		if err != nil {
			util.StockCacheFallbacksTotal.WithLabelValues("reserve").Inc()
			ic.logger.Debug("Stock cache unavailable, deferring to store",
				zap.Int64("product_id", productID),
				zap.Error(err))
			continue
		}
		if !ok {
			ic.Release(ctx, reserved)
			return nil, conflictError("Not enough stock for product %d", productID)
		}
		reserved[productID] = qty
	}
	return reserved, nil
}

// Release gives reserved quantities back to the cache (compensation)
func (ic *InventoryClient) Release(ctx context.Context, reserved map[int64]int) {
	if ic.cache == nil {
		return
	}
	for productID, qty := range reserved {
		if err := ic.cache.ReleaseStock(ctx, productID, qty); err != nil {
			util.StockCacheFallbacksTotal.WithLabelValues("release").Inc()
			ic.logger.Error("Failed to release reserved stock",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}
}

// AfterStockChange reloads the given products from the store, refreshes
// their cached counters unless a newer stock version is already cached, and
// publishes STOCK_LOW for any at or below threshold.
func (ic *InventoryClient) AfterStockChange(ctx context.Context, productIDs ...int64) {
	if len(productIDs) == 0 {
		return
	}

	products, err := ic.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		ic.logger.Error("Failed to reload products after stock change", zap.Error(err))
		return
	}

	for _, id := range productIDs {
		p, ok := products[id]
		if !ok {
			ic.forget(ctx, id)
			continue
		}
		ic.cacheProduct(ctx, p)
		if p.QuantityInStock <= p.LowStockThreshold {
			ic.alertLowStock(ctx, p)
		}
	}
}

// SyncAll overwrites every cached counter from the store
func (ic *InventoryClient) SyncAll(ctx context.Context) error {
	if ic.cache == nil {
		return nil
	}

	ic.logger.Info("Starting stock sync to cache")

	products, _, err := ic.repo.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return err
	}
	for _, p := range products {
		ic.cacheProduct(ctx, p)
	}

	ic.logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}

func (ic *InventoryClient) cacheProduct(ctx context.Context, p models.Product) {
	if ic.cache == nil {
		return
	}
	written, err := ic.cache.SetStock(ctx, p.ID, p.QuantityInStock, p.StockVersion)
	if err != nil {
		ic.logger.Warn("Failed to cache stock", zap.Int64("product_id", p.ID), zap.Error(err))
		return
	}
	if !written {
		ic.logger.Debug("Cached stock is newer, skipping",
			zap.Int64("product_id", p.ID),
			zap.Int64("stock_version", p.StockVersion))
	}
}

func (ic *InventoryClient) forget(ctx context.Context, productID int64) {
	if ic.cache == nil {
		return
	}
	if err := ic.cache.DeleteStock(ctx, productID); err != nil {
		ic.logger.Warn("Failed to drop cached stock", zap.Int64("product_id", productID), zap.Error(err))
	}
}

func (ic *InventoryClient) alertLowStock(ctx context.Context, p models.Product) {
	level := AlertLevel(p.QuantityInStock, p.LowStockThreshold)
	util.LowStockAlertsTotal.WithLabelValues(level).Inc()

	event := &models.StockLowEvent{
		BaseEvent:  models.NewBaseEvent(uuid.New().String(), models.EventTypeStockLow),
		ProductID:  p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		Quantity:   p.QuantityInStock,
		Threshold:  p.LowStockThreshold,
		AlertLevel: level,
	}
	if err := ic.events.PublishStockLow(ctx, event); err != nil {
		ic.logger.Error("Failed to publish StockLow event", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

// recordMovements counts committed stock changes by type and direction
func recordMovements(changes []store.StockChange) {
	for _, ch := range changes {
		direction := "in"
		if ch.Delta < 0 {
			direction = "out"
		}
		util.StockMovementsTotal.WithLabelValues(ch.Type, direction).Inc()
	}
}

func changedProducts(changes []store.StockChange) []int64 {
	ids := make([]int64, 0, len(changes))
	for _, ch := range changes {
		ids = append(ids, ch.ProductID)
	}
	return ids
}
