package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// OrderService handles order business logic
type OrderService struct {
	repo         store.Repository
	inventory    *InventoryClient
	idempotency  IdempotencyStore
	events       EventPublisher
	exchangeRate decimal.Decimal
	maxHistory   int
	logger       *zap.Logger
	now          func() time.Time
}

// NewOrderService creates a new order service. exchangeRate is the UGX per
// USD rate snapshotted onto new orders; idempotency may be nil.
func NewOrderService(
	repo store.Repository,
	inventory *InventoryClient,
	idempotency IdempotencyStore,
	events EventPublisher,
	exchangeRate decimal.Decimal,
	maxEditHistory int,
) *OrderService {
	return &OrderService{
		repo:         repo,
		inventory:    inventory,
		idempotency:  idempotency,
		events:       events,
		exchangeRate: exchangeRate,
		maxHistory:   maxEditHistory,
		logger:       util.Named("orders"),
		now:          time.Now,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerName   string        `json:"customer_name" validate:"max=200"`
	CustomerPhone  string        `json:"customer_phone" validate:"max=50"`
	Currency       string        `json:"currency" validate:"omitempty,oneof=UGX USD"`
	Items          []LineRequest `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string        `json:"-"`
}

// CreateOrder prices the items, decrements stock and persists the order in
// one store transaction. The boolean is false when an earlier request with
// the same idempotency key already created the order.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.SalesOrder, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	order, created, err := s.createOrder(ctx, req)
	return order, created, util.RecordError(span, err)
}

func (s *OrderService) createOrder(ctx context.Context, req *CreateOrderRequest) (*models.SalesOrder, bool, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(req.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, false, validationError("Please add at least one item to create an order.")
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, false, err
	}
	if err := validateRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, false, nil
		}

		release, err := s.lockIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		defer release()
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs(req.Items))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load products: %w", err)
	}
	if err := checkAvailable(req.Items, products); err != nil {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, false, err
	}

	items, err := priceLines(currency, s.exchangeRate, req.Items, products)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, false, err
	}

	order := &models.SalesOrder{
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		OrderDate:      s.now(),
		Currency:       currency,
		ExchangeRate:   s.exchangeRate,
		Status:         models.OrderStatusCompleted,
		Items:          items,
		ServedBy:       actor.UserID,
		ServedByName:   actor.Username,
		IdempotencyKey: req.IdempotencyKey,
	}
	order.Recalculate()

	reserved, err := s.inventory.Reserve(ctx, requestedQuantities(req.Items))
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, false, err
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		s.inventory.Release(ctx, reserved)

		if errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "" {
			existing, lookupErr := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, false, translate(fmt.Errorf("failed to create order: %w", err))
	}

	changes := store.SaleChanges(order)
	recordMovements(changes)
	s.inventory.AfterStockChange(ctx, changedProducts(changes)...)
	s.rememberIdempotencyKey(ctx, order)

	util.OrdersCreatedTotal.WithLabelValues(order.Currency).Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("currency", order.Currency),
		zap.String("total", order.TotalAmount.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderCreated),
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Currency:      order.Currency,
		ExchangeRate:  order.ExchangeRate,
		TotalAmount:   order.TotalAmount,
		Items:         itemData(order.Items),
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, true, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string) (*models.SalesOrder, error) {
	if s.idempotency != nil {
		id, ok, err := s.idempotency.LookupIdempotencyKey(ctx, key)
		if err != nil {
			s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
		} else if ok {
			order, err := s.repo.GetOrder(ctx, id)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}
	return s.repo.GetOrderByIdempotencyKey(ctx, key)
}

// lockIdempotencyKey keeps two in-flight requests with one key apart. Without
// a cache the store's unique index settles the race instead.
func (s *OrderService) lockIdempotencyKey(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.idempotency == nil {
		return noop, nil
	}

	lockKey := "order:" + key
	acquired, err := s.idempotency.AcquireLock(ctx, lockKey, idempotencyLockTTL)
	if err != nil {
		s.logger.Warn("Idempotency lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !acquired {
		return nil, conflictError("A request with this Idempotency-Key is already in progress")
	}
	return func() {
		if err := s.idempotency.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.Error(err))
		}
	}, nil
}

func (s *OrderService) rememberIdempotencyKey(ctx context.Context, order *models.SalesOrder) {
	if s.idempotency == nil || order.IdempotencyKey == "" {
		return
	}
	if err := s.idempotency.RememberIdempotencyKey(ctx, order.IdempotencyKey, order.ID, idempotencyTTL); err != nil {
		s.logger.Warn("Failed to remember idempotency key", zap.Error(err))
	}
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// ListOrders returns one page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.SalesOrder, int, error) {
	if filter.Status != "" && filter.Status != models.OrderStatusPending && filter.Status != models.OrderStatusCompleted {
		return nil, 0, validationError("unknown order status %q", filter.Status)
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderRequest carries the fields to change. Nil or empty values are
// left alone; a non-empty Items replaces the whole item list.
type UpdateOrderRequest struct {
	CustomerName  *string       `json:"customer_name" validate:"omitempty,max=200"`
	CustomerPhone *string       `json:"customer_phone" validate:"omitempty,max=50"`
	Status        *string       `json:"status" validate:"omitempty,oneof=pending completed"`
	Items         []LineRequest `json:"items" validate:"omitempty,dive"`
}

// UpdateOrder applies the edit, re-prices replaced items at the order's own
// currency and rate, moves stock by the per-product quantity delta and
// appends one history entry per changed field.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID int64, req *UpdateOrderRequest) (*models.SalesOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrder")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var products map[int64]models.Product
	if len(req.Items) > 0 {
		products, err = s.repo.GetProductsByIDs(ctx, productIDs(req.Items))
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to load products: %w", err))
		}
	}

	var (
		fields  []string
		changes []store.StockChange
	)
	now := s.now()

	order, err := s.repo.UpdateOrder(ctx, orderID, func(order *models.SalesOrder) ([]store.StockChange, error) {
		fields, changes = nil, nil
		var entries []models.EditEntry
		record := func(field string, oldValue, newValue interface{}) {
			fields = append(fields, field)
			entries = append(entries, models.EditEntry{
				Field:            field,
				OldValue:         oldValue,
				NewValue:         newValue,
				EditedBy:         actor.UserID,
				EditedByUsername: actor.Username,
				EditedAt:         now,
			})
		}

		if v := req.CustomerName; v != nil && *v != "" && *v != order.CustomerName {
			record("customer_name", order.CustomerName, *v)
			order.CustomerName = *v
		}
		if v := req.CustomerPhone; v != nil && *v != "" && *v != order.CustomerPhone {
			record("customer_phone", order.CustomerPhone, *v)
			order.CustomerPhone = *v
		}
		if v := req.Status; v != nil && *v != "" && *v != order.Status {
			record("status", order.Status, *v)
			order.Status = *v
		}

		if len(req.Items) > 0 {
			items, err := priceLines(order.Currency, order.ExchangeRate, req.Items, products)
			if err != nil {
				return nil, err
			}
			changes = editChanges(order, items, actor)

			oldItems, oldTotal := order.Items, order.TotalAmount
			order.Items = items
			order.Recalculate()
			record("items", oldItems, order.Items)
			record("total_amount", oldTotal, order.TotalAmount)
		}

		if len(entries) > 0 {
			order.EditHistory = order.EditHistory.Append(s.maxHistory, entries...)
		}
		return changes, nil
	})
	if err != nil {
		return nil, util.RecordError(span, translate(err))
	}

	if len(fields) == 0 {
		return order, nil
	}

	changes = store.AggregateChanges(changes)
	recordMovements(changes)
	s.inventory.AfterStockChange(ctx, changedProducts(changes)...)
	util.OrdersEditedTotal.Inc()

	s.logger.Info("Order updated",
		zap.Int64("order_id", order.ID),
		zap.Strings("fields", fields),
		zap.Int64("edited_by", actor.UserID))

	event := &models.OrderUpdatedEvent{
		BaseEvent:   models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderUpdated),
		OrderID:     order.ID,
		Fields:      fields,
		TotalAmount: order.TotalAmount,
	}
	if err := s.events.PublishOrderUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderUpdated event", zap.Error(err))
	}

	return order, nil
}

// editChanges moves stock by old minus new quantity per product: a larger
// replacement takes more stock, a smaller one gives it back.
func editChanges(order *models.SalesOrder, newItems models.OrderItems, actor models.Actor) []store.StockChange {
	notes := fmt.Sprintf("Order #%d edited", order.ID)
	changes := make([]store.StockChange, 0, len(order.Items)+len(newItems))
	for _, it := range order.Items {
		changes = append(changes, store.StockChange{
			ProductID: it.ProductID, Delta: it.Quantity, Type: models.StockTxOrderEdit, Notes: notes, UserID: actor.UserID,
		})
	}
	for _, it := range newItems {
		changes = append(changes, store.StockChange{
			ProductID: it.ProductID, Delta: -it.Quantity, Type: models.StockTxOrderEdit, Notes: notes, UserID: actor.UserID,
		})
	}
	return store.AggregateChanges(changes)
}

// DeleteOrder hard-deletes the order. Stock is not restored and returns or
// invoices pointing at it are left in place.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	order, err := s.repo.DeleteOrder(ctx, orderID)
	if err != nil {
		return util.RecordError(span, translate(err))
	}

	util.OrdersDeletedTotal.Inc()
	s.logger.Info("Order deleted", zap.Int64("order_id", orderID), zap.Int64("deleted_by", actor.UserID))

	event := &models.OrderDeletedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderDeleted),
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Currency:      order.Currency,
		ExchangeRate:  order.ExchangeRate,
		TotalAmount:   order.TotalAmount,
	}
	if err := s.events.PublishOrderDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDeleted event", zap.Error(err))
	}
	return nil
}

func itemData(items models.OrderItems) []models.OrderItemData {
	out := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		out = append(out, models.OrderItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return out
}
