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

const defaultRefundMethod = "cash"

// ReturnService manages return requests and their approval
type ReturnService struct {
	repo      store.Repository
	inventory *InventoryClient
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewReturnService creates a new return service
func NewReturnService(repo store.Repository, inventory *InventoryClient, events EventPublisher) *ReturnService {
	return &ReturnService{
		repo:      repo,
		inventory: inventory,
		events:    events,
		logger:    util.Named("returns"),
		now:       time.Now,
	}
}

// ReturnLineRequest is one product line to send back
type ReturnLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CreateReturnRequest represents a return request against an order
type CreateReturnRequest struct {
	OrderID      int64               `json:"order_id" validate:"required,gt=0"`
	Items        []ReturnLineRequest `json:"items" validate:"required,min=1,dive"`
	Reason       string              `json:"reason" validate:"max=500"`
	RefundMethod string              `json:"refund_method" validate:"max=50"`
}

// RejectReturnRequest carries the optional rejection reason
type RejectReturnRequest struct {
	Reason string `json:"rejection_reason" validate:"max=500"`
}

// lineQuantity sums every order line for a product and returns the first
// such line, or nil when the order has none.
func lineQuantity(order *models.SalesOrder, productID int64) (int, *models.OrderItem) {
	first := order.ItemIndex(productID)
	if first < 0 {
		return 0, nil
	}
	total := 0
	for _, it := range order.Items[first:] {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}
	return total, &order.Items[first]
}

// CreateReturn records a pending return. Each product's requested quantity
// must fit within what the order still holds for it; refunds use the
// order's unit price.
func (s *ReturnService) CreateReturn(ctx context.Context, req *CreateReturnRequest) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.CreateReturn")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, validationError("Return must have at least one item")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, util.RecordError(span, translate(err))
	}

	requested := make(map[int64]int, len(req.Items))
	var ids []int64
	for _, it := range req.Items {
		if _, seen := requested[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}

	ret := &models.Return{
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Currency:      order.Currency,
		Reason:        req.Reason,
		RefundMethod:  req.RefundMethod,
		Status:        models.ReturnStatusPending,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Username,
	}
	if ret.RefundMethod == "" {
		ret.RefundMethod = defaultRefundMethod
	}

	for _, id := range ids {
		qty := requested[id]
		available, line := lineQuantity(order, id)
		if line == nil {
			return nil, validationError("Product %d is not part of order %d", id, order.ID)
		}
		if qty > available {
			return nil, conflictError("Return quantity for %s (%d) exceeds the ordered quantity (%d)",
				line.ProductName, qty, available)
		}

		refund := line.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		ret.Items = append(ret.Items, models.ReturnItem{
			ProductID:    id,
			ProductName:  line.ProductName,
			Quantity:     qty,
			UnitPrice:    line.UnitPrice,
			RefundAmount: refund,
		})
		ret.TotalRefund = ret.TotalRefund.Add(refund)
	}

	if err := s.repo.CreateReturn(ctx, ret); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create return: %w", err))
	}

	util.ReturnsTotal.WithLabelValues("requested").Inc()
	s.logger.Info("Return requested",
		zap.Int64("return_id", ret.ID),
		zap.Int64("order_id", ret.OrderID),
		zap.String("total_refund", ret.TotalRefund.String()))
	return ret, nil
}

// GetReturn retrieves a return by ID
func (s *ReturnService) GetReturn(ctx context.Context, id int64) (*models.Return, error) {
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return ret, nil
}

// ListReturns returns one page of returns, newest first
func (s *ReturnService) ListReturns(ctx context.Context, filter store.ReturnFilter) ([]models.Return, int, error) {
	switch filter.Status {
	case "", models.ReturnStatusPending, models.ReturnStatusApproved, models.ReturnStatusRejected:
	default:
		return nil, 0, validationError("unknown return status %q", filter.Status)
	}
	return s.repo.ListReturns(ctx, filter)
}

// ApproveReturn restores stock and revises the order in one transaction.
// The bound is checked again against the order's current lines, which
// already reflect earlier approvals.
func (s *ReturnService) ApproveReturn(ctx context.Context, id int64) (*models.Return, *models.SalesOrder, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.ApproveReturn")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, nil, err
	}

	var changes []store.StockChange
	now := s.now()

	ret, order, err := s.repo.ApproveReturn(ctx, id, func(ret *models.Return, order *models.SalesOrder) ([]store.StockChange, error) {
		changes = nil
		for _, it := range ret.Items {
			if err := takeFromOrder(order, it); err != nil {
				return nil, err
			}
			changes = append(changes, store.StockChange{
				ProductID: it.ProductID,
				Delta:     it.Quantity,
				Type:      models.StockTxReturn,
				Notes:     "Return approved - Reason: " + ret.Reason,
				UserID:    actor.UserID,
			})
		}

		order.Recalculate()
		order.HasReturns = true
		order.TotalRefunded = order.TotalRefunded.Add(ret.TotalRefund)

		ret.Status = models.ReturnStatusApproved
		ret.ApprovedBy = actor.UserID
		ret.ApprovedAt = &now
		return changes, nil
	})
	if err != nil {
		if err = translate(err); errors.Is(err, ErrConflict) {
			util.ReturnsTotal.WithLabelValues("approve_conflict").Inc()
		}
		return nil, nil, util.RecordError(span, err)
	}

	changes = store.AggregateChanges(changes)
	recordMovements(changes)
	s.inventory.AfterStockChange(ctx, changedProducts(changes)...)

	refund, _ := ret.TotalRefund.Float64()
	util.ReturnsTotal.WithLabelValues("approved").Inc()
	util.RefundedAmountTotal.WithLabelValues(ret.Currency).Add(refund)

	s.logger.Info("Return approved",
		zap.Int64("return_id", ret.ID),
		zap.Int64("order_id", order.ID),
		zap.Int64("approved_by", actor.UserID))

	items := make([]models.OrderItemData, 0, len(ret.Items))
	for _, it := range ret.Items {
		items = append(items, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	event := &models.ReturnApprovedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeReturnApproved),
		ReturnID:      ret.ID,
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Currency:      order.Currency,
		ExchangeRate:  order.ExchangeRate,
		TotalRefund:   ret.TotalRefund,
		Items:         items,
	}
	if err := s.events.PublishReturnApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnApproved event", zap.Error(err))
	}

	return ret, order, nil
}

// takeFromOrder reduces the order's lines for the returned product, first
// line first, dropping lines that reach zero.
func takeFromOrder(order *models.SalesOrder, it models.ReturnItem) error {
	available, line := lineQuantity(order, it.ProductID)
	if line == nil {
		return conflictError("Product %s is no longer on order %d", it.ProductName, order.ID)
	}
	if it.Quantity > available {
		return conflictError("Return quantity for %s (%d) exceeds the remaining ordered quantity (%d)",
			it.ProductName, it.Quantity, available)
	}

	remaining := it.Quantity
	kept := order.Items[:0]
	for _, item := range order.Items {
		if item.ProductID == it.ProductID && remaining > 0 {
			take := remaining
			if take > item.Quantity {
				take = item.Quantity
			}
			remaining -= take
			item.ReturnedQuantity += take
			item.SetQuantity(item.Quantity - take)
			if item.Quantity == 0 {
				continue
			}
		}
		kept = append(kept, item)
	}
	order.Items = kept
	return nil
}

// RejectReturn closes a pending return without side effects
func (s *ReturnService) RejectReturn(ctx context.Context, id int64, req *RejectReturnRequest) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.RejectReturn")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ret, err := s.repo.RejectReturn(ctx, id, req.Reason, actor, s.now())
	if err != nil {
		return nil, util.RecordError(span, translate(err))
	}

	util.ReturnsTotal.WithLabelValues("rejected").Inc()
	s.logger.Info("Return rejected", zap.Int64("return_id", ret.ID), zap.Int64("rejected_by", actor.UserID))

	event := &models.ReturnRejectedEvent{
		BaseEvent: models.NewBaseEvent(uuid.New().String(), models.EventTypeReturnRejected),
		ReturnID:  ret.ID,
		OrderID:   ret.OrderID,
		Reason:    ret.RejectionReason,
	}
	if err := s.events.PublishReturnRejected(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnRejected event", zap.Error(err))
	}
	return ret, nil
}

// DeleteReturn removes a pending or rejected return. Approved returns stay,
// since deleting them would orphan the stock they restored.
func (s *ReturnService) DeleteReturn(ctx context.Context, id int64) error {
	if err := s.repo.DeleteReturn(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("Return deleted", zap.Int64("return_id", id))
	return nil
}
