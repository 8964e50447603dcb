package store

import (
	"context"
	"fmt"
	"time"

	"retail-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateReturn inserts a pending return request
func (s *Store) CreateReturn(ctx context.Context, r *models.Return) error {
	query := `
		INSERT INTO returns
			(order_id, customer_name, customer_phone, items, total_refund, currency, reason,
			 refund_method, status, created_by, created_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, r, query,
		r.OrderID, r.CustomerName, r.CustomerPhone, r.Items, r.TotalRefund, r.Currency, r.Reason,
		r.RefundMethod, r.Status, r.CreatedBy, r.CreatedByName)
}

// GetReturn retrieves a return by ID
func (s *Store) GetReturn(ctx context.Context, id int64) (*models.Return, error) {
	var r models.Return
	if err := s.db.GetContext(ctx, &r, "SELECT * FROM returns WHERE id = $1", id); err != nil {
		return nil, notFound(err, "return", id)
	}
	return &r, nil
}

// ListReturns filters by status and order
func (s *Store) ListReturns(ctx context.Context, f ReturnFilter) ([]models.Return, int, error) {
	where := "WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR order_id = $2)"

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM returns "+where, f.Status, f.OrderID); err != nil {
		return nil, 0, err
	}

	var returns []models.Return
	err := s.db.SelectContext(ctx, &returns,
		"SELECT * FROM returns "+where+" ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4",
		f.Status, f.OrderID, limitArg(f.Limit), f.Offset())
	return returns, total, err
}

// ApproveReturn locks the pending return and its order, lets apply revise
// both, restores stock and saves everything in one transaction.
func (s *Store) ApproveReturn(ctx context.Context, id int64, apply ReturnApplier) (*models.Return, *models.SalesOrder, error) {
	var (
		ret   models.Return
		order models.SalesOrder
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &ret, "SELECT * FROM returns WHERE id = $1 FOR UPDATE", id); err != nil {
			return notFound(err, "return", id)
		}
		if ret.Status != models.ReturnStatusPending {
			return fmt.Errorf("return %d is %s: %w", id, ret.Status, ErrInvalidState)
		}

		err := tx.GetContext(ctx, &order, "SELECT * FROM sales_orders WHERE id = $1 FOR UPDATE", ret.OrderID)
		if err != nil {
			return notFound(err, "order", ret.OrderID)
		}

		changes, err := apply(&ret, &order)
		if err != nil {
			return err
		}

		if err := applyStockChanges(ctx, tx, AggregateChanges(changes), "return", ret.ID, true); err != nil {
			return err
		}
		if err := saveOrder(ctx, tx, &order); err != nil {
			return err
		}

		return tx.GetContext(ctx, &ret.UpdatedAt, `
			UPDATE returns SET status = $1, approved_by = $2, approved_at = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING updated_at`,
			ret.Status, ret.ApprovedBy, ret.ApprovedAt, ret.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	return &ret, &order, nil
}

// RejectReturn moves a pending return to rejected
func (s *Store) RejectReturn(ctx context.Context, id int64, reason string, actor models.Actor, at time.Time) (*models.Return, error) {
	var ret models.Return
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &ret, "SELECT * FROM returns WHERE id = $1 FOR UPDATE", id); err != nil {
			return notFound(err, "return", id)
		}
		if ret.Status != models.ReturnStatusPending {
			return fmt.Errorf("return %d is %s: %w", id, ret.Status, ErrInvalidState)
		}

		ret.Status = models.ReturnStatusRejected
		ret.RejectionReason = reason
		ret.RejectedBy = actor.UserID
		ret.RejectedAt = &at

		return tx.GetContext(ctx, &ret.UpdatedAt, `
			UPDATE returns SET status = $1, rejection_reason = $2, rejected_by = $3, rejected_at = $4, updated_at = NOW()
			WHERE id = $5
			RETURNING updated_at`,
			ret.Status, ret.RejectionReason, ret.RejectedBy, ret.RejectedAt, ret.ID)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// DeleteReturn removes a pending or rejected return. Approved returns have
// already moved stock and are kept.
func (s *Store) DeleteReturn(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		if err := tx.GetContext(ctx, &status, "SELECT status FROM returns WHERE id = $1 FOR UPDATE", id); err != nil {
			return notFound(err, "return", id)
		}
		if status == models.ReturnStatusApproved {
			return fmt.Errorf("return %d is approved: %w", id, ErrInvalidState)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM returns WHERE id = $1", id)
		return err
	})
}
