package memory

import (
	"context"
	"fmt"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
)

func cloneOrder(o models.SalesOrder) models.SalesOrder {
	o.Items = o.Items.Clone()
	o.EditHistory = o.EditHistory.Clone()
	return o
}

func cloneReturn(r models.Return) models.Return {
	r.Items = r.Items.Clone()
	return r
}

func cloneInvoice(inv models.Invoice) models.Invoice {
	inv.Items = inv.Items.Clone()
	return inv
}

func (s *Store) CreateOrder(ctx context.Context, order *models.SalesOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.IdempotencyKey != "" {
		for _, existing := range s.orders {
			if existing.IdempotencyKey == order.IdempotencyKey {
				return fmt.Errorf("idempotency key %s: %w", order.IdempotencyKey, store.ErrDuplicate)
			}
		}
	}

	id := s.nextID["order"] + 1
	if err := s.applyStock(store.SaleChanges(order), "order", id, false); err != nil {
		return err
	}
	s.nextID["order"] = id

	now := s.now()
	order.ID = id
	order.CreatedAt, order.UpdatedAt = now, now
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	s.orders[id] = cloneOrder(*order)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.SalesOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.SalesOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if key != "" && o.IdempotencyKey == key {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.SalesOrder, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.SalesOrder
	for _, o := range s.orders {
		if f.Search != "" && !contains(o.CustomerName, f.Search) && !contains(o.CustomerPhone, f.Search) && !contains(o.Status, f.Search) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerPhone != "" && o.CustomerPhone != f.CustomerPhone {
			continue
		}
		if f.CustomerName != "" && o.CustomerName != f.CustomerName {
			continue
		}
		if !inWindow(o.OrderDate, f.From, f.To) {
			continue
		}
		rows = append(rows, cloneOrder(o))
	}
	newestFirst(rows, func(o models.SalesOrder) time.Time { return o.OrderDate }, func(o models.SalesOrder) int64 { return o.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) UpdateOrder(ctx context.Context, id int64, mutate store.OrderMutator) (*models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	order := cloneOrder(current)

	changes, err := mutate(&order)
	if err != nil {
		return nil, err
	}
	if err := s.applyStock(store.AggregateChanges(changes), "order", id, true); err != nil {
		return nil, err
	}

	order.UpdatedAt = s.now()
	s.orders[id] = cloneOrder(order)
	return &order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) (*models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	delete(s.orders, id)
	return &o, nil
}

// Returns

func (s *Store) CreateReturn(ctx context.Context, r *models.Return) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r.ID = s.id("return")
	r.CreatedAt, r.UpdatedAt = now, now
	s.returns[r.ID] = cloneReturn(*r)
	return nil
}

func (s *Store) GetReturn(ctx context.Context, id int64) (*models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.returns[id]
	if !ok {
		return nil, fmt.Errorf("return %d: %w", id, store.ErrNotFound)
	}
	r = cloneReturn(r)
	return &r, nil
}

func (s *Store) ListReturns(ctx context.Context, f store.ReturnFilter) ([]models.Return, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Return
	for _, r := range s.returns {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.OrderID != 0 && r.OrderID != f.OrderID {
			continue
		}
		rows = append(rows, cloneReturn(r))
	}
	newestFirst(rows, func(r models.Return) time.Time { return r.CreatedAt }, func(r models.Return) int64 { return r.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) ApproveReturn(ctx context.Context, id int64, apply store.ReturnApplier) (*models.Return, *models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.returns[id]
	if !ok {
		return nil, nil, fmt.Errorf("return %d: %w", id, store.ErrNotFound)
	}
	if current.Status != models.ReturnStatusPending {
		return nil, nil, fmt.Errorf("return %d is %s: %w", id, current.Status, store.ErrInvalidState)
	}
	storedOrder, ok := s.orders[current.OrderID]
	if !ok {
		return nil, nil, fmt.Errorf("order %d: %w", current.OrderID, store.ErrNotFound)
	}

	ret := cloneReturn(current)
	order := cloneOrder(storedOrder)
	changes, err := apply(&ret, &order)
	if err != nil {
		return nil, nil, err
	}
	if err := s.applyStock(store.AggregateChanges(changes), "return", id, true); err != nil {
		return nil, nil, err
	}

	now := s.now()
	order.UpdatedAt = now
	ret.UpdatedAt = now
	s.orders[order.ID] = cloneOrder(order)
	s.returns[id] = cloneReturn(ret)
	return &ret, &order, nil
}

func (s *Store) RejectReturn(ctx context.Context, id int64, reason string, actor models.Actor, at time.Time) (*models.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.returns[id]
	if !ok {
		return nil, fmt.Errorf("return %d: %w", id, store.ErrNotFound)
	}
	if r.Status != models.ReturnStatusPending {
		return nil, fmt.Errorf("return %d is %s: %w", id, r.Status, store.ErrInvalidState)
	}

	r.Status = models.ReturnStatusRejected
	r.RejectionReason = reason
	r.RejectedBy = actor.UserID
	r.RejectedAt = &at
	r.UpdatedAt = s.now()
	s.returns[id] = r

	r = cloneReturn(r)
	return &r, nil
}

func (s *Store) DeleteReturn(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.returns[id]
	if !ok {
		return fmt.Errorf("return %d: %w", id, store.ErrNotFound)
	}
	if r.Status == models.ReturnStatusApproved {
		return fmt.Errorf("return %d is approved: %w", id, store.ErrInvalidState)
	}
	delete(s.returns, id)
	return nil
}

// Invoices

func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.invoices), nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, store.ErrDuplicate)
		}
	}
	now := s.now()
	inv.ID = s.id("invoice")
	inv.CreatedAt, inv.UpdatedAt = now, now
	s.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, store.ErrNotFound)
	}
	inv = cloneInvoice(inv)
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Invoice
	for _, inv := range s.invoices {
		if f.Search != "" && !contains(inv.InvoiceNumber, f.Search) && !contains(inv.CustomerName, f.Search) && !contains(inv.CustomerPhone, f.Search) {
			continue
		}
		if f.CustomerPhone != "" && inv.CustomerPhone != f.CustomerPhone {
			continue
		}
		if f.CustomerName != "" && inv.CustomerName != f.CustomerName {
			continue
		}
		rows = append(rows, cloneInvoice(inv))
	}
	newestFirst(rows, func(inv models.Invoice) time.Time { return inv.CreatedAt }, func(inv models.Invoice) int64 { return inv.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("invoice %d: %w", inv.ID, store.ErrNotFound)
	}
	current.CustomerName, current.CustomerPhone = inv.CustomerName, inv.CustomerPhone
	current.Items = inv.Items.Clone()
	current.TotalAmount, current.TotalProfit = inv.TotalAmount, inv.TotalProfit
	current.Status, current.Notes = inv.Status, inv.Notes
	current.UpdatedAt = s.now()
	s.invoices[inv.ID] = current
	inv.UpdatedAt = current.UpdatedAt
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return fmt.Errorf("invoice %d: %w", id, store.ErrNotFound)
	}
	delete(s.invoices, id)
	return nil
}
