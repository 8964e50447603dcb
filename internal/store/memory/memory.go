// Package memory is an in-process Repository used by tests and by
// STORE_DRIVER=memory. A single mutex serialises writers, which gives every
// multi-step mutation the same all-or-nothing behavior as the SQL store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"

	"github.com/shopspring/decimal"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	nextID map[string]int64

	products  map[int64]models.Product
	customers map[int64]models.Customer
	orders    map[int64]models.SalesOrder
	returns   map[int64]models.Return
	invoices  map[int64]models.Invoice
	expenses  map[int64]models.Expense
	users     map[int64]models.User
	stockLog  []models.StockTransaction
	processed map[string]string

	now func() time.Time
}

// New returns an empty store
func New() *Store {
	return &Store{
		nextID:    make(map[string]int64),
		products:  make(map[int64]models.Product),
		customers: make(map[int64]models.Customer),
		orders:    make(map[int64]models.SalesOrder),
		returns:   make(map[int64]models.Return),
		invoices:  make(map[int64]models.Invoice),
		expenses:  make(map[int64]models.Expense),
		users:     make(map[int64]models.User),
		processed: make(map[string]string),
		now:       time.Now,
	}
}

func (s *Store) id(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// applyStock validates every change before mutating anything
func (s *Store) applyStock(changes []store.StockChange, refType string, refID int64, skipMissing bool) error {
	next := make(map[int64]int)
	applied := make([]store.StockChange, 0, len(changes))
	for _, ch := range changes {
		if ch.Delta == 0 {
			continue
		}
		p, ok := s.products[ch.ProductID]
		if !ok {
			if skipMissing {
				continue
			}
			return fmt.Errorf("product %d: %w", ch.ProductID, store.ErrNotFound)
		}
		qty, seen := next[ch.ProductID]
		if !seen {
			qty = p.QuantityInStock
		}
		if qty+ch.Delta < 0 {
			return fmt.Errorf("product %d: %w", ch.ProductID, store.ErrInsufficientStock)
		}
		next[ch.ProductID] = qty + ch.Delta
		applied = append(applied, ch)
	}

	now := s.now()
	for _, ch := range applied {
		p := s.products[ch.ProductID]
		before := p.QuantityInStock
		p.QuantityInStock += ch.Delta
		p.StockVersion++
		p.UpdatedAt = now
		s.products[ch.ProductID] = p

		s.stockLog = append(s.stockLog, models.StockTransaction{
			ID:              s.id("stock"),
			ProductID:       ch.ProductID,
			TransactionType: ch.Type,
			Quantity:        ch.Delta,
			QuantityBefore:  before,
			QuantityAfter:   p.QuantityInStock,
			ReferenceType:   refType,
			ReferenceID:     refID,
			Notes:           ch.Notes,
			UserID:          ch.UserID,
			CreatedAt:       now,
		})
	}
	return nil
}

// ListStockTransactions returns the newest movements for a product
func (s *Store) ListStockTransactions(ctx context.Context, productID int64, limit int) ([]models.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.StockTransaction
	for i := len(s.stockLog) - 1; i >= 0; i-- {
		if s.stockLog[i].ProductID != productID {
			continue
		}
		out = append(out, s.stockLog[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[eventID]; !ok {
		s.processed[eventID] = eventType
	}
	return nil
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func paginate[T any](rows []T, p store.Page) []T {
	if p.Limit <= 0 {
		return rows
	}
	start := p.Offset()
	if start >= len(rows) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// newestFirst sorts by timestamp descending, then id descending
func newestFirst[T any](rows []T, at func(T) time.Time, id func(T) int64) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, tj := at(rows[i]), at(rows[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return id(rows[i]) > id(rows[j])
	})
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("sku %s: %w", p.SKU, store.ErrDuplicate)
		}
	}
	now := s.now()
	p.ID = s.id("product")
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = *p
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Product
	for _, p := range s.products {
		if f.Search != "" && !contains(p.Name, f.Search) && !contains(p.SKU, f.Search) && !contains(p.Description, f.Search) {
			continue
		}
		rows = append(rows, p)
	}
	newestFirst(rows, func(p models.Product) time.Time { return p.CreatedAt }, func(p models.Product) int64 { return p.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("product %d: %w", p.ID, store.ErrNotFound)
	}
	for _, existing := range s.products {
		if existing.ID != p.ID && existing.SKU == p.SKU {
			return fmt.Errorf("sku %s: %w", p.SKU, store.ErrDuplicate)
		}
	}

	now := s.now()
	if delta := p.QuantityInStock - current.QuantityInStock; delta != 0 {
		s.stockLog = append(s.stockLog, models.StockTransaction{
			ID:              s.id("stock"),
			ProductID:       p.ID,
			TransactionType: models.StockTxAdjustment,
			Quantity:        delta,
			QuantityBefore:  current.QuantityInStock,
			QuantityAfter:   p.QuantityInStock,
			ReferenceType:   "product",
			ReferenceID:     p.ID,
			Notes:           "Manual stock update",
			UserID:          actorID,
			CreatedAt:       now,
		})
	}
	p.CreatedAt = current.CreatedAt
	p.CreatedBy = current.CreatedBy
	p.StockVersion = current.StockVersion + 1
	p.UpdatedAt = now
	s.products[p.ID] = *p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	delete(s.products, id)
	return nil
}

// Customers

func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if existing.Phone == c.Phone {
			return fmt.Errorf("phone %s: %w", c.Phone, store.ErrDuplicate)
		}
	}
	now := s.now()
	c.ID = s.id("customer")
	c.CreatedAt, c.UpdatedAt = now, now
	s.customers[c.ID] = *c
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, f store.CustomerFilter) ([]models.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Customer
	for _, c := range s.customers {
		if f.Search != "" && !contains(c.Name, f.Search) && !contains(c.Phone, f.Search) && !contains(c.Email, f.Search) {
			continue
		}
		rows = append(rows, c)
	}
	newestFirst(rows, func(c models.Customer) time.Time { return c.CreatedAt }, func(c models.Customer) int64 { return c.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.customers[c.ID]
	if !ok {
		return fmt.Errorf("customer %d: %w", c.ID, store.ErrNotFound)
	}
	for _, existing := range s.customers {
		if existing.ID != c.ID && existing.Phone == c.Phone {
			return fmt.Errorf("phone %s: %w", c.Phone, store.ErrDuplicate)
		}
	}
	current.Name, current.Phone, current.Email, current.Address = c.Name, c.Phone, c.Email, c.Address
	current.UpdatedAt = s.now()
	s.customers[c.ID] = current
	*c = current
	return nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return fmt.Errorf("customer %d: %w", id, store.ErrNotFound)
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) AdjustCustomerTotals(ctx context.Context, phone string, purchases int, spent decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.customers {
		if c.Phone != phone {
			continue
		}
		c.TotalPurchases += purchases
		if c.TotalPurchases < 0 {
			c.TotalPurchases = 0
		}
		c.TotalSpent = decimal.Max(c.TotalSpent.Add(spent), decimal.Zero)
		c.UpdatedAt = s.now()
		s.customers[id] = c
	}
	return nil
}
