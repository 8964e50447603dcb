package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const topProductsLimit = 5

// CustomerService manages the customer directory
type CustomerService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(repo store.Repository) *CustomerService {
	return &CustomerService{repo: repo, logger: util.Named("customers")}
}

// CustomerRequest holds the editable customer fields
type CustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}

// CreateCustomer adds a customer; the phone number must be unused
func (s *CustomerService) CreateCustomer(ctx context.Context, req *CustomerRequest) (*models.Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	customer := &models.Customer{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return nil, translate(fmt.Errorf("failed to create customer: %w", err))
	}

	s.logger.Info("Customer created", zap.Int64("customer_id", customer.ID))
	return customer, nil
}

// GetCustomer retrieves a customer by ID
func (s *CustomerService) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return customer, nil
}

// ListCustomers searches name, phone and email
func (s *CustomerService) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]models.Customer, int, error) {
	return s.repo.ListCustomers(ctx, filter)
}

// UpdateCustomer replaces the contact fields; totals are untouched
func (s *CustomerService) UpdateCustomer(ctx context.Context, id int64, req *CustomerRequest) (*models.Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	customer := &models.Customer{ID: id, Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address}
	if err := s.repo.UpdateCustomer(ctx, customer); err != nil {
		return nil, translate(fmt.Errorf("failed to update customer: %w", err))
	}
	return s.GetCustomer(ctx, id)
}

// DeleteCustomer removes the record; orders keep their copied contact
func (s *CustomerService) DeleteCustomer(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("Customer deleted", zap.Int64("customer_id", id))
	return nil
}

// ProductSales is a per-product quantity and revenue rollup
type ProductSales struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// PurchaseStats summarises a customer's orders. Money is in UGX at each
// order's own snapshot rate.
type PurchaseStats struct {
	TotalOrders       int             `json:"total_orders"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	TotalInvoices     int             `json:"total_invoices"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	LastPurchase      *time.Time      `json:"last_purchase"`
}

// PurchaseHistory is everything a customer has bought or been billed for
type PurchaseHistory struct {
	Customer    *models.Customer    `json:"customer"`
	Orders      []models.SalesOrder `json:"orders"`
	Invoices    []models.Invoice    `json:"invoices"`
	Stats       PurchaseStats       `json:"stats"`
	TopProducts []ProductSales      `json:"top_products"`
}

// PurchaseHistory matches orders and invoices by phone, or by name when
// the customer has no phone.
func (s *CustomerService) PurchaseHistory(ctx context.Context, id int64) (*PurchaseHistory, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.PurchaseHistory")
	defer span.End()

	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	orderFilter := store.OrderFilter{CustomerPhone: customer.Phone}
	invoiceFilter := store.InvoiceFilter{CustomerPhone: customer.Phone}
	if customer.Phone == "" {
		orderFilter = store.OrderFilter{CustomerName: customer.Name}
		invoiceFilter = store.InvoiceFilter{CustomerName: customer.Name}
	}

	orders, _, err := s.repo.ListOrders(ctx, orderFilter)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	invoices, _, err := s.repo.ListInvoices(ctx, invoiceFilter)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	history := &PurchaseHistory{
		Customer:    customer,
		Orders:      orders,
		Invoices:    invoices,
		TopProducts: []ProductSales{},
	}
	history.Stats.TotalOrders = len(orders)
	history.Stats.TotalInvoices = len(invoices)

	for i := range orders {
		o := &orders[i]
		history.Stats.TotalSpent = history.Stats.TotalSpent.Add(ToUGX(o.TotalAmount, o.Currency, o.ExchangeRate))
		if last := history.Stats.LastPurchase; last == nil || o.OrderDate.After(*last) {
			at := o.OrderDate
			history.Stats.LastPurchase = &at
		}
	}
	history.Stats.TotalSpent = history.Stats.TotalSpent.Round(2)
	if len(orders) > 0 {
		history.Stats.AverageOrderValue = history.Stats.TotalSpent.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}

	top, err := s.topProducts(ctx, orders)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	history.TopProducts = top
	return history, nil
}

func (s *CustomerService) topProducts(ctx context.Context, orders []models.SalesOrder) ([]ProductSales, error) {
	rollup := rollupProducts(orders, nil)
	if len(rollup) == 0 {
		return []ProductSales{}, nil
	}

	ids := make([]int64, 0, len(rollup))
	for id := range rollup {
		ids = append(ids, id)
	}
	existing, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return topSellers(rollup, existing, topProductsLimit), nil
}

// rollupProducts sums quantity and UGX revenue per product. A nil convert
// uses each order's snapshot rate.
func rollupProducts(orders []models.SalesOrder, convert func(o *models.SalesOrder, amount decimal.Decimal) decimal.Decimal) map[int64]*ProductSales {
	if convert == nil {
		convert = func(o *models.SalesOrder, amount decimal.Decimal) decimal.Decimal {
			return ToUGX(amount, o.Currency, o.ExchangeRate)
		}
	}
	out := make(map[int64]*ProductSales)
	for i := range orders {
		o := &orders[i]
		for _, it := range o.Items {
			ps, ok := out[it.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: it.ProductID, ProductName: it.ProductName}
				out[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(convert(o, it.ItemTotal))
		}
	}
	return out
}

// topSellers keeps products that still exist and orders them by quantity
func topSellers(rollup map[int64]*ProductSales, existing map[int64]models.Product, limit int) []ProductSales {
	out := make([]ProductSales, 0, len(rollup))
	for id, ps := range rollup {
		p, ok := existing[id]
		if !ok {
			continue
		}
		row := *ps
		row.ProductName = p.Name
		row.Revenue = row.Revenue.Round(2)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
