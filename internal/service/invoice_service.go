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

const invoiceNumberAttempts = 3

// InvoiceService generates billing documents. It never touches stock.
type InvoiceService struct {
	repo         store.Repository
	events       EventPublisher
	exchangeRate decimal.Decimal
	logger       *zap.Logger
	now          func() time.Time
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(repo store.Repository, events EventPublisher, exchangeRate decimal.Decimal) *InvoiceService {
	return &InvoiceService{
		repo:         repo,
		events:       events,
		exchangeRate: exchangeRate,
		logger:       util.Named("invoices"),
		now:          time.Now,
	}
}

// GenerateInvoiceRequest selects one of two modes: OrderID copies an
// existing order, otherwise the customer fields and Items price a new
// document directly.
type GenerateInvoiceRequest struct {
	OrderID       *int64        `json:"order_id" validate:"omitempty,gt=0"`
	CustomerName  string        `json:"customer_name" validate:"max=200"`
	CustomerPhone string        `json:"customer_phone" validate:"max=50"`
	Currency      string        `json:"currency" validate:"omitempty,oneof=UGX USD"`
	Items         []LineRequest `json:"items" validate:"omitempty,dive"`
	Notes         string        `json:"notes" validate:"max=1000"`
}

// UpdateInvoiceRequest edits an invoice. Items may only be replaced on
// direct invoices and are re-priced at the invoice's own rate.
type UpdateInvoiceRequest struct {
	CustomerName  *string       `json:"customer_name" validate:"omitempty,max=200"`
	CustomerPhone *string       `json:"customer_phone" validate:"omitempty,max=50"`
	Notes         *string       `json:"notes" validate:"omitempty,max=1000"`
	Status        *string       `json:"status" validate:"omitempty,oneof=generated sent paid cancelled"`
	Items         []LineRequest `json:"items" validate:"omitempty,dive"`
}

// GenerateInvoice creates an invoice from an order or directly from products
func (s *InvoiceService) GenerateInvoice(ctx context.Context, req *GenerateInvoiceRequest) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceService.GenerateInvoice")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		invoice *models.Invoice
		mode    string
	)
	switch {
	case req.OrderID != nil && len(req.Items) > 0:
		return nil, validationError("Provide either order_id or items, not both")
	case req.OrderID != nil:
		mode = "order"
		invoice, err = s.fromOrder(ctx, *req.OrderID)
	default:
		mode = "direct"
		invoice, err = s.direct(ctx, req)
	}
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	invoice.Notes = req.Notes
	invoice.Status = models.InvoiceStatusGenerated
	invoice.CreatedBy = actor.UserID

	if err := s.insertNumbered(ctx, invoice); err != nil {
		return nil, util.RecordError(span, err)
	}

	util.InvoicesGeneratedTotal.WithLabelValues(mode).Inc()
	s.logger.Info("Invoice generated",
		zap.Int64("invoice_id", invoice.ID),
		zap.String("number", invoice.InvoiceNumber),
		zap.String("mode", mode))

	event := &models.InvoiceGeneratedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeInvoiceGenerated),
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		OrderID:       invoice.OrderID,
		Currency:      invoice.Currency,
		TotalAmount:   invoice.TotalAmount,
	}
	if err := s.events.PublishInvoiceGenerated(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoiceGenerated event", zap.Error(err))
	}
	return invoice, nil
}

// fromOrder copies the order as priced, including its currency and rate
func (s *InvoiceService) fromOrder(ctx context.Context, orderID int64) (*models.Invoice, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	id := order.ID
	return &models.Invoice{
		OrderID:       &id,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Items:         order.Items.Clone(),
		TotalAmount:   order.TotalAmount,
		TotalProfit:   order.TotalProfit,
		Currency:      order.Currency,
		ExchangeRate:  order.ExchangeRate,
	}, nil
}

// direct prices the lines exactly like order creation, without a stock check
func (s *InvoiceService) direct(ctx context.Context, req *GenerateInvoiceRequest) (*models.Invoice, error) {
	if req.CustomerName == "" || req.CustomerPhone == "" || len(req.Items) == 0 {
		return nil, validationError("Customer name, phone, and items are required for direct invoice creation")
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs(req.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	items, err := priceLines(currency, s.exchangeRate, req.Items, products)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         items,
		Currency:      currency,
		ExchangeRate:  s.exchangeRate,
	}
	invoice.TotalAmount, invoice.TotalProfit = items.Totals()
	return invoice, nil
}

// insertNumbered assigns INV-<last 6 digits of the ms clock>-<count+1>.
// The number is not reserved, so a collision with a concurrent insert is
// retried with a fresh count.
func (s *InvoiceService) insertNumbered(ctx context.Context, invoice *models.Invoice) error {
	var err error
	for attempt := 0; attempt < invoiceNumberAttempts; attempt++ {
		var count int
		count, err = s.repo.CountInvoices(ctx)
		if err != nil {
			return fmt.Errorf("failed to count invoices: %w", err)
		}
		invoice.InvoiceNumber = invoiceNumber(s.now(), count+1+attempt)

		err = s.repo.CreateInvoice(ctx, invoice)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
		s.logger.Warn("Invoice number collision, retrying", zap.String("number", invoice.InvoiceNumber))
	}
	if err != nil {
		return translate(fmt.Errorf("failed to create invoice: %w", err))
	}
	return nil
}

func invoiceNumber(at time.Time, seq int) string {
	return fmt.Sprintf("INV-%06d-%d", at.UnixMilli()%1000000, seq)
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return invoice, nil
}

// ListInvoices searches by number and customer
func (s *InvoiceService) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, int, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// UpdateInvoice applies the non-empty fields
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id int64, req *UpdateInvoiceRequest) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceService.UpdateInvoice")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	if v := req.CustomerName; v != nil && *v != "" {
		invoice.CustomerName = *v
	}
	if v := req.CustomerPhone; v != nil && *v != "" {
		invoice.CustomerPhone = *v
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}
	if v := req.Status; v != nil && *v != "" {
		invoice.Status = *v
	}

	if len(req.Items) > 0 {
		if invoice.OrderID != nil {
			return nil, validationError("Items of an invoice generated from an order cannot be edited")
		}
		products, err := s.repo.GetProductsByIDs(ctx, productIDs(req.Items))
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to load products: %w", err))
		}
		items, err := priceLines(invoice.Currency, invoice.ExchangeRate, req.Items, products)
		if err != nil {
			return nil, err
		}
		invoice.Items = items
		invoice.TotalAmount, invoice.TotalProfit = items.Totals()
	}

	if err := s.repo.UpdateInvoice(ctx, invoice); err != nil {
		return nil, util.RecordError(span, translate(err))
	}
	return invoice, nil
}

// DeleteInvoice hard-deletes an invoice
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id int64) error {
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("Invoice deleted", zap.Int64("invoice_id", id))
	return nil
}
