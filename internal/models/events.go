package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderUpdated     = "ORDER_UPDATED"
	EventTypeOrderDeleted     = "ORDER_DELETED"
	EventTypeReturnApproved   = "RETURN_APPROVED"
	EventTypeReturnRejected   = "RETURN_REJECTED"
	EventTypeStockLow         = "STOCK_LOW"
	EventTypeInvoiceGenerated = "INVOICE_GENERATED"
	EventTypeExpenseRecorded  = "EXPENSE_RECORDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is placed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// OrderUpdatedEvent published after an order edit
type OrderUpdatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	Fields      []string        `json:"fields"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderDeletedEvent published after an order is removed
type OrderDeletedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// ReturnApprovedEvent published when stock is restored for a return
type ReturnApprovedEvent struct {
	BaseEvent
	ReturnID      int64           `json:"return_id"`
	OrderID       int64           `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	TotalRefund   decimal.Decimal `json:"total_refund"`
	Items         []OrderItemData `json:"items"`
}

// ReturnRejectedEvent published when a return is rejected
type ReturnRejectedEvent struct {
	BaseEvent
	ReturnID int64  `json:"return_id"`
	OrderID  int64  `json:"order_id"`
	Reason   string `json:"reason"`
}

// StockLowEvent published when a product drops to its threshold
type StockLowEvent struct {
	BaseEvent
	ProductID  int64  `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Threshold  int    `json:"threshold"`
	AlertLevel string `json:"alert_level"`
}

// InvoiceGeneratedEvent published for every new invoice
type InvoiceGeneratedEvent struct {
	BaseEvent
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	OrderID       *int64          `json:"order_id,omitempty"`
	Currency      string          `json:"currency"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// ExpenseRecordedEvent published for every new expense
type ExpenseRecordedEvent struct {
	BaseEvent
	ExpenseID int64           `json:"expense_id"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventID, eventType string) BaseEvent {
	return BaseEvent{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// Type returns the event type, letting transports label a message without
// knowing its concrete payload
func (e BaseEvent) Type() string {
	return e.EventType
}
