package models

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Currencies
const (
	CurrencyUGX = "UGX"
	CurrencyUSD = "USD"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSales   = "sales"
	RoleViewer  = "viewer"
)

// ValidRoles lists every assignable role
var ValidRoles = []string{RoleAdmin, RoleManager, RoleSales, RoleViewer}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// Return statuses
const (
	ReturnStatusPending  = "pending"
	ReturnStatusApproved = "approved"
	ReturnStatusRejected = "rejected"
)

// Invoice statuses
const (
	InvoiceStatusGenerated = "generated"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Stock transaction types
const (
	StockTxSale       = "sale"
	StockTxReturn     = "return"
	StockTxAdjustment = "adjustment"
	StockTxOrderEdit  = "order_edit"
)

// DefaultLowStockThreshold applies when a product is created without one
const DefaultLowStockThreshold = 10

// Actor identifies the authenticated user performing an operation
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Product represents a sellable catalog item. Prices are in UGX.
type Product struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	SKU               string          `db:"sku" json:"sku"`
	Description       string          `db:"description" json:"description"`
	Category          string          `db:"category" json:"category"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unit_price"`
	CostPrice         decimal.Decimal `db:"cost_price" json:"cost_price"`
	Profit            decimal.Decimal `db:"profit" json:"profit"`
	ProfitMargin      decimal.Decimal `db:"profit_margin" json:"profit_margin"`
	QuantityInStock   int             `db:"quantity_in_stock" json:"quantity_in_stock"`
	LowStockThreshold int             `db:"low_stock_threshold" json:"low_stock_threshold"`
	StockVersion      int64           `db:"stock_version" json:"-"`
	CreatedBy         int64           `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	IsLowStock        bool            `db:"-" json:"is_low_stock"`
}

// Derive recomputes profit, margin and the low-stock flag
func (p *Product) Derive() {
	p.Profit = p.UnitPrice.Sub(p.CostPrice)
	p.ProfitMargin = Margin(p.Profit, p.UnitPrice)
	p.IsLowStock = p.QuantityInStock <= p.LowStockThreshold
}

// Margin returns profit/revenue*100 rounded to 2 places, 0 when revenue is 0
func Margin(profit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return profit.Div(revenue).Mul(decimal.NewFromInt(100)).Round(2)
}

// Customer is a buyer contact record. Totals are best-effort caches.
type Customer struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Phone          string          `db:"phone" json:"phone"`
	Email          string          `db:"email" json:"email"`
	Address        string          `db:"address" json:"address"`
	TotalPurchases int             `db:"total_purchases" json:"total_purchases"`
	TotalSpent     decimal.Decimal `db:"total_spent" json:"total_spent"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// SalesOrder is a completed or pending sale with embedded line items
type SalesOrder struct {
	ID             int64           `db:"id" json:"id"`
	CustomerName   string          `db:"customer_name" json:"customer_name"`
	CustomerPhone  string          `db:"customer_phone" json:"customer_phone"`
	OrderDate      time.Time       `db:"order_date" json:"order_date"`
	Currency       string          `db:"currency" json:"currency"`
	ExchangeRate   decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	Status         string          `db:"status" json:"status"`
	Items          OrderItems      `db:"items" json:"items"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	TotalProfit    decimal.Decimal `db:"total_profit" json:"total_profit"`
	HasReturns     bool            `db:"has_returns" json:"has_returns"`
	TotalRefunded  decimal.Decimal `db:"total_refunded" json:"total_refunded"`
	EditHistory    EditHistory     `db:"edit_history" json:"edit_history"`
	ServedBy       int64           `db:"served_by" json:"served_by"`
	ServedByName   string          `db:"served_by_name" json:"served_by_name"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Recalculate sets the order totals to the sums over its current items
func (o *SalesOrder) Recalculate() {
	o.TotalAmount, o.TotalProfit = o.Items.Totals()
}

// ItemIndex returns the index of the first line for productID, or -1
func (o *SalesOrder) ItemIndex(productID int64) int {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// OrderItem is a priced line within an order or invoice
type OrderItem struct {
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	ItemTotal        decimal.Decimal `json:"item_total"`
	ItemProfit       decimal.Decimal `json:"item_profit"`
	ReturnedQuantity int             `json:"returned_quantity,omitempty"`
	CustomPriceUsed  bool            `json:"custom_price_used"`
}

// SetQuantity updates the quantity and recomputes total and profit
func (it *OrderItem) SetQuantity(qty int) {
	q := decimal.NewFromInt(int64(qty))
	it.Quantity = qty
	it.ItemTotal = it.UnitPrice.Mul(q)
	it.ItemProfit = it.UnitPrice.Sub(it.CostPrice).Mul(q)
}

// EditEntry records one changed field of an order
type EditEntry struct {
	Field            string      `json:"field"`
	OldValue         interface{} `json:"old_value"`
	NewValue         interface{} `json:"new_value"`
	EditedBy         int64       `json:"edited_by_user_id"`
	EditedByUsername string      `json:"edited_by_username"`
	EditedAt         time.Time   `json:"edited_at"`
}

// Return is a request to send order lines back
type Return struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	Items           ReturnItems     `db:"items" json:"items"`
	TotalRefund     decimal.Decimal `db:"total_refund" json:"total_refund"`
	Currency        string          `db:"currency" json:"currency"`
	Reason          string          `db:"reason" json:"reason"`
	RefundMethod    string          `db:"refund_method" json:"refund_method"`
	Status          string          `db:"status" json:"status"`
	CreatedBy       int64           `db:"created_by" json:"created_by"`
	CreatedByName   string          `db:"created_by_name" json:"created_by_name"`
	ApprovedBy      int64           `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy      int64           `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ReturnItem is one returned product line
type ReturnItem struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// Invoice is a billing document, independent of stock
type Invoice struct {
	ID            int64           `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	OrderID       *int64          `db:"order_id" json:"order_id,omitempty"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	CustomerPhone string          `db:"customer_phone" json:"customer_phone"`
	Items         OrderItems      `db:"items" json:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	TotalProfit   decimal.Decimal `db:"total_profit" json:"total_profit"`
	Currency      string          `db:"currency" json:"currency"`
	ExchangeRate  decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	Status        string          `db:"status" json:"status"`
	Notes         string          `db:"notes" json:"notes"`
	CreatedBy     int64           `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Expense is a standalone cost record
type Expense struct {
	ID          int64           `db:"id" json:"id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	Category    string          `db:"category" json:"category"`
	Date        time.Time       `db:"expense_date" json:"date"`
	UserID      int64           `db:"user_id" json:"user_id"`
	Username    string          `db:"username" json:"username"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// StockTransaction is an audit entry for a stock movement
type StockTransaction struct {
	ID              int64     `db:"id" json:"id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	Quantity        int       `db:"quantity" json:"quantity"`
	QuantityBefore  int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter   int       `db:"quantity_after" json:"quantity_after"`
	ReferenceType   string    `db:"reference_type" json:"reference_type"`
	ReferenceID     int64     `db:"reference_id" json:"reference_id"`
	Notes           string    `db:"notes" json:"notes"`
	UserID          int64     `db:"user_id" json:"user_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// User is an account that can sign in
type User struct {
	ID                 int64      `db:"id" json:"id"`
	Username           string     `db:"username" json:"username"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Role               string     `db:"role" json:"role"`
	ShopName           string     `db:"shop_name" json:"shop_name"`
	Phone              string     `db:"phone" json:"phone"`
	ProfilePicture     string     `db:"profile_picture" json:"profile_picture,omitempty"`
	RefreshToken       string     `db:"refresh_token" json:"-"`
	RefreshTokenExpiry *time.Time `db:"refresh_token_expiry" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// SetPassword hashes and stores the password
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
