package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"retail-core/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
)

// Page selects a 1-based page. Limit 0 returns every row.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page
func (p Page) Offset() int {
	if p.Limit <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type ProductFilter struct {
	Page
	Search string
}

type CustomerFilter struct {
	Page
	Search string
}

type OrderFilter struct {
	Page
	Search        string
	Status        string
	CustomerPhone string
	CustomerName  string
	From          *time.Time
	To            *time.Time
}

type ReturnFilter struct {
	Page
	Status  string
	OrderID int64
}

type InvoiceFilter struct {
	Page
	Search        string
	CustomerPhone string
	CustomerName  string
}

type ExpenseFilter struct {
	Page
	Category string
	From     *time.Time
	To       *time.Time
}

// StockChange is a signed stock movement applied inside a store transaction.
// Negative deltas are conditional: they fail with ErrInsufficientStock
// instead of driving quantity below zero.
type StockChange struct {
	ProductID int64
	Delta     int
	Type      string
	Notes     string
	UserID    int64
}

// OrderMutator edits a locked order in place and returns the stock
// movements the edit implies.
type OrderMutator func(order *models.SalesOrder) ([]StockChange, error)

// ReturnApplier revises a locked pending return and its order and returns
// the stock movements to apply. Changes for deleted products are skipped.
type ReturnApplier func(ret *models.Return, order *models.SalesOrder) ([]StockChange, error)

// Repository is the persistence boundary for the retail core. Every method
// that takes a mutator or applies stock changes is atomic.
type Repository interface {
	Ping(ctx context.Context) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, int, error)
	UpdateProduct(ctx context.Context, product *models.Product, actorID int64) error
	DeleteProduct(ctx context.Context, id int64) error
	ListStockTransactions(ctx context.Context, productID int64, limit int) ([]models.StockTransaction, error)

	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]models.Customer, int, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
	AdjustCustomerTotals(ctx context.Context, phone string, purchases int, spent decimal.Decimal) error

	CreateOrder(ctx context.Context, order *models.SalesOrder) error
	GetOrder(ctx context.Context, id int64) (*models.SalesOrder, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.SalesOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.SalesOrder, int, error)
	UpdateOrder(ctx context.Context, id int64, mutate OrderMutator) (*models.SalesOrder, error)
	DeleteOrder(ctx context.Context, id int64) (*models.SalesOrder, error)

	CreateReturn(ctx context.Context, ret *models.Return) error
	GetReturn(ctx context.Context, id int64) (*models.Return, error)
	ListReturns(ctx context.Context, filter ReturnFilter) ([]models.Return, int, error)
	ApproveReturn(ctx context.Context, id int64, apply ReturnApplier) (*models.Return, *models.SalesOrder, error)
	RejectReturn(ctx context.Context, id int64, reason string, actor models.Actor, at time.Time) (*models.Return, error)
	DeleteReturn(ctx context.Context, id int64) error

	CountInvoices(ctx context.Context) (int, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, int, error)
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	DeleteInvoice(ctx context.Context, id int64) error

	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, id int64) (*models.Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, int, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByRefreshToken(ctx context.Context, token string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context, role string) (int, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AggregateChanges merges changes per product and orders them by product
// ID, the order in which product rows are locked.
func AggregateChanges(changes []StockChange) []StockChange {
	index := make(map[int64]int)
	out := make([]StockChange, 0, len(changes))
	for _, ch := range changes {
		if i, ok := index[ch.ProductID]; ok {
			out[i].Delta += ch.Delta
			continue
		}
		index[ch.ProductID] = len(out)
		out = append(out, ch)
	}
	filtered := out[:0]
	for _, ch := range out {
		if ch.Delta != 0 {
			filtered = append(filtered, ch)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].ProductID < filtered[j].ProductID
	})
	return filtered
}
