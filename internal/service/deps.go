package service

import (
	"context"
	"time"

	"retail-core/internal/models"
)

// StockCache is the fast-path stock counter kept in front of the store.
// Counters are advisory; the store's conditional update is authoritative.
type StockCache interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
	SetStock(ctx context.Context, productID int64, available int, version int64) (bool, error)
	DeleteStock(ctx context.Context, productID int64) error
}

// IdempotencyStore remembers which order an Idempotency-Key produced
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	RememberIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
}

// EventPublisher emits domain events after a mutation commits
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderUpdated(ctx context.Context, event *models.OrderUpdatedEvent) error
	PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error
	PublishReturnApproved(ctx context.Context, event *models.ReturnApprovedEvent) error
	PublishReturnRejected(ctx context.Context, event *models.ReturnRejectedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
	PublishInvoiceGenerated(ctx context.Context, event *models.InvoiceGeneratedEvent) error
	PublishExpenseRecorded(ctx context.Context, event *models.ExpenseRecordedEvent) error
}
