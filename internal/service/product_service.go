package service

import (
	"context"
	"fmt"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultStockHistoryLimit = 50

// ProductService manages the catalog
type ProductService struct {
	repo             store.Repository
	inventory        *InventoryClient
	defaultThreshold int
	logger           *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo store.Repository, inventory *InventoryClient, defaultThreshold int) *ProductService {
	if defaultThreshold < 0 {
		defaultThreshold = models.DefaultLowStockThreshold
	}
	return &ProductService{
		repo:             repo,
		inventory:        inventory,
		defaultThreshold: defaultThreshold,
		logger:           util.Named("products"),
	}
}

// ProductRequest is the full set of editable product fields. Prices are UGX.
type ProductRequest struct {
	Name              string          `json:"name" validate:"required,max=200"`
	SKU               string          `json:"sku" validate:"required,max=100"`
	Description       string          `json:"description" validate:"max=2000"`
	Category          string          `json:"category" validate:"max=100"`
	UnitPrice         decimal.Decimal `json:"unit_price" validate:"gte=0"`
	CostPrice         decimal.Decimal `json:"cost_price" validate:"gte=0"`
	QuantityInStock   int             `json:"quantity_in_stock" validate:"gte=0"`
	LowStockThreshold *int            `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

func (r *ProductRequest) apply(p *models.Product) {
	p.Name = r.Name
	p.SKU = r.SKU
	p.Description = r.Description
	p.Category = r.Category
	p.UnitPrice = r.UnitPrice
	p.CostPrice = r.CostPrice
	p.QuantityInStock = r.QuantityInStock
	if r.LowStockThreshold != nil {
		p.LowStockThreshold = *r.LowStockThreshold
	}
	p.Derive()
}

// CreateProduct adds a product; the SKU must be unused
func (s *ProductService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	product := &models.Product{LowStockThreshold: s.defaultThreshold, CreatedBy: actor.UserID}
	req.apply(product)

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, util.RecordError(span, translate(fmt.Errorf("failed to create product: %w", err)))
	}

	s.inventory.cacheProduct(ctx, *product)
	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	return product, nil
}

// GetProduct retrieves a product by ID
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	product.Derive()
	return product, nil
}

// ListProducts searches the catalog; every row carries is_low_stock
func (s *ProductService) ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, int, error) {
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		products[i].Derive()
	}
	return products, total, nil
}

// UpdateProduct replaces the editable fields. A stock change is logged as
// an adjustment by the store.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateProduct")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	before := product.QuantityInStock
	req.apply(product)

	if err := s.repo.UpdateProduct(ctx, product, actor.UserID); err != nil {
		return nil, util.RecordError(span, translate(fmt.Errorf("failed to update product: %w", err)))
	}

	if delta := product.QuantityInStock - before; delta != 0 {
		recordMovements([]store.StockChange{{ProductID: id, Delta: delta, Type: models.StockTxAdjustment}})
	}
	s.inventory.AfterStockChange(ctx, id)

	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Int64("updated_by", actor.UserID))
	return product, nil
}

// DeleteProduct hard-deletes a product. Order, return and invoice lines keep
// their snapshots of it.
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return translate(err)
	}
	s.inventory.forget(ctx, id)
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// StockHistory lists the newest stock movements for a product
func (s *ProductService) StockHistory(ctx context.Context, id int64, limit int) ([]models.StockTransaction, error) {
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return nil, translate(err)
	}
	if limit <= 0 {
		limit = defaultStockHistoryLimit
	}
	return s.repo.ListStockTransactions(ctx, id, limit)
}
