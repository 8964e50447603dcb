package service

import (
	"fmt"

	"retail-core/internal/models"
	"retail-core/internal/util"

	"github.com/shopspring/decimal"
)

// LineRequest asks for quantity units of a product. A positive CustomPrice,
// given in UGX like the catalog, replaces the catalog price.
type LineRequest struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	CustomPrice decimal.Decimal `json:"custom_price" validate:"gte=0"`
}

func validateRequest(req interface{}) error {
	if errs := util.ValidateStruct(req); len(errs) > 0 {
		return validationError("%s", util.JoinFieldErrors(errs))
	}
	return nil
}

func validCurrency(currency string) bool {
	return currency == models.CurrencyUGX || currency == models.CurrencyUSD
}

// normalizeCurrency defaults an empty currency to UGX
func normalizeCurrency(currency string) (string, error) {
	if currency == "" {
		return models.CurrencyUGX, nil
	}
	if !validCurrency(currency) {
		return "", validationError("Please select a valid currency (UGX or USD).")
	}
	return currency, nil
}

// ToCurrency converts a UGX amount into currency at rate. USD amounts are
// rounded to cents.
func ToCurrency(amountUGX decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal {
	if currency != models.CurrencyUSD || !rate.IsPositive() {
		return amountUGX
	}
	return amountUGX.Div(rate).Round(2)
}

// ToUGX converts an amount held in currency back to UGX at rate
func ToUGX(amount decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal {
	if currency != models.CurrencyUSD {
		return amount
	}
	return amount.Mul(rate)
}

func productIDs(lines []LineRequest) []int64 {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// requestedQuantities sums quantities per product
func requestedQuantities(lines []LineRequest) map[int64]int {
	out := make(map[int64]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// priceLines snapshots name, price and cost for every line in the order's
// currency. Unit and cost prices are converted the same way so item profit
// stays in one currency.
func priceLines(currency string, rate decimal.Decimal, lines []LineRequest, products map[int64]models.Product) (models.OrderItems, error) {
	items := make(models.OrderItems, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, notFoundError("Product %d not found. It may have been deleted.", l.ProductID)
		}

		price := p.UnitPrice
		custom := l.CustomPrice.IsPositive()
		if custom {
			price = l.CustomPrice
		}

		item := models.OrderItem{
			ProductID:       p.ID,
			ProductName:     p.Name,
			UnitPrice:       ToCurrency(price, currency, rate),
			CostPrice:       ToCurrency(p.CostPrice, currency, rate),
			CustomPriceUsed: custom,
		}
		item.SetQuantity(l.Quantity)
		items = append(items, item)
	}
	return items, nil
}

// checkAvailable compares requested quantities against the catalog
func checkAvailable(lines []LineRequest, products map[int64]models.Product) error {
	for id, qty := range requestedQuantities(lines) {
		p, ok := products[id]
		if !ok {
			return notFoundError("Product %d not found. It may have been deleted.", id)
		}
		if p.QuantityInStock < qty {
			return conflictError("%s", insufficientMessage(p, qty))
		}
	}
	return nil
}

func insufficientMessage(p models.Product, requested int) string {
	return fmt.Sprintf("Not enough stock for %s. Available: %d units, requested: %d units.",
		p.Name, p.QuantityInStock, requested)
}
