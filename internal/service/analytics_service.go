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

// Margin tiers
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// Demand levels
const (
	DemandNone   = "none"
	DemandLow    = "low"
	DemandMedium = "medium"
	DemandHigh   = "high"
)

const (
	defaultTopProducts   = 5
	defaultTrendDays     = 7
	defaultProfitWindow  = 30 * 24 * time.Hour
	highMarginThreshold  = 30
	lowMarginThreshold   = 15
	highDemandMultiplier = 1.5
	lowDemandMultiplier  = 0.5
)

var hundred = decimal.NewFromInt(100)

// MarginTier buckets a margin percentage: above 30 is high, above 15 is
// medium, anything else is low.
func MarginTier(margin decimal.Decimal) string {
	switch {
	case margin.GreaterThan(decimal.NewFromInt(highMarginThreshold)):
		return TierHigh
	case margin.GreaterThan(decimal.NewFromInt(lowMarginThreshold)):
		return TierMedium
	default:
		return TierLow
	}
}

// DemandLevel classifies sold units against the catalog average
func DemandLevel(sold int, average decimal.Decimal) string {
	units := decimal.NewFromInt(int64(sold))
	switch {
	case sold == 0:
		return DemandNone
	case units.GreaterThanOrEqual(average.Mul(decimal.NewFromFloat(highDemandMultiplier))):
		return DemandHigh
	case units.GreaterThanOrEqual(average.Mul(decimal.NewFromFloat(lowDemandMultiplier))):
		return DemandMedium
	default:
		return DemandLow
	}
}

// AnalyticsService is the read-only reporting engine. Every conversion uses
// the injected reporting rate, never an order's own snapshot.
type AnalyticsService struct {
	repo          store.Repository
	reportingRate decimal.Decimal
	logger        *zap.Logger
	now           func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(repo store.Repository, reportingRate decimal.Decimal) *AnalyticsService {
	return &AnalyticsService{
		repo:          repo,
		reportingRate: reportingRate,
		logger:        util.Named("analytics"),
		now:           time.Now,
	}
}

func (s *AnalyticsService) toUGX(amount decimal.Decimal, currency string) decimal.Decimal {
	return ToUGX(amount, currency, s.reportingRate)
}

func (s *AnalyticsService) orders(ctx context.Context, from, to *time.Time) ([]models.SalesOrder, error) {
	orders, _, err := s.repo.ListOrders(ctx, store.OrderFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return orders, nil
}

func (s *AnalyticsService) products(ctx context.Context) ([]models.Product, error) {
	products, _, err := s.repo.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return products, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CurrencyTotal is revenue in one order currency, unconverted
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Revenue  decimal.Decimal `json:"revenue"`
	Orders   int             `json:"orders"`
}

// RevenueTotals is revenue normalized to both currencies at the reporting
// rate. UGX is rounded to whole shillings, USD to cents.
type RevenueTotals struct {
	TotalRevenueUGX  decimal.Decimal `json:"total_revenue_ugx"`
	TotalRevenueUSD  decimal.Decimal `json:"total_revenue_usd"`
	TotalOrders      int             `json:"total_orders"`
	AvgOrderValueUGX decimal.Decimal `json:"avg_order_value_ugx"`
	AvgOrderValueUSD decimal.Decimal `json:"avg_order_value_usd"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	ByCurrency       []CurrencyTotal `json:"by_currency"`
}

func (s *AnalyticsService) revenueTotals(orders []models.SalesOrder) RevenueTotals {
	byCurrency := map[string]*CurrencyTotal{}
	totalUGX := decimal.Zero
	for _, o := range orders {
		ct, ok := byCurrency[o.Currency]
		if !ok {
			ct = &CurrencyTotal{Currency: o.Currency}
			byCurrency[o.Currency] = ct
		}
		ct.Revenue = ct.Revenue.Add(o.TotalAmount)
		ct.Orders++
		totalUGX = totalUGX.Add(s.toUGX(o.TotalAmount, o.Currency))
	}

	totals := RevenueTotals{
		TotalOrders:  len(orders),
		ExchangeRate: s.reportingRate,
		ByCurrency:   []CurrencyTotal{},
	}
	totalUSD := decimal.Zero
	if s.reportingRate.IsPositive() {
		totalUSD = totalUGX.Div(s.reportingRate)
	}
	totals.TotalRevenueUGX = totalUGX.Round(0)
	totals.TotalRevenueUSD = totalUSD.Round(2)
	if n := decimal.NewFromInt(int64(len(orders))); len(orders) > 0 {
		totals.AvgOrderValueUGX = totalUGX.Div(n).Round(0)
		totals.AvgOrderValueUSD = totalUSD.Div(n).Round(2)
	}

	for _, currency := range []string{models.CurrencyUGX, models.CurrencyUSD} {
		if ct, ok := byCurrency[currency]; ok {
			totals.ByCurrency = append(totals.ByCurrency, *ct)
		}
	}
	return totals
}

// DailyReport is revenue for one calendar day
type DailyReport struct {
	Period string `json:"period"`
	Date   string `json:"date"`
	RevenueTotals
}

// Daily reports revenue for the calendar day containing day
func (s *AnalyticsService) Daily(ctx context.Context, day time.Time) (*DailyReport, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.Daily")
	defer span.End()

	from := startOfDay(day)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	orders, err := s.orders(ctx, &from, &to)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	return &DailyReport{
		Period:        "daily",
		Date:          from.Format("2006-01-02"),
		RevenueTotals: s.revenueTotals(orders),
	}, nil
}

// PeriodBucket is one slice of a period breakdown. Revenue is UGX.
type PeriodBucket struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// PeriodReport is revenue over a trailing window with a breakdown
type PeriodReport struct {
	Period      string `json:"period"`
	PeriodLabel string `json:"period_label"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	RevenueTotals
	Breakdown []PeriodBucket `json:"breakdown"`
}

type periodSpec struct {
	label string
	start func(time.Time) time.Time
	key   func(time.Time) string
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

var periods = map[string]periodSpec{
	"week":    {"Last 7 Days", func(t time.Time) time.Time { return t.AddDate(0, 0, -7) }, dayKey},
	"month":   {"Last 30 Days", func(t time.Time) time.Time { return t.AddDate(0, -1, 0) }, dayKey},
	"3months": {"Last 3 Months (Weekly)", func(t time.Time) time.Time { return t.AddDate(0, -3, 0) }, weekKey},
	"6months": {"Last 6 Months (Weekly)", func(t time.Time) time.Time { return t.AddDate(0, -6, 0) }, weekKey},
	"year":    {"Last 12 Months (Monthly)", func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) }, monthKey},
}

// Period reports revenue for week, month, 3months, 6months or year. An
// empty period means week.
func (s *AnalyticsService) Period(ctx context.Context, period string) (*PeriodReport, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.Period")
	defer span.End()

	if period == "" {
		period = "week"
	}
	window, ok := periods[period]
	if !ok {
		return nil, validationError("unknown period %q, expected week, month, 3months, 6months or year", period)
	}

	end := s.now()
	start := window.start(end)
	orders, err := s.orders(ctx, &start, &end)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	buckets := map[string]*PeriodBucket{}
	for _, o := range orders {
		key := window.key(o.OrderDate.In(end.Location()))
		b, ok := buckets[key]
		if !ok {
			b = &PeriodBucket{Date: key}
			buckets[key] = b
		}
		b.Revenue = b.Revenue.Add(s.toUGX(o.TotalAmount, o.Currency))
		b.Orders++
	}
	breakdown := make([]PeriodBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Revenue = b.Revenue.Round(0)
		breakdown = append(breakdown, *b)
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Date < breakdown[j].Date })

	return &PeriodReport{
		Period:        period,
		PeriodLabel:   window.label,
		StartDate:     dayKey(start),
		EndDate:       dayKey(end),
		RevenueTotals: s.revenueTotals(orders),
		Breakdown:     breakdown,
	}, nil
}

// SalesSummary is the all-time order rollup in UGX
type SalesSummary struct {
	TotalOrders   int             `json:"total_orders"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
}

// SalesSummary totals every order
func (s *AnalyticsService) SalesSummary(ctx context.Context) (*SalesSummary, error) {
	orders, err := s.orders(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	totals := s.revenueTotals(orders)
	return &SalesSummary{
		TotalOrders:   totals.TotalOrders,
		TotalSales:    totals.TotalRevenueUGX,
		AvgOrderValue: totals.AvgOrderValueUGX,
	}, nil
}

// StockStatus values the inventory at selling price
type StockStatus struct {
	TotalProducts       int             `json:"total_products"`
	TotalItems          int             `json:"total_items"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
}

// StockStatus summarises current stock
func (s *AnalyticsService) StockStatus(ctx context.Context) (*StockStatus, error) {
	products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}
	status := &StockStatus{TotalProducts: len(products)}
	for _, p := range products {
		status.TotalItems += p.QuantityInStock
		status.TotalInventoryValue = status.TotalInventoryValue.Add(p.UnitPrice.Mul(decimal.NewFromInt(int64(p.QuantityInStock))))
	}
	status.TotalInventoryValue = status.TotalInventoryValue.Round(0)
	return status, nil
}

// TopProducts ranks existing products by units sold
func (s *AnalyticsService) TopProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = defaultTopProducts
	}
	orders, err := s.orders(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	rollup := rollupProducts(orders, func(o *models.SalesOrder, amount decimal.Decimal) decimal.Decimal {
		return s.toUGX(amount, o.Currency)
	})
	return topSellers(rollup, indexProducts(products), limit), nil
}

func indexProducts(products []models.Product) map[int64]models.Product {
	out := make(map[int64]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

// LowStockItem is a product at or below its threshold
type LowStockItem struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	Threshold  int             `json:"threshold"`
	AlertLevel string          `json:"alert_level"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// LowStockReport lists products needing a reorder
type LowStockReport struct {
	Count int            `json:"count"`
	Items []LowStockItem `json:"items"`
}

// LowStock lists products at or below threshold, most urgent first
func (s *AnalyticsService) LowStock(ctx context.Context) (*LowStockReport, error) {
	products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	report := &LowStockReport{Items: []LowStockItem{}}
	for _, p := range products {
		if p.QuantityInStock > p.LowStockThreshold {
			continue
		}
		report.Items = append(report.Items, LowStockItem{
			ProductID:  p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			Quantity:   p.QuantityInStock,
			Threshold:  p.LowStockThreshold,
			AlertLevel: AlertLevel(p.QuantityInStock, p.LowStockThreshold),
			UnitPrice:  p.UnitPrice,
		})
	}
	sort.SliceStable(report.Items, func(i, j int) bool {
		return report.Items[i].Quantity < report.Items[j].Quantity
	})
	report.Count = len(report.Items)
	return report, nil
}

// TrendPoint is one day of the sales trend, in UGX
type TrendPoint struct {
	Date   string          `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Orders int             `json:"orders"`
}

// SalesTrend returns daily sales for the trailing days, oldest first
func (s *AnalyticsService) SalesTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	end := s.now()
	start := end.AddDate(0, 0, -days)
	orders, err := s.orders(ctx, &start, &end)
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	trend := []TrendPoint{}
	for _, o := range orders {
		key := dayKey(o.OrderDate.In(end.Location()))
		i, ok := index[key]
		if !ok {
			i = len(trend)
			index[key] = i
			trend = append(trend, TrendPoint{Date: key})
		}
		trend[i].Sales = trend[i].Sales.Add(s.toUGX(o.TotalAmount, o.Currency))
		trend[i].Orders++
	}
	for i := range trend {
		trend[i].Sales = trend[i].Sales.Round(0)
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return trend, nil
}

// ProductProfit is one product's realised profit in the window
type ProductProfit struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantitySold int             `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
	Tier         string          `json:"tier"`
}

// MarginDistribution counts products per margin tier
type MarginDistribution struct {
	HighMargin   int `json:"high_margin"`
	MediumMargin int `json:"medium_margin"`
	LowMargin    int `json:"low_margin"`
}

// ProfitReport is realised profit from item snapshots, net of expenses.
// Money is UGX at the reporting rate.
type ProfitReport struct {
	From               time.Time          `json:"from"`
	To                 time.Time          `json:"to"`
	TotalRevenue       decimal.Decimal    `json:"total_revenue"`
	TotalCost          decimal.Decimal    `json:"total_cost"`
	GrossProfit        decimal.Decimal    `json:"gross_profit"`
	TotalExpenses      decimal.Decimal    `json:"total_expenses"`
	NetProfit          decimal.Decimal    `json:"net_profit"`
	OverallMargin      decimal.Decimal    `json:"overall_margin"`
	Products           []ProductProfit    `json:"products"`
	MarginDistribution MarginDistribution `json:"margin_distribution"`
}

// ProfitAnalytics sums the profit snapshots stored on order items in
// [from, to]; nil bounds default to the last 30 days. Totals include lines
// for deleted products, the per-product tiers do not.
func (s *AnalyticsService) ProfitAnalytics(ctx context.Context, from, to *time.Time) (*ProfitReport, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.ProfitAnalytics")
	defer span.End()

	end := s.now()
	if to != nil {
		end = *to
	}
	start := end.Add(-defaultProfitWindow)
	if from != nil {
		start = *from
	}
	if start.After(end) {
		return nil, validationError("from must not be after to")
	}

	orders, err := s.orders(ctx, &start, &end)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	products, err := s.products(ctx)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	expenses, _, err := s.repo.ListExpenses(ctx, store.ExpenseFilter{From: &start, To: &end})
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load expenses: %w", err))
	}

	existing := indexProducts(products)
	report := &ProfitReport{From: start, To: end, Products: []ProductProfit{}}
	perProduct := map[int64]*ProductProfit{}

	for _, o := range orders {
		for _, it := range o.Items {
			revenue := s.toUGX(it.ItemTotal, o.Currency)
			profit := s.toUGX(it.ItemProfit, o.Currency)
			report.TotalRevenue = report.TotalRevenue.Add(revenue)
			report.GrossProfit = report.GrossProfit.Add(profit)

			p, ok := existing[it.ProductID]
			if !ok {
				continue
			}
			pp, ok := perProduct[it.ProductID]
			if !ok {
				pp = &ProductProfit{ProductID: p.ID, ProductName: p.Name}
				perProduct[it.ProductID] = pp
			}
			pp.QuantitySold += it.Quantity
			pp.Revenue = pp.Revenue.Add(revenue)
			pp.Profit = pp.Profit.Add(profit)
		}
	}

	for _, e := range expenses {
		report.TotalExpenses = report.TotalExpenses.Add(e.Amount)
	}

	report.TotalCost = report.TotalRevenue.Sub(report.GrossProfit).Round(2)
	report.OverallMargin = models.Margin(report.GrossProfit, report.TotalRevenue)
	report.NetProfit = report.GrossProfit.Sub(report.TotalExpenses).Round(2)
	report.TotalRevenue = report.TotalRevenue.Round(2)
	report.GrossProfit = report.GrossProfit.Round(2)

	for _, pp := range perProduct {
		pp.ProfitMargin = models.Margin(pp.Profit, pp.Revenue)
		pp.Tier = MarginTier(pp.ProfitMargin)
		pp.Cost = pp.Revenue.Sub(pp.Profit).Round(2)
		pp.Revenue = pp.Revenue.Round(2)
		pp.Profit = pp.Profit.Round(2)

		switch pp.Tier {
		case TierHigh:
			report.MarginDistribution.HighMargin++
		case TierMedium:
			report.MarginDistribution.MediumMargin++
		default:
			report.MarginDistribution.LowMargin++
		}
		report.Products = append(report.Products, *pp)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		a, b := report.Products[i], report.Products[j]
		if !a.ProfitMargin.Equal(b.ProfitMargin) {
			return a.ProfitMargin.GreaterThan(b.ProfitMargin)
		}
		return a.ProductID < b.ProductID
	})
	return report, nil
}

// ProductDemand is one product's demand classification
type ProductDemand struct {
	ProductID    int64           `json:"product_id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Price        decimal.Decimal `json:"price"`
	CurrentStock int             `json:"current_stock"`
	TotalSold    int             `json:"total_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	OrderCount   int             `json:"order_count"`
	DemandLevel  string          `json:"demand_level"`
}

// DemandStats describes the distribution the levels were derived from
type DemandStats struct {
	TotalProducts        int             `json:"total_products"`
	ProductsWithSales    int             `json:"products_with_sales"`
	ProductsWithoutSales int             `json:"products_without_sales"`
	AverageSold          decimal.Decimal `json:"average_sold"`
	MaxSold              int             `json:"max_sold"`
}

// DemandReport groups the catalog by demand level. LowDemand also holds
// products with no sales.
type DemandReport struct {
	AllProducts  []ProductDemand `json:"all_products"`
	HighDemand   []ProductDemand `json:"high_demand"`
	MediumDemand []ProductDemand `json:"medium_demand"`
	LowDemand    []ProductDemand `json:"low_demand"`
	Statistics   DemandStats     `json:"statistics"`
}

// Demand classifies every catalog product by units sold across all orders.
// Lines for deleted products are ignored. The average only counts products
// that sold at least one unit.
func (s *AnalyticsService) Demand(ctx context.Context) (*DemandReport, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.Demand")
	defer span.End()

	orders, err := s.orders(ctx, nil, nil)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	products, err := s.products(ctx)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	existing := indexProducts(products)
	rows := make(map[int64]*ProductDemand, len(products))
	for _, p := range products {
		rows[p.ID] = &ProductDemand{
			ProductID:    p.ID,
			Name:         p.Name,
			SKU:          p.SKU,
			Price:        p.UnitPrice,
			CurrentStock: p.QuantityInStock,
		}
	}
	for _, o := range orders {
		seen := map[int64]bool{}
		for _, it := range o.Items {
			if _, ok := existing[it.ProductID]; !ok {
				continue
			}
			row := rows[it.ProductID]
			row.TotalSold += it.Quantity
			row.TotalRevenue = row.TotalRevenue.Add(s.toUGX(it.ItemTotal, o.Currency))
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				row.OrderCount++
			}
		}
	}

	report := &DemandReport{
		AllProducts:  make([]ProductDemand, 0, len(rows)),
		HighDemand:   []ProductDemand{},
		MediumDemand: []ProductDemand{},
		LowDemand:    []ProductDemand{},
	}
	stats := &report.Statistics
	stats.TotalProducts = len(products)

	totalSold := 0
	for _, row := range rows {
		totalSold += row.TotalSold
		if row.TotalSold > 0 {
			stats.ProductsWithSales++
		}
		if row.TotalSold > stats.MaxSold {
			stats.MaxSold = row.TotalSold
		}
	}
	stats.ProductsWithoutSales = stats.TotalProducts - stats.ProductsWithSales

	average := decimal.Zero
	if stats.ProductsWithSales > 0 {
		average = decimal.NewFromInt(int64(totalSold)).Div(decimal.NewFromInt(int64(stats.ProductsWithSales)))
	}
	stats.AverageSold = average.Round(2)

	for _, row := range rows {
		row.DemandLevel = DemandLevel(row.TotalSold, average)
		row.TotalRevenue = row.TotalRevenue.Round(2)
		report.AllProducts = append(report.AllProducts, *row)
	}
	sort.Slice(report.AllProducts, func(i, j int) bool {
		a, b := report.AllProducts[i], report.AllProducts[j]
		if a.TotalSold != b.TotalSold {
			return a.TotalSold > b.TotalSold
		}
		return a.ProductID < b.ProductID
	})
	for _, row := range report.AllProducts {
		switch row.DemandLevel {
		case DemandHigh:
			report.HighDemand = append(report.HighDemand, row)
		case DemandMedium:
			report.MediumDemand = append(report.MediumDemand, row)
		default:
			report.LowDemand = append(report.LowDemand, row)
		}
	}
	return report, nil
}
