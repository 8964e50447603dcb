package service

import (
	"testing"
	"time"

	"retail-core/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) orderAt(t *testing.T, at time.Time, currency string, lines ...LineRequest) *models.SalesOrder {
	t.Helper()
	f.orders.now = func() time.Time { return at }
	defer func() { f.orders.now = time.Now }()
	return f.order(t, currency, lines...)
}

func TestMarginTier(t *testing.T) {
	tests := []struct {
		margin string
		want   string
	}{
		{"45", TierHigh},
		{"30.01", TierHigh},
		{"30", TierMedium},
		{"15.5", TierMedium},
		{"15", TierLow},
		{"-5", TierLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MarginTier(dec(tt.margin)), tt.margin)
	}
}

func TestDemandLevel(t *testing.T) {
	avg := dec("8.75")
	assert.Equal(t, DemandNone, DemandLevel(0, avg))
	assert.Equal(t, DemandLow, DemandLevel(2, avg))
	assert.Equal(t, DemandMedium, DemandLevel(5, avg))
	assert.Equal(t, DemandMedium, DemandLevel(13, avg))
	assert.Equal(t, DemandHigh, DemandLevel(14, avg))
}

func TestDemandReport(t *testing.T) {
	f := newFixture(t, false)
	unsold := f.product(t, "D0", 1000, 500, 50)
	low := f.product(t, "D2", 1000, 500, 50)
	medium := f.product(t, "D10", 1000, 500, 50)
	high := f.product(t, "D23", 1000, 500, 50)

	f.order(t, "", line(low.ID, 2), line(medium.ID, 4))
	f.order(t, "", line(medium.ID, 6), line(high.ID, 20))
	f.order(t, "", line(high.ID, 3))

	report, err := f.analytics.Demand(f.ctx)
	require.NoError(t, err)

	stats := report.Statistics
	assert.Equal(t, 4, stats.TotalProducts)
	assert.Equal(t, 3, stats.ProductsWithSales)
	assert.Equal(t, 1, stats.ProductsWithoutSales)
	assert.True(t, stats.AverageSold.Equal(dec("11.67")), stats.AverageSold.String())
	assert.Equal(t, 23, stats.MaxSold)

	require.Len(t, report.AllProducts, 4)
	assert.Equal(t, high.ID, report.AllProducts[0].ProductID)
	assert.Equal(t, 2, report.AllProducts[0].OrderCount)

	levels := map[int64]string{}
	for _, row := range report.AllProducts {
		levels[row.ProductID] = row.DemandLevel
	}
	assert.Equal(t, DemandNone, levels[unsold.ID])
	assert.Equal(t, DemandLow, levels[low.ID])
	assert.Equal(t, DemandMedium, levels[medium.ID])
	assert.Equal(t, DemandHigh, levels[high.ID])

	assert.Len(t, report.HighDemand, 1)
	assert.Len(t, report.MediumDemand, 1)
	assert.Len(t, report.LowDemand, 2)
}

func TestDemandAverageSkipsUnsoldProducts(t *testing.T) {
	f := newFixture(t, false)
	for _, sku := range []string{"U1", "U2", "U3", "U4"} {
		f.product(t, sku, 1000, 500, 10)
	}
	slow := f.product(t, "S2", 1000, 500, 50)
	fast := f.product(t, "S10", 1000, 500, 50)
	f.order(t, "", line(slow.ID, 2), line(fast.ID, 10))

	report, err := f.analytics.Demand(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Statistics.TotalProducts)
	assert.Equal(t, 4, report.Statistics.ProductsWithoutSales)
	assert.True(t, report.Statistics.AverageSold.Equal(decimal.NewFromInt(6)), report.Statistics.AverageSold.String())

	levels := map[int64]string{}
	for _, row := range report.AllProducts {
		levels[row.ProductID] = row.DemandLevel
	}
	assert.Equal(t, DemandLow, levels[slow.ID])
	assert.Equal(t, DemandHigh, levels[fast.ID])
	assert.Empty(t, report.MediumDemand)
	assert.Len(t, report.LowDemand, 5)
}

func TestDemandIgnoresDeletedProducts(t *testing.T) {
	f := newFixture(t, false)
	kept := f.product(t, "K", 1000, 500, 10)
	gone := f.product(t, "G", 1000, 500, 10)
	f.order(t, "", line(kept.ID, 1), line(gone.ID, 5))
	require.NoError(t, f.products.DeleteProduct(f.ctx, gone.ID))

	report, err := f.analytics.Demand(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.AllProducts, 1)
	assert.Equal(t, 1, report.Statistics.MaxSold)
	assert.True(t, report.Statistics.AverageSold.Equal(decimal.NewFromInt(1)))
}

func TestProfitAnalytics(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "PA", 10000, 6000, 10)
	b := f.product(t, "PB", 10000, 8000, 10)
	c := f.product(t, "PC", 10000, 9000, 10)

	f.order(t, "", line(a.ID, 2), line(b.ID, 1))
	f.order(t, "", line(c.ID, 1))
	_, err := f.expenses.CreateExpense(f.ctx, &ExpenseRequest{Amount: dec("1000"), Description: "Rent"})
	require.NoError(t, err)

	report, err := f.analytics.ProfitAnalytics(f.ctx, nil, nil)
	require.NoError(t, err)

	assert.True(t, report.TotalRevenue.Equal(dec("40000")))
	assert.True(t, report.GrossProfit.Equal(dec("11000")))
	assert.True(t, report.TotalCost.Equal(dec("29000")))
	assert.True(t, report.TotalExpenses.Equal(dec("1000")))
	assert.True(t, report.NetProfit.Equal(dec("10000")))
	assert.True(t, report.OverallMargin.Equal(dec("27.5")))

	require.Len(t, report.Products, 3)
	assert.Equal(t, a.ID, report.Products[0].ProductID)
	assert.Equal(t, TierHigh, report.Products[0].Tier)
	assert.Equal(t, TierMedium, report.Products[1].Tier)
	assert.Equal(t, TierLow, report.Products[2].Tier)
	assert.Equal(t, MarginDistribution{HighMargin: 1, MediumMargin: 1, LowMargin: 1}, report.MarginDistribution)

	require.NoError(t, f.products.DeleteProduct(f.ctx, c.ID))
	report, err = f.analytics.ProfitAnalytics(f.ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, report.TotalRevenue.Equal(dec("40000")))
	assert.Len(t, report.Products, 2)
}

func TestProfitAnalyticsRejectsInvertedWindow(t *testing.T) {
	f := newFixture(t, false)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)

	_, err := f.analytics.ProfitAnalytics(f.ctx, &from, &to)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDailyNormalizesCurrencies(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "DAY", 37000, 18500, 10)
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f.orderAt(t, day, "", line(p.ID, 1))
	f.orderAt(t, day.Add(time.Hour), models.CurrencyUSD, line(p.ID, 1))
	f.orderAt(t, day.AddDate(0, 0, 1), "", line(p.ID, 1))

	report, err := f.analytics.Daily(f.ctx, day)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", report.Date)
	assert.Equal(t, 2, report.TotalOrders)
	assert.True(t, report.TotalRevenueUGX.Equal(dec("74000")))
	assert.True(t, report.TotalRevenueUSD.Equal(dec("20")))
	assert.True(t, report.AvgOrderValueUGX.Equal(dec("37000")))
	assert.True(t, report.AvgOrderValueUSD.Equal(dec("10")))
	require.Len(t, report.ByCurrency, 2)
	assert.Equal(t, models.CurrencyUGX, report.ByCurrency[0].Currency)
	assert.True(t, report.ByCurrency[1].Revenue.Equal(dec("10")))

	empty, err := f.analytics.Daily(f.ctx, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, empty.TotalOrders)
	assert.True(t, empty.TotalRevenueUGX.IsZero())
	assert.NotNil(t, empty.ByCurrency)
}

func TestPeriodBreakdown(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "PER", 1000, 500, 20)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	f.analytics.now = func() time.Time { return now }

	f.orderAt(t, now.AddDate(0, 0, -2), "", line(p.ID, 1))
	f.orderAt(t, now.AddDate(0, 0, -2).Add(time.Hour), "", line(p.ID, 2))
	f.orderAt(t, now.AddDate(0, 0, -1), "", line(p.ID, 1))
	f.orderAt(t, now.AddDate(0, -2, 0), "", line(p.ID, 5))

	week, err := f.analytics.Period(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "week", week.Period)
	assert.Equal(t, 3, week.TotalOrders)
	require.Len(t, week.Breakdown, 2)
	assert.Equal(t, "2026-03-10", week.Breakdown[0].Date)
	assert.Equal(t, 2, week.Breakdown[0].Orders)
	assert.True(t, week.Breakdown[0].Revenue.Equal(dec("3000")))
	assert.Equal(t, "2026-03-12", week.EndDate)

	year, err := f.analytics.Period(f.ctx, "year")
	require.NoError(t, err)
	assert.Equal(t, 4, year.TotalOrders)
	require.Len(t, year.Breakdown, 2)
	assert.Equal(t, "2026-01", year.Breakdown[0].Date)
	assert.Equal(t, "2026-03", year.Breakdown[1].Date)

	quarter, err := f.analytics.Period(f.ctx, "3months")
	require.NoError(t, err)
	assert.Equal(t, "2026-W11", quarter.Breakdown[len(quarter.Breakdown)-1].Date)

	_, err = f.analytics.Period(f.ctx, "decade")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSalesTrendAndSummary(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "TR", 1000, 500, 20)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	f.analytics.now = func() time.Time { return now }

	f.orderAt(t, now.AddDate(0, 0, -1), "", line(p.ID, 1))
	f.orderAt(t, now.AddDate(0, 0, -3), "", line(p.ID, 2))
	f.orderAt(t, now.AddDate(0, 0, -30), "", line(p.ID, 3))

	trend, err := f.analytics.SalesTrend(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, "2026-03-09", trend[0].Date)
	assert.True(t, trend[0].Sales.Equal(dec("2000")))
	assert.Equal(t, "2026-03-11", trend[1].Date)

	summary, err := f.analytics.SalesSummary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalOrders)
	assert.True(t, summary.TotalSales.Equal(dec("6000")))
	assert.True(t, summary.AvgOrderValue.Equal(dec("2000")))
}

func TestLowStockAndStockStatus(t *testing.T) {
	f := newFixture(t, false)
	f.product(t, "Q5", 100, 50, 5)
	f.product(t, "Q2", 100, 50, 2)
	f.product(t, "Q0", 100, 50, 0)
	f.product(t, "Q1", 100, 50, 1)

	report, err := f.analytics.LowStock(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count)
	require.Len(t, report.Items, 3)
	assert.Equal(t, "Q0", report.Items[0].SKU)
	assert.Equal(t, AlertCritical, report.Items[0].AlertLevel)
	assert.Equal(t, AlertHigh, report.Items[1].AlertLevel)
	assert.Equal(t, AlertMedium, report.Items[2].AlertLevel)

	status, err := f.analytics.StockStatus(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, status.TotalProducts)
	assert.Equal(t, 8, status.TotalItems)
	assert.True(t, status.TotalInventoryValue.Equal(dec("800")))
}

func TestTopProducts(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "TA", 1000, 500, 20)
	b := f.product(t, "TB", 37000, 500, 20)
	c := f.product(t, "TC", 1000, 500, 20)

	f.order(t, "", line(a.ID, 5), line(c.ID, 1))
	f.order(t, models.CurrencyUSD, line(b.ID, 3))

	top, err := f.analytics.TopProducts(f.ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, a.ID, top[0].ProductID)
	assert.Equal(t, b.ID, top[1].ProductID)
	assert.True(t, top[1].Revenue.Equal(dec("111000")))
}

func TestAlertLevel(t *testing.T) {
	assert.Equal(t, AlertCritical, AlertLevel(0, 10))
	assert.Equal(t, AlertHigh, AlertLevel(5, 10))
	assert.Equal(t, AlertMedium, AlertLevel(6, 10))
}
