package api

import (
	"net/http"
	"time"

	"retail-core/internal/auth"
	"retail-core/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) reportRoutes(g *gin.RouterGroup) {
	g.Use(RequirePermission(auth.ReportsRead))
	g.GET("/sales-summary", h.salesSummary)
	g.GET("/stock-status", h.stockStatus)
	g.GET("/top-products", h.topProducts)
	g.GET("/low-stock", h.lowStock)
	g.GET("/sales-trend", h.salesTrend)
	g.GET("/analytics/daily", h.dailyAnalytics)
	g.GET("/analytics/period", h.periodAnalytics)
	g.GET("/analytics/profit-analytics", h.profitAnalytics)
}

func (h *Handler) salesSummary(c *gin.Context) {
	summary, err := h.svc.Analytics.SalesSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) stockStatus(c *gin.Context) {
	status, err := h.svc.Analytics.StockStatus(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) topProducts(c *gin.Context) {
	products, err := h.svc.Analytics.TopProducts(c.Request.Context(), intQuery(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) lowStock(c *gin.Context) {
	report, err := h.svc.Analytics.LowStock(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) salesTrend(c *gin.Context) {
	trend, err := h.svc.Analytics.SalesTrend(c.Request.Context(), intQuery(c, "days"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (h *Handler) dailyAnalytics(c *gin.Context) {
	day := time.Now()
	if v := c.Query("date"); v != "" {
		parsed, err := service.ParseDate(v)
		if err != nil {
			h.respondError(c, err)
			return
		}
		day = parsed
	}
	report, err := h.svc.Analytics.Daily(c.Request.Context(), day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) periodAnalytics(c *gin.Context) {
	report, err := h.svc.Analytics.Period(c.Request.Context(), c.Query("period"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) profitAnalytics(c *gin.Context) {
	from, to, err := dateRange(c, "from", "to")
	if err != nil {
		h.respondError(c, err)
		return
	}
	report, err := h.svc.Analytics.ProfitAnalytics(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
