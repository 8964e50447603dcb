package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"retail-core/internal/service"
	"retail-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the business services the HTTP layer fronts
type Services struct {
	Products  *service.ProductService
	Customers *service.CustomerService
	Orders    *service.OrderService
	Returns   *service.ReturnService
	Invoices  *service.InvoiceService
	Expenses  *service.ExpenseService
	Analytics *service.AnalyticsService
	Users     *service.UserService
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the middleware stack. A nil Limiter disables rate
// limiting.
type Options struct {
	CORSOrigins []string
	Limiter     RateLimiter
	AuthLimit   int
	APILimit    int
	LimitWindow time.Duration
	Ready       Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: util.Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(h.opts.CORSOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/api/auth")
	{
		public := authGroup.Group("", h.rateLimit("auth", h.opts.AuthLimit))
		public.POST("/register", h.register)
		public.POST("/login", h.login)
		public.POST("/refresh", h.refresh)

		session := authGroup.Group("", h.authMiddleware())
		session.POST("/logout", h.logout)
		session.GET("/me", h.me)
		session.PUT("/password", h.changePassword)
	}

	api := router.Group("/api", h.authMiddleware(), h.rateLimit("api", h.opts.APILimit))
	h.productRoutes(api.Group("/products"))
	h.customerRoutes(api.Group("/customers"))
	h.orderRoutes(api.Group("/sales"))
	h.returnRoutes(api.Group("/returns"))
	h.invoiceRoutes(api.Group("/invoices"))
	h.expenseRoutes(api.Group("/expenses"))
	h.reportRoutes(api.Group("/reports"))
	h.userRoutes(api.Group("/users"))
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps a service error kind to its HTTP status
func (h *Handler) respondError(c *gin.Context, err error) {
	status, summary := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, service.ErrValidation):
		status, summary = http.StatusBadRequest, "Validation failed"
	case errors.Is(err, service.ErrUnauthorized):
		status, summary = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrNotFound):
		status, summary = http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrConflict):
		status, summary = http.StatusConflict, "Conflict"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   summary,
		"details": err.Error(),
	})
}

// bind decodes the JSON body, answering 400 itself on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// pathID parses the :id parameter, answering 400 itself on failure
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid ID",
			"details": c.Param("id"),
		})
		return 0, false
	}
	return id, true
}
