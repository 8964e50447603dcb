package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"retail-core/internal/auth"
	"retail-core/internal/models"
	"retail-core/internal/service"
	"retail-core/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorKey = "actor"

// RateLimiter counts hits in a fixed window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error)
}

// authMiddleware resolves the bearer token to an actor and attaches it to
// both the gin context and the request context
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			util.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "Authorization header must be 'Bearer <token>'",
			})
			return
		}

		actor, err := h.svc.Users.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequirePermission rejects callers whose role does not grant action
func RequirePermission(action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := c.Get(actorKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "authentication required",
			})
			return
		}
		if !auth.Allowed(actor.(models.Actor).Role, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "Your role does not allow " + string(action),
			})
			return
		}
		c.Next()
	}
}

// rateLimit applies a fixed-window limit per client IP. Limiter errors let
// the request through.
func (h *Handler) rateLimit(scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.opts.Limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := scope + ":" + c.ClientIP()
		allowed, remaining, reset, err := h.opts.Limiter.Allow(c.Request.Context(), key, limit, h.opts.LimitWindow)
		if err != nil {
			h.logger.Warn("Rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(reset.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many requests",
				"details": "Rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// corsMiddleware allows every origin when origins holds "*"
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
