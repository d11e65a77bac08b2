package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the routes. Operator endpoints are mounted only when
// secret is set.
func NewRouter(h *Handler, secret []byte, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.Logger))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if len(secret) > 0 {
		api := r.Group("/api")
		api.Use(AuthMiddleware(secret))
		{
			api.GET("/queue", h.ListQueue)
			api.DELETE("/queue/:id", h.EvictUser)
			api.GET("/users/:id", h.GetUser)
		}
	} else {
		h.Logger.Warn("Admin JWT secret not set, operator API disabled")
	}
	return r
}

// RequestLogger logs server errors and slow requests.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		cost := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", cost),
		}
		switch {
		case status >= 500 || cost > 2*time.Second:
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
			logger.Warn("Slow request or server error", fields...)
		default:
			logger.Debug("Request", fields...)
		}
	}
}
