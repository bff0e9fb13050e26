package http

import (
	"time"

	"github.com/Freeeeeet/course_booking/internal/idempotency"
	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions необязательные части HTTP API
type RouterOptions struct {
	SeedEnabled bool
	CORSOrigins []string
	ImagesDir   string

	// Idempotency nil отключает Idempotency-Key для POST /api/orders
	Idempotency idempotency.Store
}

// NewRouter собирает gin.Engine со всеми маршрутами
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AccessLog(logger))
	r.Use(TraceContext())
	r.Use(metrics.PrometheusMiddleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/health", h.health)
	r.GET("/ready", h.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.ImagesDir != "" {
		r.Static("/images", opts.ImagesDir)
	}

	api := r.Group("/api")
	{
		api.GET("/courses", h.listCourses)
		api.GET("/search", h.searchCourses)
		api.PUT("/lessons/:id", h.updateLesson)
		api.GET("/orders", h.listOrders)

		orderHandlers := []gin.HandlerFunc{h.placeOrder}
		if opts.Idempotency != nil {
			orderHandlers = append([]gin.HandlerFunc{idempotency.Middleware(opts.Idempotency, logger)}, orderHandlers...)
		}
		api.POST("/orders", orderHandlers...)

		if opts.SeedEnabled {
			api.POST("/courses/seed", h.seedCourses)
		}
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "traceparent", "tracestate", idempotency.HeaderKey},
		ExposeHeaders: []string{idempotency.HeaderReplay},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
