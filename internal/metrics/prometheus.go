package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Статусы для OrdersTotal
const (
	OrderPlaced            = "placed"
	OrderValidationFailed  = "validation_failed"
	OrderReservationFailed = "reservation_failed"
	OrderPersistenceFailed = "persistence_failed"
)

var (
	// RequestsTotal количество HTTP-запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration длительность HTTP-запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// OrdersTotal попытки оформления заказа по исходу
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of order placement attempts by outcome",
		},
		[]string{"status"},
	)

	// CompensationsTotal компенсирующие возвраты мест
	CompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_compensations_total",
			Help: "Total number of compensating space releases",
		},
	)

	// CompensationFailures возвраты мест, которые не удалось выполнить
	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_compensation_failures_total",
			Help: "Total number of compensating releases that failed",
		},
	)

	// CourseSpaces свободные места по курсам
	CourseSpaces = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "course_spaces",
			Help: "Free spaces per course",
		},
		[]string{"course_id"},
	)

	// OutboxDispatched результаты отправки событий outbox
	OutboxDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatched_total",
			Help: "Total number of outbox events dispatched by result",
		},
		[]string{"result"},
	)

	// NotifierCircuitState состояние circuit breaker уведомлений (0=closed, 1=open, 2=half-open)
	NotifierCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_circuit_state",
			Help: "Notifier circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
)

// PrometheusMiddleware собирает метрики по каждому запросу
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}
