package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orders оформление и просмотр заказов
type Orders interface {
	PlaceOrder(ctx context.Context, req service.OrderRequest) (uuid.UUID, error)
	ListOrders(ctx context.Context) ([]*model.Order, error)
}

// Courses каталог курсов
type Courses interface {
	List(ctx context.Context) ([]*model.Course, error)
	Search(ctx context.Context, q string) ([]*model.Course, error)
	UpdateLesson(ctx context.Context, id int64, patch model.CoursePatch) (*model.Course, error)
	Seed(ctx context.Context, courses []*model.Course) (int, error)
}

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	orders  Orders
	courses Courses
	db      Pinger
	logger  *zap.Logger
}

func NewHandler(orders Orders, courses Courses, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		orders:  orders,
		courses: courses,
		db:      db,
		logger:  logger,
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) ready(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/courses
func (h *Handler) listCourses(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch courses")
		return
	}
	c.JSON(http.StatusOK, courses)
}

// GET /api/search?q=
func (h *Handler) searchCourses(c *gin.Context) {
	courses, err := h.courses.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err, "Search failed")
		return
	}
	c.JSON(http.StatusOK, courses)
}

// PUT /api/lessons/:id
func (h *Handler) updateLesson(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lesson id"})
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	patch, err := service.ParseCoursePatch(id, body)
	if err != nil {
		h.fail(c, err, "Failed to update lesson")
		return
	}

	course, err := h.courses.UpdateLesson(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, err, "Failed to update lesson")
		return
	}
	c.JSON(http.StatusOK, course)
}

// POST /api/courses/seed
func (h *Handler) seedCourses(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	var courses []*model.Course
	if err := json.Unmarshal(raw, &courses); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course data"})
		return
	}

	count, err := h.courses.Seed(c.Request.Context(), courses)
	if err != nil {
		h.fail(c, err, "Seed failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": count})
}

// GET /api/orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch orders")
		return
	}
	c.JSON(http.StatusOK, orders)
}

// POST /api/orders
func (h *Handler) placeOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// тело не объект: дальше его проверит валидация имени
		req = orderRequest{}
	}

	orderID, err := h.orders.PlaceOrder(c.Request.Context(), req.toService())
	if err != nil {
		h.fail(c, err, "Order creation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "orderId": orderID})
}

// fail переводит ошибку сервиса в ответ; детали 5xx остаются в логе
func (h *Handler) fail(c *gin.Context, err error, internalMsg string) {
	var (
		verr *service.ValidationError
		rerr *service.ReservationError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadRequest, gin.H{"error": rerr.Error()})
	case errors.Is(err, service.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Lesson not found"})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalMsg})
	}
}
