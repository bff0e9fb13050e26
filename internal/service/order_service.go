package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderStore хранилище заказов; заказ и событие пишутся вместе
type OrderStore interface {
	Create(ctx context.Context, order *model.Order, event *outbox.Event) error
	List(ctx context.Context) ([]*model.Order, error)
}

// CompensationAlert места остались списанными без заказа
type CompensationAlert struct {
	OrderRef   string
	Unreleased []model.OrderItem
	Cause      error
}

// Notifier уведомляет операторов о сбоях компенсации
type Notifier interface {
	CompensationFailed(ctx context.Context, alert CompensationAlert) error
}

type OrderService struct {
	engine   *ReservationEngine
	orders   OrderStore
	notifier Notifier
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() uuid.UUID
}

func NewOrderService(engine *ReservationEngine, orders OrderStore, notifier Notifier, logger *zap.Logger) *OrderService {
	return &OrderService{
		engine:   engine,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("course-booking/orders"),
		now:      time.Now,
		newID:    uuid.New,
	}
}

// PlaceOrder проверяет заявку, резервирует места и сохраняет заказ.
// Если заказ сохранить не удалось, места возвращаются.
func (s *OrderService) PlaceOrder(ctx context.Context, req OrderRequest) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	req, err := req.Validate()
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(metrics.OrderValidationFailed).Inc()
		span.SetStatus(codes.Error, err.Error())
		return uuid.Nil, err
	}

	orderID := s.newID()
	span.SetAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.Int("order.items", len(req.Items)),
	)

	reserved, err := s.engine.Reserve(ctx, req.Items)
	if err != nil {
		s.fail(ctx, span, orderID, err)
		return uuid.Nil, err
	}

	if err := s.commit(ctx, orderID, req, reserved); err != nil {
		perr := &PersistenceError{
			Op:         "commit order",
			Err:        err,
			Unreleased: s.engine.Release(ctx, reserved),
		}
		s.fail(ctx, span, orderID, perr)
		return uuid.Nil, perr
	}

	metrics.OrdersTotal.WithLabelValues(metrics.OrderPlaced).Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", orderID.String()),
		zap.Int("items", len(reserved)))

	return orderID, nil
}

// Commit сохраняет заказ по уже зарезервированным позициям
func (s *OrderService) Commit(ctx context.Context, req OrderRequest, reserved ReservedSet) (uuid.UUID, error) {
	orderID := s.newID()
	if err := s.commit(ctx, orderID, req, reserved); err != nil {
		return uuid.Nil, &PersistenceError{Op: "commit order", Err: err}
	}
	return orderID, nil
}

func (s *OrderService) commit(ctx context.Context, orderID uuid.UUID, req OrderRequest, reserved ReservedSet) error {
	order := &model.Order{
		ID:        orderID,
		Name:      req.Name,
		Phone:     req.Phone,
		Items:     []model.OrderItem(reserved),
		CreatedAt: s.now().UTC(),
	}

	event, err := orderPlacedEvent(ctx, order)
	if err != nil {
		return err
	}

	return s.orders.Create(ctx, order, event)
}

func orderPlacedEvent(ctx context.Context, order *model.Order) (*outbox.Event, error) {
	payload, err := json.Marshal(model.OrderPlaced{
		OrderID:   order.ID,
		Name:      order.Name,
		Items:     order.Items,
		CreatedAt: order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return &outbox.Event{
		AggregateType: "order",
		AggregateID:   order.ID.String(),
		Type:          model.EventOrderPlaced,
		Payload:       payload,
		Traceparent:   carrier.Get("traceparent"),
	}, nil
}

func (s *OrderService) fail(ctx context.Context, span trace.Span, orderID uuid.UUID, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var rerr *ReservationError
	if errors.As(err, &rerr) {
		metrics.OrdersTotal.WithLabelValues(metrics.OrderReservationFailed).Inc()
	} else {
		metrics.OrdersTotal.WithLabelValues(metrics.OrderPersistenceFailed).Inc()
		s.logger.Error("Order placement failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	unreleased := UnreleasedItems(err)
	if len(unreleased) == 0 || s.notifier == nil {
		return
	}

	alert := CompensationAlert{
		OrderRef:   orderID.String(),
		Unreleased: unreleased,
		Cause:      err,
	}
	if nerr := s.notifier.CompensationFailed(context.WithoutCancel(ctx), alert); nerr != nil {
		s.logger.Error("Failed to notify about unreleased spaces",
			zap.String("order_id", orderID.String()),
			zap.Error(nerr))
	}
}

// ListOrders все заказы, старые первыми
func (s *OrderService) ListOrders(ctx context.Context) ([]*model.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}
