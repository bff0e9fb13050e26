package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/Freeeeeet/course_booking/internal/model"
	"go.uber.org/zap"
)

// DefaultReleaseTimeout ограничение на компенсацию одного заказа
const DefaultReleaseTimeout = 5 * time.Second

// SpacesStore операции над местами курсов, которые нужны резервированию
type SpacesStore interface {
	// DecrementSpaces атомарно списывает qty мест, если их хватает
	DecrementSpaces(ctx context.Context, id int64, qty int) (bool, error)
	IncrementSpaces(ctx context.Context, id int64, qty int) error
	Exists(ctx context.Context, id int64) (bool, error)
}

// ReservedSet успешно списанные позиции в порядке списания
type ReservedSet []model.OrderItem

// ReservationEngine резервирует места по позициям заказа по одной и
// откатывает уже сделанное, если очередная позиция не прошла
type ReservationEngine struct {
	store          SpacesStore
	logger         *zap.Logger
	releaseTimeout time.Duration
}

func NewReservationEngine(store SpacesStore, logger *zap.Logger) *ReservationEngine {
	return &ReservationEngine{
		store:          store,
		logger:         logger,
		releaseTimeout: DefaultReleaseTimeout,
	}
}

// WithReleaseTimeout задаёт таймаут компенсации
func (e *ReservationEngine) WithReleaseTimeout(d time.Duration) *ReservationEngine {
	e.releaseTimeout = d
	return e
}

// Reserve списывает места по позициям в порядке items.
// При ошибке всё списанное ранее возвращается, оставшиеся позиции не трогаются.
func (e *ReservationEngine) Reserve(ctx context.Context, items []model.OrderItem) (ReservedSet, error) {
	if len(items) == 0 {
		return nil, &ReservationError{Kind: ReservationInvalidItem}
	}

	ledger := make(ReservedSet, 0, len(items))

	for _, item := range items {
		if item.CourseID <= 0 || item.Quantity <= 0 {
			return nil, &ReservationError{
				Kind:       ReservationInvalidItem,
				CourseID:   item.CourseID,
				Unreleased: e.Release(ctx, ledger),
			}
		}

		ok, err := e.store.DecrementSpaces(ctx, item.CourseID, item.Quantity)
		if err != nil {
			e.logger.Error("Failed to reserve spaces",
				zap.Int64("course_id", item.CourseID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			return nil, &PersistenceError{
				Op:         "reserve spaces",
				Err:        err,
				Unreleased: e.Release(ctx, ledger),
			}
		}

		if ok {
			ledger = append(ledger, item)
			continue
		}

		rerr := &ReservationError{
			Kind:     e.missKind(ctx, item.CourseID),
			CourseID: item.CourseID,
		}
		rerr.Unreleased = e.Release(ctx, ledger)

		e.logger.Info("Reservation rejected",
			zap.Int64("course_id", item.CourseID),
			zap.Int("quantity", item.Quantity),
			zap.Stringer("reason", rerr.Kind),
			zap.Int("released", len(ledger)-len(rerr.Unreleased)))

		return nil, rerr
	}

	return ledger, nil
}

// missKind различает отсутствующий курс и нехватку мест после неудачного списания
func (e *ReservationEngine) missKind(ctx context.Context, id int64) ReservationErrorKind {
	exists, err := e.store.Exists(ctx, id)
	if err != nil {
		e.logger.Warn("Failed to check course existence",
			zap.Int64("course_id", id),
			zap.Error(err))
		return ReservationInsufficientSpaces
	}
	if !exists {
		return ReservationNotFound
	}
	return ReservationInsufficientSpaces
}

// Release возвращает места по каждой записи ledger, продолжая после ошибок.
// Возвращает записи, которые вернуть не удалось.
func (e *ReservationEngine) Release(ctx context.Context, ledger ReservedSet) []model.OrderItem {
	if len(ledger) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.releaseTimeout)
	defer cancel()

	var unreleased []model.OrderItem
	for _, item := range ledger {
		metrics.CompensationsTotal.Inc()

		if err := e.store.IncrementSpaces(ctx, item.CourseID, item.Quantity); err != nil {
			metrics.CompensationFailures.Inc()
			e.logger.Error("Failed to release reserved spaces",
				zap.Int64("course_id", item.CourseID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			unreleased = append(unreleased, item)
		}
	}

	return unreleased
}
