package service

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/course_booking/internal/model"
)

// ErrCourseNotFound курс с таким id отсутствует
var ErrCourseNotFound = errors.New("lesson not found")

// ValidationError запрос не прошёл проверку, хранилище не трогали
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ReservationErrorKind причина, по которой не удалось зарезервировать места
type ReservationErrorKind int

const (
	ReservationInvalidItem ReservationErrorKind = iota + 1
	ReservationInsufficientSpaces
	ReservationNotFound
)

func (k ReservationErrorKind) String() string {
	switch k {
	case ReservationInvalidItem:
		return "invalid_item"
	case ReservationInsufficientSpaces:
		return "insufficient_spaces"
	case ReservationNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ReservationError резервирование отклонено; уже списанные места возвращены.
// Unreleased содержит позиции, которые вернуть не удалось.
type ReservationError struct {
	Kind       ReservationErrorKind
	CourseID   int64
	Unreleased []model.OrderItem
}

func (e *ReservationError) Error() string {
	switch e.Kind {
	case ReservationInvalidItem:
		return "Invalid item data"
	case ReservationNotFound:
		return fmt.Sprintf("Lesson id %d not found", e.CourseID)
	default:
		return fmt.Sprintf("Not enough spaces for lesson id %d", e.CourseID)
	}
}

// PersistenceError хранилище недоступно или запись не прошла
type PersistenceError struct {
	Op         string
	Err        error
	Unreleased []model.OrderItem
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnreleasedItems позиции, места по которым списаны без заказа
func UnreleasedItems(err error) []model.OrderItem {
	var rerr *ReservationError
	if errors.As(err, &rerr) {
		return rerr.Unreleased
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return perr.Unreleased
	}
	return nil
}
