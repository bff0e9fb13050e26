package service

import (
	"context"
	"strings"

	"github.com/Freeeeeet/course_booking/internal/model"
	"go.uber.org/zap"
)

// CourseStore хранилище курсов
type CourseStore interface {
	List(ctx context.Context) ([]*model.Course, error)
	Search(ctx context.Context, q string) ([]*model.Course, error)
	Update(ctx context.Context, id int64, patch model.CoursePatch) (*model.Course, error)
	ReplaceAll(ctx context.Context, courses []*model.Course) (int, error)
}

type CourseService struct {
	courses CourseStore
	logger  *zap.Logger
}

func NewCourseService(courses CourseStore, logger *zap.Logger) *CourseService {
	return &CourseService{courses: courses, logger: logger}
}

// List возвращает все курсы
func (s *CourseService) List(ctx context.Context) ([]*model.Course, error) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list courses", Err: err}
	}
	return courses, nil
}

// Search ищет курсы; пустой запрос даёт пустой список
func (s *CourseService) Search(ctx context.Context, q string) ([]*model.Course, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*model.Course{}, nil
	}

	courses, err := s.courses.Search(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "search courses", Err: err}
	}
	return courses, nil
}

// UpdateLesson частично обновляет курс
func (s *CourseService) UpdateLesson(ctx context.Context, id int64, patch model.CoursePatch) (*model.Course, error) {
	if id <= 0 {
		return nil, newValidationError("id", "Invalid lesson id")
	}
	if patch.IsEmpty() {
		return nil, newValidationError("body", "No fields to update")
	}

	course, err := s.courses.Update(ctx, id, patch)
	if err != nil {
		return nil, &PersistenceError{Op: "update course", Err: err}
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	return course, nil
}

// Seed полностью заменяет коллекцию курсов
func (s *CourseService) Seed(ctx context.Context, courses []*model.Course) (int, error) {
	if err := validateSeed(courses); err != nil {
		return 0, err
	}

	count, err := s.courses.ReplaceAll(ctx, courses)
	if err != nil {
		return 0, &PersistenceError{Op: "seed courses", Err: err}
	}

	s.logger.Info("Courses seeded", zap.Int("count", count))
	return count, nil
}
