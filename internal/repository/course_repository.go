package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const courseColumns = `id, subject, location, price::text, spaces, extra, updated_at`

type CourseRepository struct {
	*base.Repository
	logger *zap.Logger
}

func NewCourseRepository(pool *pgxpool.Pool, logger *zap.Logger) *CourseRepository {
	return &CourseRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// List возвращает все курсы
func (r *CourseRepository) List(ctx context.Context) ([]*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses ORDER BY id`

	rows, err := r.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	return scanCourses(rows)
}

// Search ищет курсы по подстроке в subject/location; числовой запрос
// дополнительно сравнивается с ценой и количеством мест
func (r *CourseRepository) Search(ctx context.Context, q string) ([]*model.Course, error) {
	args := []any{"%" + escapeLike(q) + "%"}
	conds := []string{
		`subject ILIKE $1 ESCAPE '\'`,
		`location ILIKE $1 ESCAPE '\'`,
	}

	if num, err := decimal.NewFromString(q); err == nil {
		args = append(args, num.String())
		conds = append(conds, fmt.Sprintf("price = $%d::text::numeric", len(args)))

		// число за пределами INTEGER не может совпасть с spaces
		if spaces, ok := model.IntegerIn(num, model.MaxSpaces); ok {
			args = append(args, spaces)
			conds = append(conds, fmt.Sprintf("spaces = $%d", len(args)))
		}
	}

	query := `SELECT ` + courseColumns + ` FROM courses WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY id`

	rows, err := r.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search courses: %w", err)
	}
	defer rows.Close()

	return scanCourses(rows)
}

// GetByID получает курс по его id
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	course, err := scanCourse(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course by id: %w", err)
	}

	return course, nil
}

// Exists проверяет существование курса
func (r *CourseRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check course exists: %w", err)
	}
	return exists, nil
}

// DecrementSpaces списывает qty мест, только если их хватает.
// Проверка и запись выполняются одним UPDATE, поэтому параллельные
// заказы не могут увести spaces в минус.
func (r *CourseRepository) DecrementSpaces(ctx context.Context, id int64, qty int) (bool, error) {
	query := `
		UPDATE courses
		SET spaces = spaces - $2, updated_at = now()
		WHERE id = $1 AND spaces >= $2
	`

	affected, err := r.ExecAffected(ctx, query, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement spaces: %w", err)
	}

	return affected == 1, nil
}

// IncrementSpaces возвращает qty мест без условий (компенсация)
func (r *CourseRepository) IncrementSpaces(ctx context.Context, id int64, qty int) error {
	query := `
		UPDATE courses
		SET spaces = spaces + $2, updated_at = now()
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("increment spaces: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("increment spaces: course %d not found", id)
	}

	return nil
}

// Update применяет частичное обновление; (nil, nil) если курса нет
func (r *CourseRepository) Update(ctx context.Context, id int64, patch model.CoursePatch) (*model.Course, error) {
	args := []any{id}
	sets := []string{"updated_at = now()"}
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Subject != nil {
		set("subject = $%d", *patch.Subject)
	}
	if patch.Location != nil {
		set("location = $%d", *patch.Location)
	}
	if patch.Price != nil {
		set("price = $%d::text::numeric", patch.Price.String())
	}
	if patch.Spaces != nil {
		set("spaces = $%d", *patch.Spaces)
	}
	if len(patch.Extra) > 0 {
		set("extra = extra || $%d::jsonb", patch.Extra)
	}

	query := `UPDATE courses SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + courseColumns

	course, err := scanCourse(r.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update course: %w", err)
	}

	r.logger.Info("Course updated",
		zap.Int64("course_id", id),
		zap.Int("fields", len(sets)-1))

	return course, nil
}

// ReplaceAll заменяет всю коллекцию курсов одной транзакцией
func (r *CourseRepository) ReplaceAll(ctx context.Context, courses []*model.Course) (int, error) {
	var count int

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM courses`); err != nil {
			return fmt.Errorf("delete courses: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range courses {
			extra := c.Extra
			if extra == nil {
				extra = map[string]any{}
			}
			batch.Queue(`
				INSERT INTO courses (id, subject, location, price, spaces, extra)
				VALUES ($1, $2, $3, $4::text::numeric, $5, $6)`,
				c.ID, c.Subject, c.Location, c.Price.String(), c.Spaces, extra)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert courses: %w", err)
		}

		return tx.QueryRow(ctx, `SELECT count(*) FROM courses`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("replace courses: %w", err)
	}

	r.logger.Info("Courses replaced", zap.Int("count", count))

	return count, nil
}

func scanCourse(row pgx.Row) (*model.Course, error) {
	var (
		course model.Course
		price  string
	)
	err := row.Scan(
		&course.ID,
		&course.Subject,
		&course.Location,
		&price,
		&course.Spaces,
		&course.Extra,
		&course.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	course.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}

	return &course, nil
}

func scanCourses(rows pgx.Rows) ([]*model.Course, error) {
	courses := make([]*model.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}

	return courses, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
