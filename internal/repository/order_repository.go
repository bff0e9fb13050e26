package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/Freeeeeet/course_booking/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	*base.Repository
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{Repository: base.NewRepository(pool)}
}

// Create сохраняет заказ и событие для outbox в одной транзакции
func (r *OrderRepository) Create(ctx context.Context, order *model.Order, event *outbox.Event) error {
	return r.InTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO orders (id, name, phone, items, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`

		_, err := tx.Exec(ctx, query,
			order.ID,
			order.Name,
			order.Phone,
			order.Items,
			order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if event == nil {
			return nil
		}

		headers := event.Headers
		if headers == nil {
			headers = map[string]string{}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
			event.AggregateType,
			event.AggregateID,
			event.Type,
			event.Payload,
			headers,
			event.Traceparent,
		)
		if err != nil {
			return fmt.Errorf("create outbox event: %w", err)
		}

		return nil
	})
}

// GetByID получает заказ по ID
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `
		SELECT id, name, phone, items, created_at
		FROM orders
		WHERE id = $1
	`

	var order model.Order
	err := r.Pool().QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.Name,
		&order.Phone,
		&order.Items,
		&order.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	return &order, nil
}

// List получает все заказы, новые в конце
func (r *OrderRepository) List(ctx context.Context) ([]*model.Order, error) {
	query := `
		SELECT id, name, phone, items, created_at
		FROM orders
		ORDER BY created_at
	`

	rows, err := r.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*model.Order, 0)
	for rows.Next() {
		var order model.Order
		err := rows.Scan(
			&order.ID,
			&order.Name,
			&order.Phone,
			&order.Items,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}
