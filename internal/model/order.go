package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem одна позиция заказа: сколько мест нужно на курсе
type OrderItem struct {
	CourseID int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// Order оформленный заказ, после создания не меняется
type Order struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}

// OrderPlaced событие для внешних подписчиков (без телефона клиента)
type OrderPlaced struct {
	OrderID   uuid.UUID   `json:"orderId"`
	Name      string      `json:"name"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}

// EventOrderPlaced тип события в outbox
const EventOrderPlaced = "OrderPlaced"
