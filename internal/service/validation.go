package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/shopspring/decimal"
)

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z\s]{2,}$`)
	phonePattern = regexp.MustCompile(`^\d{7,15}$`)
)

// OrderRequest заказ в том виде, в каком его прислал клиент
type OrderRequest struct {
	Name  string
	Phone string
	Items []model.OrderItem
}

// Validate проверяет имя, телефон и наличие позиций. Позиции по
// отдельности проверяет ReservationEngine, чтобы сохранить порядок
// обработки и откат уже зарезервированного.
func (r OrderRequest) Validate() (OrderRequest, error) {
	name := strings.TrimSpace(r.Name)
	if !namePattern.MatchString(name) {
		return r, newValidationError("name", "Invalid name")
	}

	phone := strings.TrimSpace(r.Phone)
	if !phonePattern.MatchString(phone) {
		return r, newValidationError("phone", "Invalid phone")
	}

	if len(r.Items) == 0 {
		return r, newValidationError("items", "No items provided")
	}

	return OrderRequest{Name: name, Phone: phone, Items: r.Items}, nil
}

// ParseCoursePatch разбирает тело PUT /api/lessons/:id.
// Известные поля проверяются по типу, остальные уходят в Extra.
func ParseCoursePatch(id int64, body map[string]json.RawMessage) (model.CoursePatch, error) {
	var patch model.CoursePatch

	for key, value := range body {
		switch key {
		case model.FieldID:
			var bodyID decimal.Decimal
			if err := json.Unmarshal(value, &bodyID); err != nil || !bodyID.Equal(decimal.NewFromInt(id)) {
				return patch, newValidationError(key, "Lesson id cannot be changed")
			}
		case model.FieldSubject, model.FieldLocation:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return patch, newValidationError(key, fmt.Sprintf("Invalid %s", key))
			}
			if key == model.FieldSubject {
				patch.Subject = &s
			} else {
				patch.Location = &s
			}
		case model.FieldPrice:
			var price decimal.Decimal
			if err := json.Unmarshal(value, &price); err != nil || string(value) == "null" || !model.ValidPrice(price) {
				return patch, newValidationError(key, "Invalid price")
			}
			patch.Price = &price
		case model.FieldSpaces:
			var spaces decimal.Decimal
			if err := json.Unmarshal(value, &spaces); err != nil || string(value) == "null" || spaces.IsNegative() {
				return patch, newValidationError(key, "Invalid spaces")
			}
			n, ok := model.IntegerIn(spaces, model.MaxSpaces)
			if !ok {
				return patch, newValidationError(key, "Invalid spaces")
			}
			spacesN := int(n)
			patch.Spaces = &spacesN
		default:
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return patch, newValidationError(key, fmt.Sprintf("Invalid %s", key))
			}
			if patch.Extra == nil {
				patch.Extra = make(map[string]any)
			}
			patch.Extra[key] = v
		}
	}

	if patch.IsEmpty() {
		return patch, newValidationError("body", "No fields to update")
	}

	return patch, nil
}

// validateSeed проверяет набор курсов для полной замены коллекции
func validateSeed(courses []*model.Course) error {
	if len(courses) == 0 {
		return newValidationError("body", "No data provided")
	}

	seen := make(map[int64]struct{}, len(courses))
	for i, c := range courses {
		if c == nil {
			return newValidationError("body", fmt.Sprintf("Course #%d is empty", i))
		}
		if err := c.Validate(); err != nil {
			return newValidationError("body", fmt.Sprintf("Invalid course #%d: %v", i, err))
		}
		if _, dup := seen[c.ID]; dup {
			return newValidationError("body", fmt.Sprintf("Duplicate course id %d", c.ID))
		}
		seen[c.ID] = struct{}{}
	}

	return nil
}
