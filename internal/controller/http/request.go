package http

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/shopspring/decimal"
)

// scalar принимает JSON-строку или число и хранит текстовое значение
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		// объекты, массивы и bool считаются пустыми и не пройдут проверку
		*s = ""
		return nil
	}
	*s = scalar(num.String())
	return nil
}

// positiveInt возвращает целое из (0, limit], иначе 0
func (s scalar) positiveInt(limit int64) int64 {
	d, err := decimal.NewFromString(strings.TrimSpace(string(s)))
	if err != nil || !d.IsPositive() {
		return 0
	}
	n, _ := model.IntegerIn(d, limit)
	return n
}

type orderItemRequest struct {
	ID       scalar `json:"id"`
	Quantity scalar `json:"quantity"`
}

// orderItems не массив или элемент не объект не ломают разбор тела:
// пустой список отклонит валидация, пустой элемент резервирование
type orderItems []orderItemRequest

func (items *orderItems) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*items = nil
		return nil
	}

	out := make(orderItems, len(raw))
	for i, elem := range raw {
		var it orderItemRequest
		if err := json.Unmarshal(elem, &it); err == nil {
			out[i] = it
		}
	}
	*items = out
	return nil
}

type orderRequest struct {
	Name  scalar     `json:"name"`
	Phone scalar     `json:"phone"`
	Items orderItems `json:"items"`
}

// toService переводит тело запроса в заявку; непригодные id и quantity
// становятся нулями, их отклонит резервирование
func (r orderRequest) toService() service.OrderRequest {
	items := make([]model.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, model.OrderItem{
			CourseID: it.ID.positiveInt(model.MaxCourseID),
			Quantity: int(it.Quantity.positiveInt(model.MaxSpaces)),
		})
	}
	return service.OrderRequest{
		Name:  string(r.Name),
		Phone: string(r.Phone),
		Items: items,
	}
}
