package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Поля курса, которые хранятся в отдельных колонках, а не в Extra
const (
	FieldID       = "id"
	FieldSubject  = "subject"
	FieldLocation = "location"
	FieldPrice    = "price"
	FieldSpaces   = "spaces"
)

// Границы значений, которые помещаются в колонки courses
const (
	MaxCourseID    = math.MaxInt64 // BIGINT
	MaxSpaces      = math.MaxInt32 // INTEGER, то же для quantity в заказе
	PriceScale     = 2             // NUMERIC(10,2)
	pricePrecision = 10
)

var maxPrice = decimal.New(1, pricePrecision-PriceScale)

// Course представляет занятие с ограниченным числом мест
type Course struct {
	ID        int64           `json:"id"` // стабильный идентификатор, не путать со служебным id хранилища
	Subject   string          `json:"subject"`
	Location  string          `json:"location"`
	Price     decimal.Decimal `json:"price"`
	Spaces    int             `json:"spaces"` // оставшиеся места, никогда не меньше нуля
	UpdatedAt time.Time       `json:"-"`

	// Остальные поля документа (image, icon и т.п.), хранятся как есть
	Extra map[string]any `json:"-"`
}

// MarshalJSON разворачивает Extra в тот же объект, что и основные поля
func (c Course) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		doc[k] = v
	}
	doc[FieldID] = c.ID
	doc[FieldSubject] = c.Subject
	doc[FieldLocation] = c.Location
	doc[FieldPrice] = json.Number(c.Price.String())
	doc[FieldSpaces] = c.Spaces
	return json.Marshal(doc)
}

// UnmarshalJSON раскладывает документ на известные поля и Extra
func (c *Course) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var course Course
	for key, value := range raw {
		var err error
		switch key {
		case FieldID:
			course.ID, err = decodeInteger(value, MaxCourseID)
		case FieldSubject:
			err = json.Unmarshal(value, &course.Subject)
		case FieldLocation:
			err = json.Unmarshal(value, &course.Location)
		case FieldPrice:
			err = json.Unmarshal(value, &course.Price)
		case FieldSpaces:
			var spaces int64
			spaces, err = decodeInteger(value, MaxSpaces)
			course.Spaces = int(spaces)
		default:
			var v any
			err = json.Unmarshal(value, &v)
			if course.Extra == nil {
				course.Extra = make(map[string]any)
			}
			course.Extra[key] = v
		}
		if err != nil {
			return fmt.Errorf("course field %q: %w", key, err)
		}
	}

	*c = course
	return nil
}

// Validate проверяет инварианты курса перед записью в хранилище
func (c *Course) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("course id must be positive")
	}
	if c.Spaces < 0 {
		return fmt.Errorf("course %d: spaces must not be negative", c.ID)
	}
	if c.Spaces > MaxSpaces {
		return fmt.Errorf("course %d: spaces out of range", c.ID)
	}
	if !ValidPrice(c.Price) {
		return fmt.Errorf("course %d: invalid price %s", c.ID, c.Price.String())
	}
	return nil
}

// ValidPrice проверяет что цена неотрицательна и помещается в колонку без округления
func ValidPrice(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(maxPrice) && d.Equal(d.Truncate(PriceScale))
}

// IntegerIn возвращает d как int64, если d целое и |d| <= limit
func IntegerIn(d decimal.Decimal, limit int64) (int64, bool) {
	if !d.IsInteger() || d.Abs().GreaterThan(decimal.NewFromInt(limit)) {
		return 0, false
	}
	return d.IntPart(), true
}

// decodeInteger принимает только целые JSON-числа (в том числе записанные как 3.0)
func decodeInteger(value json.RawMessage, limit int64) (int64, error) {
	var d decimal.Decimal
	if err := json.Unmarshal(value, &d); err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s is not an integer", d.String())
	}
	n, ok := IntegerIn(d, limit)
	if !ok {
		return 0, fmt.Errorf("%s is out of range", d.String())
	}
	return n, nil
}

// CoursePatch частичное обновление курса: nil означает "не менять"
type CoursePatch struct {
	Subject  *string
	Location *string
	Price    *decimal.Decimal
	Spaces   *int
	Extra    map[string]any // сливается с уже сохранёнными полями документа
}

// IsEmpty проверяет что в патче нет ни одного поля
func (p CoursePatch) IsEmpty() bool {
	return p.Subject == nil && p.Location == nil && p.Price == nil && p.Spaces == nil && len(p.Extra) == 0
}
