package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
)

var errStoreDown = errors.New("store unavailable")

// memCourses хранит курсы в памяти и повторяет семантику CourseRepository
type memCourses struct {
	mu      sync.Mutex
	courses map[int64]*model.Course

	failDecrement map[int64]error
	failIncrement map[int64]error
	failExists    error
	failList      error

	decrements []int64
	increments []model.OrderItem
}

func newMemCourses(courses ...*model.Course) *memCourses {
	m := &memCourses{
		courses:       make(map[int64]*model.Course),
		failDecrement: make(map[int64]error),
		failIncrement: make(map[int64]error),
	}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return m
}

func (m *memCourses) spaces(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[id].Spaces
}

func (m *memCourses) DecrementSpaces(_ context.Context, id int64, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decrements = append(m.decrements, id)
	if err := m.failDecrement[id]; err != nil {
		return false, err
	}

	c, ok := m.courses[id]
	if !ok || c.Spaces < qty {
		return false, nil
	}
	c.Spaces -= qty
	return true, nil
}

func (m *memCourses) IncrementSpaces(_ context.Context, id int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.increments = append(m.increments, model.OrderItem{CourseID: id, Quantity: qty})
	if err := m.failIncrement[id]; err != nil {
		return err
	}

	c, ok := m.courses[id]
	if !ok {
		return errors.New("course not found")
	}
	c.Spaces += qty
	return nil
}

func (m *memCourses) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failExists != nil {
		return false, m.failExists
	}
	_, ok := m.courses[id]
	return ok, nil
}

func (m *memCourses) List(_ context.Context) ([]*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failList != nil {
		return nil, m.failList
	}
	return m.sorted(func(*model.Course) bool { return true }), nil
}

func (m *memCourses) Search(_ context.Context, q string) ([]*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q = strings.ToLower(q)
	return m.sorted(func(c *model.Course) bool {
		return strings.Contains(strings.ToLower(c.Subject), q) ||
			strings.Contains(strings.ToLower(c.Location), q)
	}), nil
}

func (m *memCourses) Update(_ context.Context, id int64, patch model.CoursePatch) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return nil, nil
	}
	if patch.Subject != nil {
		c.Subject = *patch.Subject
	}
	if patch.Location != nil {
		c.Location = *patch.Location
	}
	if patch.Price != nil {
		c.Price = *patch.Price
	}
	if patch.Spaces != nil {
		c.Spaces = *patch.Spaces
	}
	for k, v := range patch.Extra {
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}
	return c, nil
}

func (m *memCourses) ReplaceAll(_ context.Context, courses []*model.Course) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.courses = make(map[int64]*model.Course, len(courses))
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return len(m.courses), nil
}

func (m *memCourses) sorted(keep func(*model.Course) bool) []*model.Course {
	out := make([]*model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memOrders хранилище заказов в памяти
type memOrders struct {
	mu      sync.Mutex
	orders  []*model.Order
	events  []*outbox.Event
	failErr error
}

func (m *memOrders) Create(_ context.Context, order *model.Order, event *outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	m.orders = append(m.orders, order)
	m.events = append(m.events, event)
	return nil
}

func (m *memOrders) List(_ context.Context) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	return append([]*model.Order(nil), m.orders...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []CompensationAlert
}

func (n *recordingNotifier) CompensationFailed(_ context.Context, alert CompensationAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}
