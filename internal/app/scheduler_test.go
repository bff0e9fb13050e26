package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCourses struct {
	courses []*model.Course
	err     error
	calls   atomic.Int32
}

func (s *staticCourses) List(context.Context) ([]*model.Course, error) {
	s.calls.Add(1)
	return s.courses, s.err
}

type emptyOutbox struct {
	locks atomic.Int32
}

func (o *emptyOutbox) LockBatch(context.Context, string, int, time.Duration) ([]outbox.Event, error) {
	o.locks.Add(1)
	return nil, nil
}
func (o *emptyOutbox) MarkSent(context.Context, []int64) error { return nil }
func (o *emptyOutbox) MarkFailed(context.Context, int64, string) error { return nil }
func (o *emptyOutbox) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Dispatch(context.Context, outbox.Event) error { return nil }

func TestScheduler_RefreshesSpacesGauge(t *testing.T) {
	courses := &staticCourses{courses: []*model.Course{
		{ID: 1, Spaces: 5},
		{ID: 2, Spaces: 0},
	}}
	s := NewScheduler(courses, nil, zap.NewNop())

	s.refreshSpaces(context.Background())

	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.CourseSpaces.WithLabelValues("1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.CourseSpaces.WithLabelValues("2")))
}

func TestScheduler_RefreshErrorKeepsRunning(t *testing.T) {
	courses := &staticCourses{err: errors.New("db down")}
	s := NewScheduler(courses, nil, zap.NewNop())

	s.refreshSpaces(context.Background())
	assert.Equal(t, int32(1), courses.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	courses := &staticCourses{}
	store := &emptyOutbox{}
	relay := outbox.NewRelay(zap.NewNop(), store, nopPublisher{}, "test-relay")

	s := NewScheduler(courses, relay, zap.NewNop())
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return courses.calls.Load() >= 1 && store.locks.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.NotNil(t, relay.OnResult)
}
