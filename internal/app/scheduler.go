package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"go.uber.org/zap"
)

// CourseLister источник курсов для метрики свободных мест
type CourseLister interface {
	List(ctx context.Context) ([]*model.Course, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	courses       CourseLister
	relay         *outbox.Relay
	gaugeInterval time.Duration
	logger        *zap.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewScheduler создаёт планировщик; relay может быть nil, если брокер не настроен
func NewScheduler(courses CourseLister, relay *outbox.Relay, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		courses:       courses,
		relay:         relay,
		gaugeInterval: time.Minute,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Bool("outbox_relay", s.relay != nil))

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-s.stopChan:
		case <-ctx.Done():
		}
	}()

	s.wg.Add(1)
	go s.runSpacesGaugeTask(ctx)

	if s.relay != nil {
		s.relay.OnResult = func(res outbox.Result) {
			metrics.OutboxDispatched.WithLabelValues("sent").Add(float64(res.Sent))
			metrics.OutboxDispatched.WithLabelValues("failed").Add(float64(res.Failed))
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.relay.Run(ctx); err != nil {
				s.logger.Error("Outbox relay stopped with error", zap.Error(err))
			}
		}()
	}
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runSpacesGaugeTask периодически обновляет метрику course_spaces
func (s *Scheduler) runSpacesGaugeTask(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.refreshSpaces(ctx)

	ticker := time.NewTicker(s.gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshSpaces(ctx)
		case <-ctx.Done():
			s.logger.Info("Spaces gauge task stopped")
			return
		}
	}
}

func (s *Scheduler) refreshSpaces(ctx context.Context) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		s.logger.Error("Failed to refresh course spaces", zap.Error(err))
		return
	}

	metrics.CourseSpaces.Reset()
	for _, c := range courses {
		metrics.CourseSpaces.WithLabelValues(strconv.FormatInt(c.ID, 10)).Set(float64(c.Spaces))
	}
}
