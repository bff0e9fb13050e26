//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/course_booking/internal/app"
	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/Freeeeeet/course_booking/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("course_app"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	migrator, err := app.NewMigrator(testPool, migrations.FS, zap.NewNop())
	if err == nil {
		err = migrator.Run(ctx)
		_ = migrator.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = pgC.Terminate(ctx)
	os.Exit(code)
}

func seedCourses(t *testing.T, courses ...*model.Course) *CourseRepository {
	t.Helper()
	repo := NewCourseRepository(testPool, zap.NewNop())
	_, err := repo.ReplaceAll(context.Background(), courses)
	require.NoError(t, err)
	return repo
}

func spacesOf(t *testing.T, repo *CourseRepository, id int64) int {
	t.Helper()
	c, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c.Spaces
}

func TestCourseRepository_ConditionalDecrement(t *testing.T) {
	repo := seedCourses(t, &model.Course{ID: 1, Subject: "Maths", Location: "Hendon", Spaces: 3})
	ctx := context.Background()

	ok, err := repo.DecrementSpaces(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementSpaces(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok, "only one space left")
	assert.Equal(t, 1, spacesOf(t, repo, 1))

	ok, err = repo.DecrementSpaces(ctx, 404, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.IncrementSpaces(ctx, 1, 2))
	assert.Equal(t, 3, spacesOf(t, repo, 1))
	assert.Error(t, repo.IncrementSpaces(ctx, 404, 1))
}

func TestReservation_ConcurrentOrdersNeverOverbook(t *testing.T) {
	repo := seedCourses(t,
		&model.Course{ID: 1, Subject: "Maths", Location: "Hendon", Spaces: 10},
		&model.Course{ID: 2, Subject: "Art", Location: "Barnet", Spaces: 100},
	)
	engine := service.NewReservationEngine(repo, zap.NewNop())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), []model.OrderItem{
				{CourseID: 2, Quantity: 1},
				{CourseID: 1, Quantity: 1},
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	assert.Equal(t, 0, spacesOf(t, repo, 1))
	assert.Equal(t, 90, spacesOf(t, repo, 2))
}

func TestReservation_ScenarioRestoresFirstCourse(t *testing.T) {
	repo := seedCourses(t,
		&model.Course{ID: 1, Subject: "Maths", Location: "Hendon", Spaces: 5},
		&model.Course{ID: 2, Subject: "Art", Location: "Barnet", Spaces: 0},
	)
	engine := service.NewReservationEngine(repo, zap.NewNop())

	_, err := engine.Reserve(context.Background(), []model.OrderItem{
		{CourseID: 1, Quantity: 2},
		{CourseID: 2, Quantity: 1},
	})

	var rerr *service.ReservationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, service.ReservationInsufficientSpaces, rerr.Kind)
	assert.Equal(t, 5, spacesOf(t, repo, 1))
}

func TestCourseRepository_Search(t *testing.T) {
	repo := seedCourses(t,
		&model.Course{ID: 1, Subject: "Maths", Location: "Hendon", Price: decimal.NewFromInt(100), Spaces: 5},
		&model.Course{ID: 2, Subject: "English", Location: "Colindale", Price: decimal.NewFromInt(5), Spaces: 1},
		&model.Course{ID: 3, Subject: "100% Art", Location: "Barnet", Price: decimal.RequireFromString("7.5"), Spaces: 2},
	)
	ctx := context.Background()

	got, err := repo.Search(ctx, "5")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)

	got, err = repo.Search(ctx, "%")
	require.NoError(t, err)
	require.Len(t, got, 1, "percent is matched literally")
	assert.Equal(t, int64(3), got[0].ID)

	got, err = repo.Search(ctx, "7.5")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.Search(ctx, "HEND")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.Search(ctx, "3000000000")
	require.NoError(t, err, "numbers past INTEGER must not break the spaces match")
	assert.Empty(t, got)

	got, err = repo.Search(ctx, "18446744073709551621")
	require.NoError(t, err)
	assert.Empty(t, got, "values past int64 must not wrap onto small spaces")
}

func TestCourseRepository_UpdateMergesExtra(t *testing.T) {
	repo := seedCourses(t, &model.Course{
		ID: 1, Subject: "Maths", Location: "Hendon", Spaces: 5,
		Extra: map[string]any{"image": "maths.png"},
	})
	ctx := context.Background()

	price := decimal.RequireFromString("19.99")
	got, err := repo.Update(ctx, 1, model.CoursePatch{
		Price: &price,
		Extra: map[string]any{"icon": "calc"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Price.Equal(price))
	assert.Equal(t, "maths.png", got.Extra["image"])
	assert.Equal(t, "calc", got.Extra["icon"])

	got, err = repo.Update(ctx, 99, model.CoursePatch{Price: &price})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderRepository_CreateWritesOutbox(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	events := NewOutboxRepository(testPool)

	_, err := testPool.Exec(ctx, `DELETE FROM outbox`)
	require.NoError(t, err)

	order := &model.Order{
		ID:        uuid.New(),
		Name:      "Ada",
		Phone:     "0712345678",
		Items:     []model.OrderItem{{CourseID: 1, Quantity: 2}},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	payload, err := json.Marshal(map[string]string{"orderId": order.ID.String()})
	require.NoError(t, err)

	err = orders.Create(ctx, order, &outbox.Event{
		AggregateType: "order",
		AggregateID:   order.ID.String(),
		Type:          model.EventOrderPlaced,
		Payload:       payload,
	})
	require.NoError(t, err)

	stored, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.Items, stored.Items)

	missing, err := orders.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	batch, err := events.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, order.ID.String(), batch[0].AggregateID)

	again, err := events.LockBatch(ctx, "relay-b", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are not handed out twice")

	for i := 0; i < outbox.MaxAttempts; i++ {
		require.NoError(t, events.MarkFailed(ctx, batch[0].ID, "broker down"))
	}

	var status string
	require.NoError(t, testPool.QueryRow(ctx, `SELECT status FROM outbox WHERE id = $1`, batch[0].ID).Scan(&status))
	assert.Equal(t, string(outbox.StatusFailed), status)
}
