package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Freeeeeet/course_booking/internal/app"
	"github.com/Freeeeeet/course_booking/internal/config"
	"github.com/Freeeeeet/course_booking/internal/model"
	"github.com/Freeeeeet/course_booking/internal/repository"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/Freeeeeet/course_booking/migrations"
	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	file := flag.String("file", "src/info.json", "JSON file with courses ({\"Courses\": [...]} or a bare array)")
	api := flag.String("api", "", "base URL of a running API; seeds through POST /api/courses/seed instead of the database")
	flag.Parse()

	logger := app.NewLogger(os.Getenv("ENV"))
	defer logger.Sync()

	courses, err := loadCourses(*file)
	if err != nil {
		logger.Error("Failed to read seed file", zap.String("file", *file), zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var count int
	if *api != "" {
		count, err = seedThroughAPI(ctx, resty.New().SetTimeout(30*time.Second), *api, courses)
	} else {
		count, err = seedDatabase(ctx, logger, courses)
	}
	if err != nil {
		logger.Error("Seeding failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Seed complete", zap.Int("documents", count))
}

// loadCourses читает {"Courses": [...]} или просто массив курсов
func loadCourses(path string) ([]*model.Course, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var courses []*model.Course
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &courses)
	} else {
		var doc struct {
			Courses []*model.Course `json:"Courses"`
		}
		err = json.Unmarshal(raw, &doc)
		courses = doc.Courses
	}
	if err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if len(courses) == 0 {
		return nil, errors.New("no courses found in seed file")
	}
	return courses, nil
}

func seedDatabase(ctx context.Context, logger *zap.Logger, courses []*model.Course) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 0, err
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return 0, fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return 0, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return 0, err
	}

	svc := service.NewCourseService(repository.NewCourseRepository(pool, logger), logger)
	return svc.Seed(ctx, courses)
}

type seedResponse struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error"`
}

func seedThroughAPI(ctx context.Context, client *resty.Client, baseURL string, courses []*model.Course) (int, error) {
	var result, failure seedResponse

	resp, err := client.R().
		SetContext(ctx).
		SetBody(courses).
		SetResult(&result).
		SetError(&failure).
		Post(strings.TrimRight(baseURL, "/") + "/api/courses/seed")
	if err != nil {
		return 0, fmt.Errorf("post seed: %w", err)
	}

	if resp.IsError() {
		if failure.Error != "" {
			return 0, fmt.Errorf("seed rejected (%d): %s", resp.StatusCode(), failure.Error)
		}
		return 0, fmt.Errorf("seed rejected: %s", resp.Status())
	}

	return result.Count, nil
}
