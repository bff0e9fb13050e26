package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN       string `mapstructure:"DB_DSN"`
	DBName      string `mapstructure:"DB_NAME"`
	Environment string `mapstructure:"ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	SeedEnabled bool     `mapstructure:"SEED_ENABLED"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	ImagesDir   string   `mapstructure:"IMAGES_DIR"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	OrdersTopic  string   `mapstructure:"ORDERS_TOPIC"`

	TelegramToken       string `mapstructure:"TELEGRAM_TOKEN"`
	TelegramAlertChatID int64  `mapstructure:"TELEGRAM_ALERT_CHAT_ID"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из источника переменных (os.Getenv или мапа в тестах)
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDSN:         getenv("DB_DSN"),
		DBName:        getenv("DB_NAME"),
		Environment:   getenv("ENV"),
		HTTPAddr:      getenv("HTTP_ADDR"),
		ImagesDir:     getenv("IMAGES_DIR"),
		RedisAddr:     getenv("REDIS_ADDR"),
		OrdersTopic:   getenv("ORDERS_TOPIC"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		CORSOrigins:   splitList(getenv("CORS_ORIGINS")),
		KafkaBrokers:  splitList(getenv("KAFKA_BROKERS")),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3000"
	}
	if cfg.OrdersTopic == "" {
		cfg.OrdersTopic = "orders.events"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	var err error
	cfg.SeedEnabled, err = parseBool(getenv("SEED_ENABLED"), !cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("SEED_ENABLED: %w", err)
	}
	cfg.IdempotencyTTL, err = parseDuration(getenv("IDEMPOTENCY_TTL"), 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
	}
	cfg.ShutdownTimeout, err = parseDuration(getenv("SHUTDOWN_TIMEOUT"), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if v := getenv("TELEGRAM_ALERT_CHAT_ID"); v != "" {
		cfg.TelegramAlertChatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_ALERT_CHAT_ID: %w", err)
		}
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// TelegramAlertsEnabled алерты уходят в Telegram только при заданных токене и чате
func (c *Config) TelegramAlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramAlertChatID != 0
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
