package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/course_booking/internal/metrics"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Sender часть *bot.Bot, через которую уходят сообщения
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier отправляет алерты в чат операторов
type TelegramNotifier struct {
	sender  Sender
	chatID  int64
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewTelegramBot создаёт клиента без запроса getMe при старте
func NewTelegramBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

func NewTelegramNotifier(sender Sender, chatID int64, logger *zap.Logger) *TelegramNotifier {
	n := &TelegramNotifier{
		sender:  sender,
		chatID:  chatID,
		timeout: 5 * time.Second,
		logger:  logger,
	}

	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram-notifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.NotifierCircuitState.Set(stateValue(to))
			logger.Warn("Notifier circuit breaker state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	metrics.NotifierCircuitState.Set(0)

	return n
}

// CompensationFailed сообщает о местах, списанных без заказа
func (n *TelegramNotifier) CompensationFailed(ctx context.Context, alert service.CompensationAlert) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, err := n.breaker.Execute(func() (interface{}, error) {
		return n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      formatAlert(alert),
			ParseMode: models.ParseModeHTML,
		})
	})
	if err != nil {
		return fmt.Errorf("send compensation alert: %w", err)
	}

	n.logger.Info("Compensation alert sent", zap.String("order_ref", alert.OrderRef))
	return nil
}

func formatAlert(alert service.CompensationAlert) string {
	var sb strings.Builder
	sb.WriteString("⚠️ <b>Места не возвращены</b>\n")
	fmt.Fprintf(&sb, "Заказ: <code>%s</code>\n", htmlEscaper.Replace(alert.OrderRef))
	for _, item := range alert.Unreleased {
		fmt.Fprintf(&sb, "• курс %d: %d мест\n", item.CourseID, item.Quantity)
	}
	if alert.Cause != nil {
		fmt.Fprintf(&sb, "Причина: %s", htmlEscaper.Replace(alert.Cause.Error()))
	}
	return sb.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
