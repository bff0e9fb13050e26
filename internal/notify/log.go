package notify

import (
	"context"

	"github.com/Freeeeeet/course_booking/internal/service"
	"go.uber.org/zap"
)

// LogNotifier пишет алерт в лог, когда Telegram не настроен
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) CompensationFailed(_ context.Context, alert service.CompensationAlert) error {
	n.logger.Error("Spaces left reserved without an order",
		zap.String("order_ref", alert.OrderRef),
		zap.Any("unreleased", alert.Unreleased),
		zap.Error(alert.Cause))
	return nil
}
