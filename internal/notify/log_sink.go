package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink пишет каждое событие в лог
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, ev Event) {
	s.logger.Info("Notification",
		zap.String("audience", ev.Audience),
		zap.String("kind", string(ev.Kind)),
		zap.Any("payload", ev.Payload),
	)
}
