package app

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/slotswap/internal/config"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/go-telegram/bot"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier - итоговый sink с ресурсами, которые нужно закрыть
type Notifier struct {
	notify.Sink
	closers []func()
}

// NewNotifier собирает доставку уведомлений из настроенных каналов.
// Лог включён всегда; Redis и Telegram - если заданы в конфиге.
func NewNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Notifier, error) {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	n := &Notifier{}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		sinks = append(sinks, notify.NewRedisSink(rdb, logger))
		n.closers = append(n.closers, func() { rdb.Close() })
		logger.Info("Redis notifications enabled")
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		sinks = append(sinks, notify.NewTelegramSink(b, logger))
		logger.Info("Telegram notifications enabled")
	}

	async := notify.NewAsync(sinks, 1024, logger)
	// очередь дренируется раньше, чем закрываются транспорты
	n.closers = append([]func(){async.Close}, n.closers...)
	n.Sink = async

	return n, nil
}

func (n *Notifier) Close() {
	for _, c := range n.closers {
		c()
	}
	n.closers = nil
}
