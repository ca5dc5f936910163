package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink публикует события в канал пользователя, откуда их забирают
// realtime-шлюзы
type RedisSink struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

type RedisSinkOption func(*RedisSink)

func WithChannelPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisSink(rdb *redis.Client, logger *zap.Logger, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		rdb:    rdb,
		prefix: "slotswap",
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel возвращает pub/sub канал пользователя
func (s *RedisSink) Channel(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *RedisSink) Notify(ctx context.Context, ev Event) {
	if s == nil || s.rdb == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("Failed to encode notification", zap.Error(err))
		return
	}

	if err := s.rdb.Publish(ctx, s.Channel(ev.Audience), data).Err(); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("audience", ev.Audience),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
