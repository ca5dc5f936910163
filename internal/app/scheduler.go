package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/slotswap/internal/service"
	"go.uber.org/zap"
)

// Scheduler управляет фоновыми задачами: очистка корзины,
// предупреждения об истечении и просроченные заявки
type Scheduler struct {
	retentionService *service.RetentionService
	exchangeService  *service.ExchangeService
	interval         time.Duration
	logger           *zap.Logger
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
}

// SweepReport - итог одного прохода
type SweepReport struct {
	Purged          int
	Notified        int
	ExpiredRequests int
}

// NewScheduler создаёт новый планировщик
func NewScheduler(
	retentionService *service.RetentionService,
	exchangeService *service.ExchangeService,
	interval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		retentionService: retentionService,
		exchangeService:  exchangeService,
		interval:         interval,
		logger:           logger,
		stopChan:         make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.runSweepTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт текущий проход
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) runSweepTask(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sweep task cancelled")
			return
		}
	}
}

// RunOnce выполняет все задачи один раз. Ошибка одной задачи
// не отменяет остальные.
func (s *Scheduler) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport
	var err error

	s.logger.Info("Starting sweep")

	report.ExpiredRequests, err = s.exchangeService.ExpireStaleRequests(ctx)
	if err != nil {
		s.logger.Error("Failed to expire stale exchange requests", zap.Error(err))
	}

	report.Notified, err = s.retentionService.NotifyExpiringSoon(ctx)
	if err != nil {
		s.logger.Error("Failed to notify about expiring slots", zap.Error(err))
	}

	report.Purged, err = s.retentionService.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to purge expired slots", zap.Error(err))
	}

	s.logger.Info("Sweep completed",
		zap.Int("purged", report.Purged),
		zap.Int("notified", report.Notified),
		zap.Int("expired_requests", report.ExpiredRequests),
	)

	return report
}
