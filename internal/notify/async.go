package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async - очередь перед медленным транспортом: Notify только ставит событие
// в очередь, один воркер передаёт их дальше. Переполнение или закрытая
// очередь - событие отбрасывается с предупреждением.
type Async struct {
	next    Sink
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync запускает воркер поверх next
func NewAsync(next Sink, size int, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		next:    next,
		queue:   make(chan Event, size),
		timeout: 5 * time.Second,
		logger:  logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("Notification queue closed, dropping event",
			zap.String("audience", ev.Audience),
			zap.String("kind", string(ev.Kind)),
		)
		return
	}

	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("Notification queue full, dropping event",
			zap.String("audience", ev.Audience),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

// Close перестаёт принимать события и ждёт, пока очередь опустеет
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.wg.Wait()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.queue {
		// контекст запроса к этому моменту уже отменён
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		a.next.Notify(ctx, ev)
		cancel()
	}
}
