package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}

	m.Notify(context.Background(), Event{Audience: "u1", Kind: KindRequestCreated})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Len(t, a.For("u1"), 1)
	assert.Empty(t, a.For("u2"))
}

func TestAsyncDeliversAndDrainsOnClose(t *testing.T) {
	rec := &Recorder{}
	async := NewAsync(rec, 16, zap.NewNop())

	for i := 0; i < 10; i++ {
		async.Notify(context.Background(), Event{Audience: "u1", Kind: KindRequestAccepted})
	}
	async.Close()

	assert.Len(t, rec.Events(), 10)
	// повторное закрытие безопасно
	async.Close()
}

func TestAsyncNotifyAfterCloseDrops(t *testing.T) {
	rec := &Recorder{}
	async := NewAsync(rec, 4, zap.NewNop())
	async.Close()

	// обработчик, завершающийся во время остановки, не должен падать
	assert.NotPanics(t, func() {
		async.Notify(context.Background(), Event{Audience: "u1", Kind: KindRequestCreated})
	})
	assert.Empty(t, rec.Events())
}

func TestAsyncConcurrentNotifyAndClose(t *testing.T) {
	rec := &Recorder{}
	async := NewAsync(rec, 64, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				async.Notify(context.Background(), Event{Audience: "u1"})
			}
		}()
	}
	async.Close()
	wg.Wait()

	assert.LessOrEqual(t, len(rec.Events()), 400)
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (b *blockingSink) Notify(context.Context, Event) {
	b.once.Do(func() { close(b.started) })
	<-b.release
}

func TestAsyncDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), started: make(chan struct{})}
	async := NewAsync(sink, 1, zap.NewNop())

	async.Notify(context.Background(), Event{Audience: "u1"})
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first event")
	}

	// одно место в очереди, остальное отбрасывается без блокировки
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			async.Notify(context.Background(), Event{Audience: "u1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.release)
	async.Close()
}

func TestMessageText(t *testing.T) {
	require.Contains(t, MessageText(Event{Kind: KindRequestCreated, Payload: map[string]any{"requester_id": "42"}}), "42")
	assert.Contains(t, MessageText(Event{Kind: KindRequestRejected, Payload: map[string]any{"expired": true}}), "expired")
	assert.Contains(t, MessageText(Event{Kind: KindRequestRejected}), "rejected")
	assert.Contains(t, MessageText(Event{Kind: KindExpiringSoon, Payload: map[string]any{"count": 2}}), "2 deleted")
}

func TestRedisSinkChannel(t *testing.T) {
	s := NewRedisSink(nil, zap.NewNop(), WithChannelPrefix("swap:"))
	assert.Equal(t, "swap:user:u1", s.Channel("u1"))

	// без клиента событие молча пропускается
	s.Notify(context.Background(), Event{Audience: "u1"})
}
