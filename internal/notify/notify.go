// Package notify доставляет события ядра пользователям. Доставка best effort:
// sink никогда не возвращает ошибку вызывающему.
package notify

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	KindRequestCreated  Kind = "request-created"
	KindRequestAccepted Kind = "request-accepted"
	KindRequestRejected Kind = "request-rejected"
	KindExpiringSoon    Kind = "expiring-soon"
)

// Event адресовано одному пользователю
type Event struct {
	Audience string         `json:"audience"`
	Kind     Kind           `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// Multi рассылает событие во все sink по порядку
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, ev)
		}
	}
}

// Nop отбрасывает события
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Recorder хранит события в памяти (для тестов)
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events возвращает копию записанных событий
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// For - события конкретного получателя
func (r *Recorder) For(audience string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Audience == audience {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
