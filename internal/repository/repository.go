package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/google/uuid"
)

// ErrDuplicate - нарушение уникальности (например, второй pending обмен на слот)
var ErrDuplicate = errors.New("duplicate key")

// ExpiryCursor - позиция keyset-пагинации по (recovery_expires_at, id)
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// SlotRepository хранит слоты. Чтение отсутствующей записи возвращает (nil, nil).
// Все изменения - compare-and-swap по (status, version): false означает,
// что запись изменилась после чтения.
type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error)

	// ListByOwner - неудалённые слоты владельца по времени начала
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Slot, error)
	// ListOpen - открытые для обмена слоты всех, кроме excludeOwnerID
	ListOpen(ctx context.Context, excludeOwnerID string) ([]*model.Slot, error)
	// ListTrash - удалённые слоты, срок восстановления которых ещё не истёк
	ListTrash(ctx context.Context, ownerID string, now time.Time) ([]*model.Slot, error)
	// ListExpiring - удалённые слоты с now < recovery_expires_at <= until.
	// Пустой ownerID - по всем владельцам.
	ListExpiring(ctx context.Context, ownerID string, now, until time.Time, after *ExpiryCursor, limit int) ([]*model.Slot, error)
	// ListPurgeable - удалённые слоты с recovery_expires_at <= now
	ListPurgeable(ctx context.Context, now time.Time, limit int) ([]*model.Slot, error)

	Update(ctx context.Context, slot *model.Slot, expected model.SlotStatus, expectedVersion int64) (bool, error)
	// Delete уничтожает только удалённую (status = deleted) запись
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error)
}

type ExchangeRequestRepository interface {
	Create(ctx context.Context, req *model.ExchangeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRequest, error)
	ListByRequester(ctx context.Context, userID string) ([]*model.ExchangeRequest, error)
	ListByRequestee(ctx context.Context, userID string) ([]*model.ExchangeRequest, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.ExchangeRequest, error)
	// Resolve сохраняет терминальный статус, только если заявка ещё pending
	Resolve(ctx context.Context, req *model.ExchangeRequest) (bool, error)
}

// Store объединяет репозитории в одну единицу согласованности
type Store interface {
	Slots() SlotRepository
	Requests() ExchangeRequestRepository
	// WithinTx выполняет fn в транзакции: commit при nil, rollback иначе.
	// Внутри fn используется только переданный tx.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
