package service

import (
	"bytes"
	"errors"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/google/uuid"
)

// Clock возвращает текущее время; в тестах подменяется
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		// Postgres хранит время с точностью до микросекунд
		return func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return c
}

// slotWrite - отложенная CAS-запись слота
type slotWrite struct {
	slot            *model.Slot
	expected        model.SlotStatus
	expectedVersion int64
}

func pendingWrite(slot *model.Slot) slotWrite {
	return slotWrite{slot: slot, expected: slot.Status, expectedVersion: slot.Version}
}

// orderedPair - записи пары слотов всегда идут в порядке id,
// чтобы встречные транзакции не блокировали друг друга
func orderedPair(a, b slotWrite) [2]slotWrite {
	if compareIDs(a.slot.ID, b.slot.ID) > 0 {
		return [2]slotWrite{b, a}
	}
	return [2]slotWrite{a, b}
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// transitionConflict переводит ошибку перехода модели в Conflict
func transitionConflict(slot *model.Slot, err error) error {
	var te *model.TransitionError
	if !errors.As(err, &te) {
		return err
	}
	switch te.From {
	case model.SlotStatusLocked:
		return apperror.Conflict(apperror.ReasonPendingExchange,
			"slot %s has a pending exchange request; resolve it first", slot.ID)
	case model.SlotStatusDeleted:
		return apperror.Conflict(apperror.ReasonAlreadyDeleted, "slot %s is deleted", slot.ID)
	default:
		return apperror.Conflict(apperror.ReasonSlotNotOpen, "slot %s: %s", slot.ID, te.Error())
	}
}

func staleWrite(id uuid.UUID) error {
	return apperror.Conflict(apperror.ReasonStaleWrite, "slot %s was changed concurrently, retry", id)
}
