package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	expiringPageSize = 50
	purgeBatchSize   = 100
)

// RetentionService - корзина: мягкое удаление, восстановление в пределах
// окна хранения и окончательное удаление.
type RetentionService struct {
	store     repository.Store
	sink      notify.Sink
	retention time.Duration
	horizon   time.Duration
	now       Clock
	logger    *zap.Logger
}

func NewRetentionService(
	store repository.Store,
	sink notify.Sink,
	retention, horizon time.Duration,
	clock Clock,
	logger *zap.Logger,
) *RetentionService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &RetentionService{
		store:     store,
		sink:      sink,
		retention: retention,
		horizon:   horizon,
		now:       clockOrDefault(clock),
		logger:    logger,
	}
}

// BulkResult - итог операции над одним слотом из пакета
type BulkResult struct {
	ID   uuid.UUID
	Slot *model.Slot
	Err  error
}

// SoftDelete переносит слот в корзину
func (s *RetentionService) SoftDelete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	switch {
	case slot.IsDeleted():
		return nil, apperror.Conflict(apperror.ReasonAlreadyDeleted, "slot %s is already in the trash", id)
	case slot.IsLocked():
		return nil, apperror.Conflict(apperror.ReasonPendingExchange,
			"slot %s has a pending exchange request; resolve it before deleting", id)
	}

	now := s.now()
	write := pendingWrite(slot)
	if err := slot.MarkDeleted(actor.UserID, now, s.retention); err != nil {
		return nil, transitionConflict(slot, err)
	}

	if err := s.save(ctx, write, now); err != nil {
		return nil, err
	}

	s.logger.Info("Slot moved to trash",
		zap.String("slot_id", slot.ID.String()),
		zap.String("deleted_by", actor.UserID),
		zap.Time("recovery_expires_at", *slot.RecoveryExpiresAt),
	)

	return slot, nil
}

// Restore возвращает слот из корзины, пока не истёк срок восстановления
func (s *RetentionService) Restore(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !slot.IsDeleted() {
		return nil, apperror.Conflict(apperror.ReasonNotDeleted, "slot %s is not in the trash", id)
	}

	now := s.now()
	if !slot.IsRecoverable(now) {
		return nil, apperror.Conflict(apperror.ReasonRecoveryExpired,
			"recovery period for slot %s has expired; it can only be purged", id)
	}

	write := pendingWrite(slot)
	if err := slot.Restore(); err != nil {
		return nil, transitionConflict(slot, err)
	}

	if err := s.save(ctx, write, now); err != nil {
		return nil, err
	}

	s.logger.Info("Slot restored",
		zap.String("slot_id", slot.ID.String()),
		zap.String("status", string(slot.Status)),
		zap.String("restored_by", actor.UserID),
	)

	return slot, nil
}

// PermanentDelete безвозвратно уничтожает слот из корзины
func (s *RetentionService) PermanentDelete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	slot, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !slot.IsDeleted() {
		return apperror.Conflict(apperror.ReasonNotDeleted, "slot %s must be deleted before it can be purged", id)
	}

	ok, err := s.store.Slots().Delete(ctx, slot.ID, slot.Version)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if !ok {
		return staleWrite(slot.ID)
	}

	s.logger.Info("Slot permanently deleted",
		zap.String("slot_id", slot.ID.String()),
		zap.String("deleted_by", actor.UserID),
	)

	return nil
}

// ListTrash - удалённые слоты пользователя, которые ещё можно восстановить
func (s *RetentionService) ListTrash(ctx context.Context, ownerID string) ([]*model.Slot, error) {
	slots, err := s.store.Slots().ListTrash(ctx, ownerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return slots, nil
}

// ListExpiringSoon - удалённые слоты пользователя, срок восстановления которых
// истекает в пределах horizon. Последовательность читается страницами по мере
// обхода; каждый новый обход начинается заново с текущего времени.
// Пустой userID - по всем пользователям.
func (s *RetentionService) ListExpiringSoon(ctx context.Context, userID string, horizon time.Duration) iter.Seq2[*model.Slot, error] {
	if horizon <= 0 {
		horizon = s.horizon
	}

	return func(yield func(*model.Slot, error) bool) {
		now := s.now()
		until := now.Add(horizon)
		var cursor *repository.ExpiryCursor

		for {
			page, err := s.store.Slots().ListExpiring(ctx, userID, now, until, cursor, expiringPageSize)
			if err != nil {
				yield(nil, fmt.Errorf("list expiring slots: %w", err))
				return
			}

			for _, slot := range page {
				if !yield(slot, nil) {
					return
				}
			}

			if len(page) < expiringPageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repository.ExpiryCursor{ExpiresAt: *last.RecoveryExpiresAt, ID: last.ID}
		}
	}
}

// BulkRestore восстанавливает слоты по одному; ошибка одного не мешает остальным
func (s *RetentionService) BulkRestore(ctx context.Context, actor model.Actor, ids []uuid.UUID) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		slot, err := s.Restore(ctx, actor, id)
		results = append(results, BulkResult{ID: id, Slot: slot, Err: err})
	}
	return results
}

// BulkPermanentDelete уничтожает слоты из корзины по одному
func (s *RetentionService) BulkPermanentDelete(ctx context.Context, actor model.Actor, ids []uuid.UUID) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		err := s.PermanentDelete(ctx, actor, id)
		results = append(results, BulkResult{ID: id, Err: err})
	}
	return results
}

// PurgeExpired уничтожает все удалённые слоты с истёкшим сроком восстановления.
// Возвращает число уничтоженных записей.
func (s *RetentionService) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now()
	purged := 0

	for {
		batch, err := s.store.Slots().ListPurgeable(ctx, now, purgeBatchSize)
		if err != nil {
			return purged, fmt.Errorf("list purgeable slots: %w", err)
		}

		deleted := 0
		for _, slot := range batch {
			ok, err := s.store.Slots().Delete(ctx, slot.ID, slot.Version)
			if err != nil {
				return purged, fmt.Errorf("purge slot %s: %w", slot.ID, err)
			}
			if ok {
				deleted++
			}
		}
		purged += deleted

		if len(batch) < purgeBatchSize || deleted == 0 {
			break
		}
	}

	if purged > 0 {
		s.logger.Info("Expired slots purged", zap.Int("count", purged))
	}
	return purged, nil
}

// NotifyExpiringSoon один раз на каждое удаление предупреждает владельцев
// о скором уничтожении слотов. Возвращает число отправленных уведомлений.
func (s *RetentionService) NotifyExpiringSoon(ctx context.Context) (int, error) {
	now := s.now()
	byOwner := make(map[string][]*model.Slot)
	var owners []string

	for slot, err := range s.ListExpiringSoon(ctx, "", s.horizon) {
		if err != nil {
			return 0, err
		}
		if slot.ExpiryNotifiedAt != nil {
			continue
		}
		if _, seen := byOwner[slot.OwnerID]; !seen {
			owners = append(owners, slot.OwnerID)
		}
		byOwner[slot.OwnerID] = append(byOwner[slot.OwnerID], slot)
	}

	sent := 0
	var errs []error
	for _, owner := range owners {
		var marked []*model.Slot
		for _, slot := range byOwner[owner] {
			write := pendingWrite(slot)
			slot.ExpiryNotifiedAt = &now
			slot.UpdatedAt = now
			ok, err := s.store.Slots().Update(ctx, slot, write.expected, write.expectedVersion)
			if err != nil {
				errs = append(errs, fmt.Errorf("mark slot %s notified: %w", slot.ID, err))
				continue
			}
			// восстановлен или уничтожен после чтения
			if ok {
				marked = append(marked, slot)
			}
		}
		if len(marked) == 0 {
			continue
		}

		s.sink.Notify(ctx, notify.Event{
			Audience: owner,
			Kind:     notify.KindExpiringSoon,
			Payload:  expiringPayload(marked),
			At:       now,
		})
		sent++
	}

	if sent > 0 {
		s.logger.Info("Expiring slot notifications sent", zap.Int("count", sent))
	}
	return sent, errors.Join(errs...)
}

// load загружает слот, которым actor вправе управлять. Чужой слот
// неотличим от отсутствующего.
func (s *RetentionService) load(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.store.Slots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil || !actor.CanManage(slot) {
		return nil, apperror.NotFound("slot %s not found", id)
	}
	return slot, nil
}

func (s *RetentionService) save(ctx context.Context, w slotWrite, now time.Time) error {
	w.slot.UpdatedAt = now
	ok, err := s.store.Slots().Update(ctx, w.slot, w.expected, w.expectedVersion)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if !ok {
		return staleWrite(w.slot.ID)
	}
	return nil
}

func expiringPayload(slots []*model.Slot) map[string]any {
	ids := make([]string, 0, len(slots))
	earliest := *slots[0].RecoveryExpiresAt
	for _, slot := range slots {
		ids = append(ids, slot.ID.String())
		if slot.RecoveryExpiresAt.Before(earliest) {
			earliest = *slot.RecoveryExpiresAt
		}
	}
	return map[string]any{
		"count":               len(slots),
		"slot_ids":            ids,
		"earliest_expires_at": earliest,
	}
}
