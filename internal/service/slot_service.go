package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SlotService struct {
	store       repository.Store
	maxDuration time.Duration
	now         Clock
	logger      *zap.Logger
}

func NewSlotService(store repository.Store, maxDuration time.Duration, clock Clock, logger *zap.Logger) *SlotService {
	return &SlotService{
		store:       store,
		maxDuration: maxDuration,
		now:         clockOrDefault(clock),
		logger:      logger,
	}
}

// CreateSlotInput - данные нового слота
type CreateSlotInput struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Open        bool // сразу выставить на обмен
}

// UpdateSlotInput - частичное изменение слота; nil-поля не меняются
type UpdateSlotInput struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Status      *model.SlotStatus
}

// CreateSlot создаёт слот владельца
func (s *SlotService) CreateSlot(ctx context.Context, ownerID string, in CreateSlotInput) (*model.Slot, error) {
	now := s.now()

	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.InvalidInput("owner id is required")
	}
	if in.StartTime.Before(now) {
		return nil, apperror.InvalidInput("slot cannot start in the past")
	}
	if err := model.ValidateWindow(in.StartTime, in.EndTime, s.maxDuration); err != nil {
		return nil, apperror.InvalidInput("%s", err.Error())
	}

	status := model.SlotStatusBusy
	if in.Open {
		status = model.SlotStatusOpen
	}

	slot := &model.Slot{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      status,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Slots().Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("Slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("owner_id", ownerID),
		zap.String("status", string(slot.Status)),
	)

	return slot, nil
}

// GetSlot возвращает слот. Удалённые слоты видны только владельцу и администратору.
func (s *SlotService) GetSlot(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.store.Slots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil || (slot.IsDeleted() && !actor.CanManage(slot)) {
		return nil, apperror.NotFound("slot %s not found", id)
	}
	return slot, nil
}

// ListMySlots - неудалённые слоты пользователя
func (s *SlotService) ListMySlots(ctx context.Context, ownerID string) ([]*model.Slot, error) {
	slots, err := s.store.Slots().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ListOpenSlots - слоты других пользователей, доступные для обмена
func (s *SlotService) ListOpenSlots(ctx context.Context, userID string) ([]*model.Slot, error) {
	slots, err := s.store.Slots().ListOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return slots, nil
}

// UpdateSlot меняет описание, окно или доступность слота (busy <-> open).
// Заблокированный обменом или удалённый слот не меняется.
func (s *SlotService) UpdateSlot(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateSlotInput) (*model.Slot, error) {
	slot, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if slot.IsLocked() {
		return nil, transitionConflict(slot, &model.TransitionError{Op: model.OpEditWindow, From: slot.Status, To: slot.Status})
	}

	write := pendingWrite(slot)

	if in.Status != nil {
		if *in.Status != model.SlotStatusBusy && *in.Status != model.SlotStatusOpen {
			return nil, apperror.InvalidInput("status must be %q or %q", model.SlotStatusBusy, model.SlotStatusOpen)
		}
		if err := slot.SetAvailability(*in.Status); err != nil {
			return nil, transitionConflict(slot, err)
		}
	}

	if in.StartTime != nil || in.EndTime != nil {
		start, end := slot.StartTime, slot.EndTime
		if in.StartTime != nil {
			start = in.StartTime.UTC()
		}
		if in.EndTime != nil {
			end = in.EndTime.UTC()
		}
		if err := slot.SetWindow(start, end, s.maxDuration); err != nil {
			if errors.Is(err, model.ErrEmptyWindow) || errors.Is(err, model.ErrWindowTooLong) {
				return nil, apperror.InvalidInput("%s", err.Error())
			}
			return nil, transitionConflict(slot, err)
		}
	}

	if in.Title != nil {
		slot.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		slot.Description = *in.Description
	}

	if err := s.save(ctx, write); err != nil {
		return nil, err
	}

	s.logger.Info("Slot updated",
		zap.String("slot_id", slot.ID.String()),
		zap.String("status", string(slot.Status)),
	)

	return slot, nil
}

// TransferOwnership - административная передача слота другому пользователю
func (s *SlotService) TransferOwnership(ctx context.Context, actor model.Actor, id uuid.UUID, newOwnerID string) (*model.Slot, error) {
	if !actor.IsAdmin {
		return nil, apperror.Forbidden("only administrators can transfer slots")
	}
	if strings.TrimSpace(newOwnerID) == "" {
		return nil, apperror.InvalidInput("new owner id is required")
	}

	slot, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	write := pendingWrite(slot)
	previousOwner := slot.OwnerID
	if err := slot.TransferTo(newOwnerID); err != nil {
		return nil, transitionConflict(slot, err)
	}

	if err := s.save(ctx, write); err != nil {
		return nil, err
	}

	s.logger.Info("Slot ownership transferred",
		zap.String("slot_id", slot.ID.String()),
		zap.String("from_owner_id", previousOwner),
		zap.String("to_owner_id", newOwnerID),
		zap.String("admin_id", actor.UserID),
	)

	return slot, nil
}

// loadManaged загружает неудалённый слот, которым actor вправе управлять
func (s *SlotService) loadManaged(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.store.Slots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil || slot.IsDeleted() || !actor.CanManage(slot) {
		return nil, apperror.NotFound("slot %s not found", id)
	}
	return slot, nil
}

func (s *SlotService) save(ctx context.Context, w slotWrite) error {
	w.slot.UpdatedAt = s.now()
	ok, err := s.store.Slots().Update(ctx, w.slot, w.expected, w.expectedVersion)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if !ok {
		return staleWrite(w.slot.ID)
	}
	return nil
}
