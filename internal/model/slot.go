package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusBusy    SlotStatus = "busy"
	SlotStatusOpen    SlotStatus = "open"    // доступен для обмена
	SlotStatusLocked  SlotStatus = "locked"  // участвует в pending обмене
	SlotStatusDeleted SlotStatus = "deleted" // в корзине
)

// Valid проверяет что статус входит в закрытый набор
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusBusy, SlotStatusOpen, SlotStatusLocked, SlotStatusDeleted:
		return true
	}
	return false
}

// ParseSlotStatus разбирает статус из строки
func ParseSlotStatus(raw string) (SlotStatus, error) {
	s := SlotStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown slot status %q", raw)
	}
	return s, nil
}

var (
	ErrEmptyWindow   = errors.New("end time must be after start time")
	ErrWindowTooLong = errors.New("slot is longer than the allowed maximum")
)

type Slot struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Status      SlotStatus `json:"status"`

	// Метаданные удаления - заполнены только при Status == deleted
	PriorStatus       *SlotStatus `json:"prior_status,omitempty"`
	DeletedAt         *time.Time  `json:"deleted_at,omitempty"`
	DeletedBy         *string     `json:"deleted_by,omitempty"`
	RecoveryExpiresAt *time.Time  `json:"recovery_expires_at,omitempty"`
	ExpiryNotifiedAt  *time.Time  `json:"-"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateWindow проверяет границы окна слота
func ValidateWindow(start, end time.Time, maxDuration time.Duration) error {
	if !end.After(start) {
		return ErrEmptyWindow
	}
	if maxDuration > 0 && end.Sub(start) > maxDuration {
		return fmt.Errorf("%w (%s)", ErrWindowTooLong, maxDuration)
	}
	return nil
}

func (s *Slot) IsDeleted() bool { return s.Status == SlotStatusDeleted }

func (s *Slot) IsLocked() bool { return s.Status == SlotStatusLocked }

// CanEditWindow - окно нельзя менять во время обмена и в корзине
func (s *Slot) CanEditWindow() bool {
	return s.Status == SlotStatusBusy || s.Status == SlotStatusOpen
}

// SetWindow меняет окно слота
func (s *Slot) SetWindow(start, end time.Time, maxDuration time.Duration) error {
	if !s.CanEditWindow() {
		return &TransitionError{Op: OpEditWindow, From: s.Status, To: s.Status}
	}
	if err := ValidateWindow(start, end, maxDuration); err != nil {
		return err
	}
	s.StartTime = start
	s.EndTime = end
	return nil
}

// SetAvailability переключает слот между busy и open
func (s *Slot) SetAvailability(to SlotStatus) error {
	return s.transition(OpSetAvailability, to)
}

// Lock блокирует слот под pending обмен
func (s *Slot) Lock() error {
	return s.transition(OpLock, SlotStatusLocked)
}

// CompleteSwap передаёт слот новому владельцу после принятого обмена
func (s *Slot) CompleteSwap(newOwnerID string) error {
	if err := s.transition(OpAcceptSwap, SlotStatusBusy); err != nil {
		return err
	}
	s.OwnerID = newOwnerID
	return nil
}

// Release возвращает слот в open после отклонённого обмена
func (s *Slot) Release() error {
	return s.transition(OpRelease, SlotStatusOpen)
}

// TransferTo - административная смена владельца
func (s *Slot) TransferTo(newOwnerID string) error {
	if !s.CanEditWindow() {
		return &TransitionError{Op: OpTransfer, From: s.Status, To: s.Status}
	}
	s.OwnerID = newOwnerID
	return nil
}

// MarkDeleted переносит слот в корзину, запоминая статус до удаления
func (s *Slot) MarkDeleted(actorID string, at time.Time, retention time.Duration) error {
	prior := s.Status
	if err := s.transition(OpSoftDelete, SlotStatusDeleted); err != nil {
		return err
	}
	expires := at.Add(retention)
	s.PriorStatus = &prior
	s.DeletedAt = &at
	s.DeletedBy = &actorID
	s.RecoveryExpiresAt = &expires
	s.ExpiryNotifiedAt = nil
	return nil
}

// Restore возвращает слот из корзины в статус до удаления
func (s *Slot) Restore() error {
	to := SlotStatusBusy
	if s.PriorStatus != nil {
		to = *s.PriorStatus
	}
	if err := s.transition(OpRestore, to); err != nil {
		return err
	}
	s.PriorStatus = nil
	s.DeletedAt = nil
	s.DeletedBy = nil
	s.RecoveryExpiresAt = nil
	s.ExpiryNotifiedAt = nil
	return nil
}

// IsRecoverable - срок восстановления ещё не истёк
func (s *Slot) IsRecoverable(now time.Time) bool {
	return s.IsDeleted() && s.RecoveryExpiresAt != nil && now.Before(*s.RecoveryExpiresAt)
}

// IsPurgeable - срок восстановления истёк, запись можно уничтожить
func (s *Slot) IsPurgeable(now time.Time) bool {
	return s.IsDeleted() && s.RecoveryExpiresAt != nil && !now.Before(*s.RecoveryExpiresAt)
}

func (s *Slot) transition(op SlotOp, to SlotStatus) error {
	if !CanTransition(op, s.Status, to) {
		return &TransitionError{Op: op, From: s.Status, To: to}
	}
	s.Status = to
	return nil
}
