// Package apperror задаёт таксономию ошибок ядра: NotFound, Forbidden,
// Conflict, InvalidInput. Conflict дополнительно несёт причину, по которой
// вызывающий может выбрать корректирующее действие.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Reason уточняет ошибку внутри одного вида
type Reason string

const (
	ReasonSlotNotOpen     Reason = "slot_not_open"
	ReasonPendingExchange Reason = "pending_exchange"
	ReasonAlreadyResolved Reason = "already_resolved"
	ReasonRecoveryExpired Reason = "recovery_expired"
	ReasonNotDeleted      Reason = "not_deleted"
	ReasonAlreadyDeleted  Reason = "already_deleted"
	ReasonStaleWrite      Reason = "stale_write"
)

type Error struct {
	Kind    error
	Reason  Reason
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(reason Reason, format string, args ...any) error {
	return &Error{Kind: ErrConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf возвращает причину ошибки или пустую строку
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsConflict проверяет вид и причину конфликта
func IsConflict(err error, reason Reason) bool {
	return errors.Is(err, ErrConflict) && ReasonOf(err) == reason
}
