package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected:
		return true
	}
	return false
}

// ExchangeRequest - предложение обменять два слота между двумя пользователями
type ExchangeRequest struct {
	ID              uuid.UUID     `json:"id"`
	RequesterID     string        `json:"requester_id"`
	RequesteeID     string        `json:"requestee_id"`
	RequesterSlotID uuid.UUID     `json:"requester_slot_id"`
	RequesteeSlotID uuid.UUID     `json:"requestee_slot_id"`
	Status          RequestStatus `json:"status"`
	Expired         bool          `json:"expired"` // отклонён автоматически по TTL
	CreatedAt       time.Time     `json:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`

	// Дополнительные поля для удобства (не из БД)
	RequesterSlot *Slot `json:"requester_slot,omitempty"`
	RequesteeSlot *Slot `json:"requestee_slot,omitempty"`
}

func (r *ExchangeRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// Resolve переводит заявку в терминальный статус ровно один раз
func (r *ExchangeRequest) Resolve(accept bool, at time.Time) error {
	if !r.IsPending() {
		return fmt.Errorf("exchange request already %s", r.Status)
	}
	r.Status = RequestStatusRejected
	if accept {
		r.Status = RequestStatusAccepted
	}
	r.ResolvedAt = &at
	return nil
}

// Involves проверяет что пользователь - одна из сторон обмена
func (r *ExchangeRequest) Involves(userID string) bool {
	return r.RequesterID == userID || r.RequesteeID == userID
}
