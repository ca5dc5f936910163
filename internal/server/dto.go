package server

import (
	"time"

	"github.com/Freeeeeet/slotswap/internal/model"
)

// Тела запросов

type CreateSlotRequest struct {
	Title       string    `json:"title" maxLength:"200"`
	Description *string   `json:"description,omitempty" maxLength:"2000"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Open        bool      `json:"open,omitempty" doc:"Offer the slot for exchange right away"`
}

type UpdateSlotRequest struct {
	Title       *string    `json:"title,omitempty" maxLength:"200"`
	Description *string    `json:"description,omitempty" maxLength:"2000"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Status      *string    `json:"status,omitempty" enum:"busy,open"`
}

type TransferSlotRequest struct {
	NewOwnerID string `json:"new_owner_id" minLength:"1"`
}

type SlotIDsRequest struct {
	IDs []string `json:"ids" minItems:"1" maxItems:"100"`
}

type CreateExchangeRequestRequest struct {
	OfferedSlotID string `json:"offered_slot_id" format:"uuid"`
	TargetSlotID  string `json:"target_slot_id" format:"uuid"`
}

type ResolveExchangeRequestRequest struct {
	Accept bool `json:"accept"`
}

// Тела ответов

type SlotResponse struct {
	ID                string     `json:"id" format:"uuid"`
	OwnerID           string     `json:"owner_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	Status            string     `json:"status" enum:"busy,open,locked,deleted"`
	PriorStatus       *string    `json:"prior_status,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	DeletedBy         *string    `json:"deleted_by,omitempty"`
	RecoveryExpiresAt *time.Time `json:"recovery_expires_at,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type SlotListResponse struct {
	Slots []SlotResponse `json:"slots"`
}

type ExchangeRequestResponse struct {
	ID              string        `json:"id" format:"uuid"`
	RequesterID     string        `json:"requester_id"`
	RequesteeID     string        `json:"requestee_id"`
	RequesterSlotID string        `json:"requester_slot_id" format:"uuid"`
	RequesteeSlotID string        `json:"requestee_slot_id" format:"uuid"`
	Status          string        `json:"status" enum:"pending,accepted,rejected"`
	Expired         bool          `json:"expired"`
	CreatedAt       time.Time     `json:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	RequesterSlot   *SlotResponse `json:"requester_slot,omitempty"`
	RequesteeSlot   *SlotResponse `json:"requestee_slot,omitempty"`
}

type ExchangeRequestListResponse struct {
	Requests []ExchangeRequestResponse `json:"requests"`
}

type BulkItemResult struct {
	ID    string        `json:"id"`
	OK    bool          `json:"ok"`
	Slot  *SlotResponse `json:"slot,omitempty"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type BulkResponse struct {
	Results []BulkItemResult `json:"results"`
}

func toSlotResponse(s *model.Slot) SlotResponse {
	resp := SlotResponse{
		ID:                s.ID.String(),
		OwnerID:           s.OwnerID,
		Title:             s.Title,
		Description:       s.Description,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Status:            string(s.Status),
		DeletedAt:         s.DeletedAt,
		DeletedBy:         s.DeletedBy,
		RecoveryExpiresAt: s.RecoveryExpiresAt,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.PriorStatus != nil {
		prior := string(*s.PriorStatus)
		resp.PriorStatus = &prior
	}
	return resp
}

func toSlotResponses(slots []*model.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toExchangeRequestResponse(r *model.ExchangeRequest) ExchangeRequestResponse {
	resp := ExchangeRequestResponse{
		ID:              r.ID.String(),
		RequesterID:     r.RequesterID,
		RequesteeID:     r.RequesteeID,
		RequesterSlotID: r.RequesterSlotID.String(),
		RequesteeSlotID: r.RequesteeSlotID.String(),
		Status:          string(r.Status),
		Expired:         r.Expired,
		CreatedAt:       r.CreatedAt,
		ResolvedAt:      r.ResolvedAt,
	}
	if r.RequesterSlot != nil {
		slot := toSlotResponse(r.RequesterSlot)
		resp.RequesterSlot = &slot
	}
	if r.RequesteeSlot != nil {
		slot := toSlotResponse(r.RequesteeSlot)
		resp.RequesteeSlot = &slot
	}
	return resp
}
