package server

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/service"
	"github.com/danielgtaylor/huma/v2"
)

// SlotPath - id слота из пути
type SlotPath struct {
	ID string `path:"id" format:"uuid"`
}

type slotOutput struct {
	Body SlotResponse
}

type slotListOutput struct {
	Body SlotListResponse
}

func (h *handlers) registerSlots(api huma.API) {
	createOp := op("create-slot", http.MethodPost, "/slots", "Create slot", "slots")
	createOp.DefaultStatus = http.StatusCreated
	huma.Register(api, createOp, func(ctx context.Context, input *struct {
		Body CreateSlotRequest
	}) (*slotOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := service.CreateSlotInput{
			Title:     input.Body.Title,
			StartTime: input.Body.StartTime,
			EndTime:   input.Body.EndTime,
			Open:      input.Body.Open,
		}
		if input.Body.Description != nil {
			in.Description = *input.Body.Description
		}
		slot, err := h.slots.CreateSlot(ctx, actor.UserID, in)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &slotOutput{Body: toSlotResponse(slot)}, nil
	})

	huma.Register(api, op("list-my-slots", http.MethodGet, "/slots", "List own slots", "slots"),
		func(ctx context.Context, _ *struct{}) (*slotListOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			slots, err := h.slots.ListMySlots(ctx, actor.UserID)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotListOutput{Body: SlotListResponse{Slots: toSlotResponses(slots)}}, nil
		})

	huma.Register(api, op("list-open-slots", http.MethodGet, "/slots/open", "List other users' slots open for exchange", "slots"),
		func(ctx context.Context, _ *struct{}) (*slotListOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			slots, err := h.slots.ListOpenSlots(ctx, actor.UserID)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotListOutput{Body: SlotListResponse{Slots: toSlotResponses(slots)}}, nil
		})

	huma.Register(api, op("get-slot", http.MethodGet, "/slots/{id}", "Get slot", "slots"),
		func(ctx context.Context, input *SlotPath) (*slotOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			slot, err := h.slots.GetSlot(ctx, actor, id)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotOutput{Body: toSlotResponse(slot)}, nil
		})

	huma.Register(api, op("update-slot", http.MethodPatch, "/slots/{id}", "Update slot window, text or availability", "slots"),
		func(ctx context.Context, input *struct {
			SlotPath
			Body UpdateSlotRequest
		}) (*slotOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			in := service.UpdateSlotInput{
				Title:       input.Body.Title,
				Description: input.Body.Description,
				StartTime:   input.Body.StartTime,
				EndTime:     input.Body.EndTime,
			}
			if input.Body.Status != nil {
				status := model.SlotStatus(*input.Body.Status)
				in.Status = &status
			}
			slot, err := h.slots.UpdateSlot(ctx, actor, id, in)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotOutput{Body: toSlotResponse(slot)}, nil
		})

	huma.Register(api, op("transfer-slot", http.MethodPost, "/slots/{id}/transfer", "Transfer slot ownership (admin)", "slots"),
		func(ctx context.Context, input *struct {
			SlotPath
			Body TransferSlotRequest
		}) (*slotOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			slot, err := h.slots.TransferOwnership(ctx, actor, id, input.Body.NewOwnerID)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotOutput{Body: toSlotResponse(slot)}, nil
		})

	huma.Register(api, op("delete-slot", http.MethodDelete, "/slots/{id}", "Move slot to trash", "trash"),
		func(ctx context.Context, input *SlotPath) (*slotOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			slot, err := h.retention.SoftDelete(ctx, actor, id)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotOutput{Body: toSlotResponse(slot)}, nil
		})

	huma.Register(api, op("restore-slot", http.MethodPost, "/slots/{id}/restore", "Restore slot from trash", "trash"),
		func(ctx context.Context, input *SlotPath) (*slotOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			slot, err := h.retention.Restore(ctx, actor, id)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotOutput{Body: toSlotResponse(slot)}, nil
		})

	purgeOp := op("purge-slot", http.MethodDelete, "/slots/{id}/permanent", "Permanently delete a trashed slot", "trash")
	purgeOp.DefaultStatus = http.StatusNoContent
	huma.Register(api, purgeOp, func(ctx context.Context, input *SlotPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, idErr := parseID(input.ID, "id")
		if idErr != nil {
			return nil, idErr
		}
		if err := h.retention.PermanentDelete(ctx, actor, id); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})
}
