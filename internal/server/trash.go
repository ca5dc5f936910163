package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Freeeeeet/slotswap/internal/service"
	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
)

type bulkOutput struct {
	Body BulkResponse
}

func (h *handlers) registerTrash(api huma.API) {
	huma.Register(api, op("list-trash", http.MethodGet, "/trash", "List recoverable deleted slots", "trash"),
		func(ctx context.Context, _ *struct{}) (*slotListOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			slots, err := h.retention.ListTrash(ctx, actor.UserID)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &slotListOutput{Body: SlotListResponse{Slots: toSlotResponses(slots)}}, nil
		})

	huma.Register(api, op("list-expiring", http.MethodGet, "/trash/expiring", "List deleted slots whose recovery period ends soon", "trash"),
		func(ctx context.Context, input *struct {
			Horizon string `query:"horizon" doc:"Go duration, e.g. 72h; defaults to the server setting"`
		}) (*slotListOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			var horizon time.Duration
			if input.Horizon != "" {
				d, err := time.ParseDuration(input.Horizon)
				if err != nil || d <= 0 {
					return nil, newAPIError(http.StatusBadRequest, "bad_request", "horizon must be a positive duration", map[string]any{"field": "horizon"})
				}
				horizon = d
			}

			resp := SlotListResponse{Slots: []SlotResponse{}}
			for slot, err := range h.retention.ListExpiringSoon(ctx, actor.UserID, horizon) {
				if err != nil {
					return nil, h.handleError(err)
				}
				resp.Slots = append(resp.Slots, toSlotResponse(slot))
			}
			return &slotListOutput{Body: resp}, nil
		})

	huma.Register(api, op("bulk-restore", http.MethodPost, "/trash/restore", "Restore several slots", "trash"),
		func(ctx context.Context, input *struct {
			Body SlotIDsRequest
		}) (*bulkOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			ids, idErr := parseIDs(input.Body.IDs)
			if idErr != nil {
				return nil, idErr
			}
			return &bulkOutput{Body: h.bulkResponse(h.retention.BulkRestore(ctx, actor, ids))}, nil
		})

	huma.Register(api, op("bulk-purge", http.MethodPost, "/trash/purge", "Permanently delete several trashed slots", "trash"),
		func(ctx context.Context, input *struct {
			Body SlotIDsRequest
		}) (*bulkOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			ids, idErr := parseIDs(input.Body.IDs)
			if idErr != nil {
				return nil, idErr
			}
			return &bulkOutput{Body: h.bulkResponse(h.retention.BulkPermanentDelete(ctx, actor, ids))}, nil
		})
}

func parseIDs(raw []string) ([]uuid.UUID, huma.StatusError) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r, "ids")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *handlers) bulkResponse(results []service.BulkResult) BulkResponse {
	resp := BulkResponse{Results: make([]BulkItemResult, 0, len(results))}
	for _, r := range results {
		item := BulkItemResult{
			ID:    r.ID.String(),
			OK:    r.Err == nil,
			Error: h.errorBody(r.Err),
		}
		if r.Slot != nil {
			slot := toSlotResponse(r.Slot)
			item.Slot = &slot
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}
