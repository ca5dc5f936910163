package server

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/slotswap/internal/service"
	"github.com/danielgtaylor/huma/v2"
)

// ExchangeRequestPath - id заявки из пути
type ExchangeRequestPath struct {
	ID string `path:"id" format:"uuid"`
}

type exchangeRequestOutput struct {
	Body ExchangeRequestResponse
}

func (h *handlers) registerExchangeRequests(api huma.API) {
	createOp := op("create-exchange-request", http.MethodPost, "/exchange-requests", "Offer an own open slot for another user's open slot", "exchange")
	createOp.DefaultStatus = http.StatusCreated
	huma.Register(api, createOp, func(ctx context.Context, input *struct {
		Body CreateExchangeRequestRequest
	}) (*exchangeRequestOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		offered, idErr := parseID(input.Body.OfferedSlotID, "offered_slot_id")
		if idErr != nil {
			return nil, idErr
		}
		target, idErr := parseID(input.Body.TargetSlotID, "target_slot_id")
		if idErr != nil {
			return nil, idErr
		}
		req, err := h.exchange.CreateRequest(ctx, actor.UserID, offered, target)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &exchangeRequestOutput{Body: toExchangeRequestResponse(req)}, nil
	})

	huma.Register(api, op("list-exchange-requests", http.MethodGet, "/exchange-requests", "List own exchange requests, newest first", "exchange"),
		func(ctx context.Context, input *struct {
			Direction string `query:"direction" enum:"incoming,outgoing,all" default:"all"`
		}) (*struct {
			Body ExchangeRequestListResponse
		}, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			requests, err := h.exchange.ListRequests(ctx, actor.UserID, service.RequestDirection(input.Direction))
			if err != nil {
				return nil, h.handleError(err)
			}
			resp := ExchangeRequestListResponse{Requests: make([]ExchangeRequestResponse, 0, len(requests))}
			for _, r := range requests {
				resp.Requests = append(resp.Requests, toExchangeRequestResponse(r))
			}
			return &struct {
				Body ExchangeRequestListResponse
			}{Body: resp}, nil
		})

	huma.Register(api, op("get-exchange-request", http.MethodGet, "/exchange-requests/{id}", "Get exchange request", "exchange"),
		func(ctx context.Context, input *ExchangeRequestPath) (*exchangeRequestOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			req, err := h.exchange.GetRequest(ctx, actor, id)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &exchangeRequestOutput{Body: toExchangeRequestResponse(req)}, nil
		})

	huma.Register(api, op("resolve-exchange-request", http.MethodPost, "/exchange-requests/{id}/resolve", "Accept or reject an incoming exchange request", "exchange"),
		func(ctx context.Context, input *struct {
			ExchangeRequestPath
			Body ResolveExchangeRequestRequest
		}) (*exchangeRequestOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, idErr := parseID(input.ID, "id")
			if idErr != nil {
				return nil, idErr
			}
			req, err := h.exchange.ResolveRequest(ctx, id, actor.UserID, input.Body.Accept)
			if err != nil {
				return nil, h.handleError(err)
			}
			return &exchangeRequestOutput{Body: toExchangeRequestResponse(req)}, nil
		})
}
