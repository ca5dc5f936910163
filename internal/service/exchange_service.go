package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const staleRequestBatch = 100

// RequestDirection - какие заявки пользователя показывать
type RequestDirection string

const (
	DirectionIncoming RequestDirection = "incoming"
	DirectionOutgoing RequestDirection = "outgoing"
	DirectionAll      RequestDirection = "all"
)

// ExchangeService проводит обмен слотами: создание заявки блокирует оба
// слота, решение получателя меняет владельцев или возвращает слоты в open.
// Каждый шаг - одна транзакция над обоими слотами и заявкой.
type ExchangeService struct {
	store      repository.Store
	sink       notify.Sink
	pendingTTL time.Duration
	now        Clock
	logger     *zap.Logger
}

func NewExchangeService(
	store repository.Store,
	sink notify.Sink,
	pendingTTL time.Duration,
	clock Clock,
	logger *zap.Logger,
) *ExchangeService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &ExchangeService{
		store:      store,
		sink:       sink,
		pendingTTL: pendingTTL,
		now:        clockOrDefault(clock),
		logger:     logger,
	}
}

// CreateRequest предлагает обменять слот offeredSlotID владельца requesterID
// на чужой слот targetSlotID. Оба слота переходят в locked.
func (s *ExchangeService) CreateRequest(ctx context.Context, requesterID string, offeredSlotID, targetSlotID uuid.UUID) (*model.ExchangeRequest, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, apperror.InvalidInput("requester id is required")
	}
	if offeredSlotID == targetSlotID {
		return nil, apperror.InvalidInput("offered and target slot must differ")
	}

	now := s.now()
	var req *model.ExchangeRequest

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		offered, err := tx.Slots().GetByID(ctx, offeredSlotID)
		if err != nil {
			return fmt.Errorf("get offered slot: %w", err)
		}
		if offered == nil || offered.IsDeleted() || offered.OwnerID != requesterID {
			return apperror.NotFound("slot %s not found", offeredSlotID)
		}

		target, err := tx.Slots().GetByID(ctx, targetSlotID)
		if err != nil {
			return fmt.Errorf("get target slot: %w", err)
		}
		if target == nil || target.IsDeleted() || target.OwnerID == requesterID {
			return apperror.NotFound("slot %s not found", targetSlotID)
		}

		offeredWrite, targetWrite := pendingWrite(offered), pendingWrite(target)
		if err := offered.Lock(); err != nil {
			return notOpen(offered, err)
		}
		if err := target.Lock(); err != nil {
			return notOpen(target, err)
		}

		for _, w := range orderedPair(offeredWrite, targetWrite) {
			w.slot.UpdatedAt = now
			ok, err := tx.Slots().Update(ctx, w.slot, w.expected, w.expectedVersion)
			if err != nil {
				return fmt.Errorf("lock slot: %w", err)
			}
			if !ok {
				// другой запрос успел заблокировать слот
				return apperror.Conflict(apperror.ReasonSlotNotOpen, "slot %s is no longer open for exchange", w.slot.ID)
			}
		}

		req = &model.ExchangeRequest{
			ID:              uuid.New(),
			RequesterID:     requesterID,
			RequesteeID:     target.OwnerID,
			RequesterSlotID: offered.ID,
			RequesteeSlotID: target.ID,
			Status:          model.RequestStatusPending,
			CreatedAt:       now,
			RequesterSlot:   offered,
			RequesteeSlot:   target,
		}
		if err := tx.Requests().Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Conflict(apperror.ReasonPendingExchange, "one of the slots already has a pending exchange request")
			}
			return fmt.Errorf("create exchange request: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exchange request created",
		zap.String("request_id", req.ID.String()),
		zap.String("requester_id", req.RequesterID),
		zap.String("requestee_id", req.RequesteeID),
		zap.String("requester_slot_id", req.RequesterSlotID.String()),
		zap.String("requestee_slot_id", req.RequesteeSlotID.String()),
	)

	s.sink.Notify(ctx, notify.Event{
		Audience: req.RequesteeID,
		Kind:     notify.KindRequestCreated,
		Payload:  requestPayload(req),
		At:       now,
	})

	return req, nil
}

// ResolveRequest принимает или отклоняет заявку. Решает только получатель,
// и только один раз.
func (s *ExchangeService) ResolveRequest(ctx context.Context, requestID uuid.UUID, actingUserID string, accept bool) (*model.ExchangeRequest, error) {
	now := s.now()
	var req *model.ExchangeRequest

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		req, err = tx.Requests().GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("get exchange request: %w", err)
		}
		if req == nil {
			return apperror.NotFound("exchange request %s not found", requestID)
		}
		if req.RequesteeID != actingUserID {
			return apperror.Forbidden("only the requestee can resolve exchange request %s", requestID)
		}

		return s.resolve(ctx, tx, req, accept, false, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exchange request resolved",
		zap.String("request_id", req.ID.String()),
		zap.String("status", string(req.Status)),
		zap.String("requester_id", req.RequesterID),
		zap.String("requestee_id", req.RequesteeID),
	)

	s.notifyResolved(ctx, req, now)
	return req, nil
}

// GetRequest возвращает заявку одной из её сторон
func (s *ExchangeService) GetRequest(ctx context.Context, actor model.Actor, requestID uuid.UUID) (*model.ExchangeRequest, error) {
	req, err := s.store.Requests().GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get exchange request: %w", err)
	}
	if req == nil || (!actor.IsAdmin && !req.Involves(actor.UserID)) {
		return nil, apperror.NotFound("exchange request %s not found", requestID)
	}

	if err := s.attachSlots(ctx, s.store, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListRequests - заявки пользователя, новые сверху
func (s *ExchangeService) ListRequests(ctx context.Context, userID string, direction RequestDirection) ([]*model.ExchangeRequest, error) {
	switch direction {
	case DirectionIncoming, DirectionOutgoing, DirectionAll, "":
	default:
		return nil, apperror.InvalidInput("unknown direction %q", direction)
	}

	var requests []*model.ExchangeRequest

	if direction == DirectionIncoming || direction == DirectionAll || direction == "" {
		incoming, err := s.store.Requests().ListByRequestee(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list incoming requests: %w", err)
		}
		requests = append(requests, incoming...)
	}
	if direction == DirectionOutgoing || direction == DirectionAll || direction == "" {
		outgoing, err := s.store.Requests().ListByRequester(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list outgoing requests: %w", err)
		}
		requests = append(requests, outgoing...)
	}
	slices.SortStableFunc(requests, func(a, b *model.ExchangeRequest) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return requests, nil
}

// ExpireStaleRequests отклоняет pending заявки старше TTL и возвращает
// их слоты в open. Возвращает число истёкших заявок.
func (s *ExchangeService) ExpireStaleRequests(ctx context.Context) (int, error) {
	if s.pendingTTL <= 0 {
		return 0, nil
	}

	now := s.now()
	cutoff := now.Add(-s.pendingTTL)
	expired := 0
	var errs []error

	for {
		batch, err := s.store.Requests().ListPendingCreatedBefore(ctx, cutoff, staleRequestBatch)
		if err != nil {
			return expired, fmt.Errorf("list stale requests: %w", err)
		}

		progressed := 0
		for _, stale := range batch {
			req, err := s.expireOne(ctx, stale.ID, now)
			if err != nil {
				s.logger.Warn("Failed to expire exchange request",
					zap.String("request_id", stale.ID.String()),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}
			progressed++
			if req == nil {
				continue
			}
			expired++
			s.notifyResolved(ctx, req, now)
		}

		if len(batch) < staleRequestBatch || progressed == 0 {
			break
		}
	}

	if expired > 0 {
		s.logger.Info("Stale exchange requests expired", zap.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

// expireOne отклоняет одну заявку; nil без ошибки - заявку уже решили
func (s *ExchangeService) expireOne(ctx context.Context, requestID uuid.UUID, now time.Time) (*model.ExchangeRequest, error) {
	var req *model.ExchangeRequest

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		req, err = tx.Requests().GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("get exchange request: %w", err)
		}
		if req == nil || !req.IsPending() {
			req = nil
			return nil
		}
		return s.resolve(ctx, tx, req, false, true, now)
	})
	if err != nil {
		if apperror.IsConflict(err, apperror.ReasonAlreadyResolved) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// resolve переводит заявку и оба её слота в итоговое состояние внутри tx
func (s *ExchangeService) resolve(ctx context.Context, tx repository.Store, req *model.ExchangeRequest, accept, expired bool, now time.Time) error {
	if err := req.Resolve(accept, now); err != nil {
		return apperror.Conflict(apperror.ReasonAlreadyResolved, "exchange request %s is already %s", req.ID, req.Status)
	}
	req.Expired = expired

	// Заявка первой: конкурентное решение проиграет здесь
	ok, err := tx.Requests().Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("resolve exchange request: %w", err)
	}
	if !ok {
		return apperror.Conflict(apperror.ReasonAlreadyResolved, "exchange request %s is already resolved", req.ID)
	}

	if err := s.attachSlots(ctx, tx, req); err != nil {
		return err
	}
	requesterSlot, requesteeSlot := req.RequesterSlot, req.RequesteeSlot
	if requesterSlot == nil || requesteeSlot == nil {
		return fmt.Errorf("exchange request %s references a missing slot", req.ID)
	}

	requesterWrite, requesteeWrite := pendingWrite(requesterSlot), pendingWrite(requesteeSlot)
	if accept {
		if err := requesterSlot.CompleteSwap(req.RequesteeID); err != nil {
			return fmt.Errorf("swap slot %s: %w", requesterSlot.ID, err)
		}
		if err := requesteeSlot.CompleteSwap(req.RequesterID); err != nil {
			return fmt.Errorf("swap slot %s: %w", requesteeSlot.ID, err)
		}
	} else {
		if err := requesterSlot.Release(); err != nil {
			return fmt.Errorf("release slot %s: %w", requesterSlot.ID, err)
		}
		if err := requesteeSlot.Release(); err != nil {
			return fmt.Errorf("release slot %s: %w", requesteeSlot.ID, err)
		}
	}

	for _, w := range orderedPair(requesterWrite, requesteeWrite) {
		w.slot.UpdatedAt = now
		ok, err := tx.Slots().Update(ctx, w.slot, w.expected, w.expectedVersion)
		if err != nil {
			return fmt.Errorf("update slot: %w", err)
		}
		if !ok {
			return staleWrite(w.slot.ID)
		}
	}

	return nil
}

func (s *ExchangeService) attachSlots(ctx context.Context, store repository.Store, req *model.ExchangeRequest) error {
	var err error
	req.RequesterSlot, err = store.Slots().GetByID(ctx, req.RequesterSlotID)
	if err != nil {
		return fmt.Errorf("get requester slot: %w", err)
	}
	req.RequesteeSlot, err = store.Slots().GetByID(ctx, req.RequesteeSlotID)
	if err != nil {
		return fmt.Errorf("get requestee slot: %w", err)
	}
	return nil
}

func (s *ExchangeService) notifyResolved(ctx context.Context, req *model.ExchangeRequest, now time.Time) {
	kind := notify.KindRequestRejected
	if req.Status == model.RequestStatusAccepted {
		kind = notify.KindRequestAccepted
	}
	s.sink.Notify(ctx, notify.Event{
		Audience: req.RequesterID,
		Kind:     kind,
		Payload:  requestPayload(req),
		At:       now,
	})
}

func requestPayload(req *model.ExchangeRequest) map[string]any {
	return map[string]any{
		"request_id":        req.ID.String(),
		"requester_id":      req.RequesterID,
		"requestee_id":      req.RequesteeID,
		"requester_slot_id": req.RequesterSlotID.String(),
		"requestee_slot_id": req.RequesteeSlotID.String(),
		"status":            string(req.Status),
		"expired":           req.Expired,
	}
}

// notOpen - слот не может участвовать в новом обмене
func notOpen(slot *model.Slot, err error) error {
	if slot.IsLocked() {
		return apperror.Conflict(apperror.ReasonPendingExchange, "slot %s already has a pending exchange request", slot.ID)
	}
	var te *model.TransitionError
	if errors.As(err, &te) {
		return apperror.Conflict(apperror.ReasonSlotNotOpen, "slot %s is %s, not open for exchange", slot.ID, slot.Status)
	}
	return err
}
