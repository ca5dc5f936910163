package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExchangeAcceptSwapsOwners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)

	req, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.Equal(t, "u2", req.RequesteeID)
	assert.Equal(t, model.SlotStatusLocked, env.reload(t, a.ID).Status)
	assert.Equal(t, model.SlotStatusLocked, env.reload(t, b.ID).Status)

	created := env.sink.For("u2")
	require.Len(t, created, 1)
	assert.Equal(t, notify.KindRequestCreated, created[0].Kind)
	assert.Equal(t, req.ID.String(), created[0].Payload["request_id"])

	resolved, err := env.exchange.ResolveRequest(ctx, req.ID, "u2", true)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusAccepted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	gotA, gotB := env.reload(t, a.ID), env.reload(t, b.ID)
	assert.Equal(t, "u2", gotA.OwnerID)
	assert.Equal(t, model.SlotStatusBusy, gotA.Status)
	assert.Equal(t, "u1", gotB.OwnerID)
	assert.Equal(t, model.SlotStatusBusy, gotB.Status)

	accepted := env.sink.For("u1")
	require.Len(t, accepted, 1)
	assert.Equal(t, notify.KindRequestAccepted, accepted[0].Kind)

	// терминальный статус не применяется повторно
	for _, accept := range []bool{true, false} {
		_, err = env.exchange.ResolveRequest(ctx, req.ID, "u2", accept)
		assert.True(t, apperror.IsConflict(err, apperror.ReasonAlreadyResolved))
	}
	assert.Equal(t, "u2", env.reload(t, a.ID).OwnerID)
	assert.Len(t, env.sink.For("u1"), 1)
}

func TestExchangeRejectReleasesSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)

	req, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	resolved, err := env.exchange.ResolveRequest(ctx, req.ID, "u2", false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, resolved.Status)
	assert.False(t, resolved.Expired)

	gotA, gotB := env.reload(t, a.ID), env.reload(t, b.ID)
	assert.Equal(t, "u1", gotA.OwnerID)
	assert.Equal(t, model.SlotStatusOpen, gotA.Status)
	assert.Equal(t, "u2", gotB.OwnerID)
	assert.Equal(t, model.SlotStatusOpen, gotB.Status)

	events := env.sink.For("u1")
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindRequestRejected, events[0].Kind)

	// слоты снова можно предлагать
	_, err = env.exchange.CreateRequest(ctx, "u2", b.ID, a.ID)
	assert.NoError(t, err)
}

func TestResolveRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)

	_, err := env.exchange.ResolveRequest(ctx, uuid.New(), "u2", true)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	req, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	// инициатор не может сам принять свою заявку
	_, err = env.exchange.ResolveRequest(ctx, req.ID, "u1", true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = env.exchange.ResolveRequest(ctx, req.ID, "u3", true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	assert.Equal(t, model.SlotStatusLocked, env.reload(t, a.ID).Status)
}

func TestCreateRequestPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	busyA := env.slot(t, "u1", false)
	b := env.slot(t, "u2", true)
	busyB := env.slot(t, "u2", false)
	ownOpen := env.slot(t, "u1", true)

	tests := []struct {
		name      string
		requester string
		offered   uuid.UUID
		target    uuid.UUID
		kind      error
		reason    apperror.Reason
	}{
		{"missing offered", "u1", uuid.New(), b.ID, apperror.ErrNotFound, ""},
		{"missing target", "u1", a.ID, uuid.New(), apperror.ErrNotFound, ""},
		{"offered owned by someone else", "u3", a.ID, b.ID, apperror.ErrNotFound, ""},
		{"target is own slot", "u1", a.ID, ownOpen.ID, apperror.ErrNotFound, ""},
		{"offered busy", "u1", busyA.ID, b.ID, apperror.ErrConflict, apperror.ReasonSlotNotOpen},
		{"target busy", "u1", a.ID, busyB.ID, apperror.ErrConflict, apperror.ReasonSlotNotOpen},
		{"same slot", "u1", a.ID, a.ID, apperror.ErrInvalidInput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.exchange.CreateRequest(ctx, tt.requester, tt.offered, tt.target)
			require.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.reason, apperror.ReasonOf(err))
		})
	}

	// ни один отказ не оставил слоты заблокированными
	for _, id := range []uuid.UUID{a.ID, b.ID, ownOpen.ID} {
		assert.Equal(t, model.SlotStatusOpen, env.reload(t, id).Status)
	}
	assert.Empty(t, env.sink.Events())
}

func TestCreateRequestOnLockedSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)
	c := env.slot(t, "u3", true)

	_, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	_, err = env.exchange.CreateRequest(ctx, "u3", c.ID, b.ID)
	assert.True(t, apperror.IsConflict(err, apperror.ReasonPendingExchange))
	assert.Equal(t, model.SlotStatusOpen, env.reload(t, c.ID).Status)

	// удалённый слот не участвует в обмене
	_, err = env.retention.SoftDelete(ctx, user("u3"), c.ID)
	require.NoError(t, err)
	d := env.slot(t, "u4", true)
	_, err = env.exchange.CreateRequest(ctx, "u4", d.ID, c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestConcurrentRequestsForSameTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.slot(t, "owner", true)

	const n = 8
	offered := make([]*model.Slot, n)
	for i := range offered {
		offered[i] = env.slot(t, fmt.Sprintf("u%d", i), true)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.exchange.CreateRequest(ctx, fmt.Sprintf("u%d", i), offered[i].ID, target.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Equal(t, model.SlotStatusLocked, env.reload(t, offered[i].ID).Status)
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrConflict)
		// проигравший не оставил свой слот заблокированным
		assert.Equal(t, model.SlotStatusOpen, env.reload(t, offered[i].ID).Status)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, model.SlotStatusLocked, env.reload(t, target.ID).Status)

	incoming, err := env.exchange.ListRequests(ctx, "owner", DirectionIncoming)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}

func TestConcurrentResolveAppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)

	req, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, accept := range []bool{true, false} {
		wg.Add(1)
		go func(i int, accept bool) {
			defer wg.Done()
			_, results[i] = env.exchange.ResolveRequest(ctx, req.ID, "u2", accept)
		}(i, accept)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperror.IsConflict(err, apperror.ReasonAlreadyResolved))
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := env.exchange.GetRequest(ctx, user("u1"), req.ID)
	require.NoError(t, err)
	gotA := env.reload(t, a.ID)
	switch got.Status {
	case model.RequestStatusAccepted:
		assert.Equal(t, "u2", gotA.OwnerID)
		assert.Equal(t, model.SlotStatusBusy, gotA.Status)
	case model.RequestStatusRejected:
		assert.Equal(t, "u1", gotA.OwnerID)
		assert.Equal(t, model.SlotStatusOpen, gotA.Status)
	default:
		t.Fatalf("request left in status %s", got.Status)
	}
}

func TestGetAndListRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)
	c := env.slot(t, "u2", true)
	d := env.slot(t, "u1", true)

	first, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.exchange.CreateRequest(ctx, "u2", c.ID, d.ID)
	require.NoError(t, err)

	got, err := env.exchange.GetRequest(ctx, user("u2"), first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RequesterSlot)
	assert.Equal(t, a.ID, got.RequesterSlot.ID)

	_, err = env.exchange.GetRequest(ctx, user("u3"), first.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.exchange.GetRequest(ctx, model.Actor{UserID: "root", IsAdmin: true}, first.ID)
	assert.NoError(t, err)

	all, err := env.exchange.ListRequests(ctx, "u1", DirectionAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	outgoing, err := env.exchange.ListRequests(ctx, "u1", DirectionOutgoing)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, first.ID, outgoing[0].ID)

	_, err = env.exchange.ListRequests(ctx, "u1", "sideways")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestExpireStaleRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)
	c := env.slot(t, "u3", true)
	d := env.slot(t, "u4", true)

	stale, err := env.exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)
	env.clock.Advance(5 * 24 * time.Hour)
	fresh, err := env.exchange.CreateRequest(ctx, "u3", c.ID, d.ID)
	require.NoError(t, err)

	env.clock.Advance(2*24*time.Hour + time.Second)
	env.sink.Reset()

	count, err := env.exchange.ExpireStaleRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := env.exchange.GetRequest(ctx, user("u1"), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, got.Status)
	assert.True(t, got.Expired)
	assert.Equal(t, model.SlotStatusOpen, got.RequesterSlot.Status)
	assert.Equal(t, model.SlotStatusOpen, got.RequesteeSlot.Status)

	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].Audience)
	assert.Equal(t, notify.KindRequestRejected, events[0].Kind)
	assert.Equal(t, true, events[0].Payload["expired"])

	got, err = env.exchange.GetRequest(ctx, user("u3"), fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())

	// истёкшую заявку уже нельзя принять
	_, err = env.exchange.ResolveRequest(ctx, stale.ID, "u2", true)
	assert.True(t, apperror.IsConflict(err, apperror.ReasonAlreadyResolved))

	count, err = env.exchange.ExpireStaleRequests(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpireStaleRequestsDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exchange := NewExchangeService(env.store, env.sink, 0, env.clock.Now, zap.NewNop())
	a := env.slot(t, "u1", true)
	b := env.slot(t, "u2", true)

	req, err := exchange.CreateRequest(ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)

	env.clock.Advance(365 * 24 * time.Hour)
	count, err := exchange.ExpireStaleRequests(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := exchange.GetRequest(ctx, user("u1"), req.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
}
