package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Freeeeeet/slotswap/internal/migrate"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// Тесты требуют живой Postgres: SLOTSWAP_TEST_PG_DSN=postgres://...
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SLOTSWAP_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SLOTSWAP_TEST_PG_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { db.Close() })

	mg, err := migrate.New(db, migrate.DialectPostgres, nil)
	require.NoError(t, err)
	require.NoError(t, mg.Run(ctx))

	_, err = pool.Exec(ctx, `TRUNCATE exchange_requests, slots`)
	require.NoError(t, err)

	return NewStore(pool)
}

func createSlot(t *testing.T, store *Store, owner string, status model.SlotStatus) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     "slot",
		StartTime: base,
		EndTime:   base.Add(time.Hour),
		Status:    status,
		Version:   1,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, store.Slots().Create(context.Background(), slot))
	return slot
}

func TestPostgresSlotCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	slot := createSlot(t, store, "u1", model.SlotStatusOpen)

	stale, err := store.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)

	require.NoError(t, slot.Lock())
	ok, err := store.Slots().Update(ctx, slot, model.SlotStatusOpen, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), slot.Version)

	require.NoError(t, stale.MarkDeleted("u1", base, time.Hour))
	ok, err = store.Slots().Update(ctx, stale, model.SlotStatusOpen, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusLocked, got.Status)
	assert.Nil(t, got.PriorStatus)
}

func TestPostgresDeletedSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	slot := createSlot(t, store, "u1", model.SlotStatusOpen)

	require.NoError(t, slot.MarkDeleted("u1", base, 24*time.Hour))
	ok, err := store.Slots().Update(ctx, slot, model.SlotStatusOpen, slot.Version)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Slots().GetByID(ctx, slot.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PriorStatus)
	assert.Equal(t, model.SlotStatusOpen, *got.PriorStatus)
	require.NotNil(t, got.RecoveryExpiresAt)
	assert.True(t, base.Add(24*time.Hour).Equal(*got.RecoveryExpiresAt))

	expiring, err := store.Slots().ListExpiring(ctx, "u1", base, base.Add(48*time.Hour), nil, 10)
	require.NoError(t, err)
	require.Len(t, expiring, 1)

	cursor := &repository.ExpiryCursor{ExpiresAt: *expiring[0].RecoveryExpiresAt, ID: expiring[0].ID}
	rest, err := store.Slots().ListExpiring(ctx, "u1", base, base.Add(48*time.Hour), cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)

	purgeable, err := store.Slots().ListPurgeable(ctx, base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, purgeable, 1)

	ok, err = store.Slots().Delete(ctx, slot.ID, got.Version)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresOnePendingRequestPerSlot(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := createSlot(t, store, "u1", model.SlotStatusLocked)
	b := createSlot(t, store, "u2", model.SlotStatusLocked)
	c := createSlot(t, store, "u3", model.SlotStatusLocked)

	req := &model.ExchangeRequest{
		ID: uuid.New(), RequesterID: "u1", RequesteeID: "u2",
		RequesterSlotID: a.ID, RequesteeSlotID: b.ID,
		Status: model.RequestStatusPending, CreatedAt: base,
	}
	require.NoError(t, store.Requests().Create(ctx, req))

	err := store.Requests().Create(ctx, &model.ExchangeRequest{
		ID: uuid.New(), RequesterID: "u3", RequesteeID: "u2",
		RequesterSlotID: c.ID, RequesteeSlotID: b.ID,
		Status: model.RequestStatusPending, CreatedAt: base,
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicate))

	require.NoError(t, req.Resolve(true, base.Add(time.Minute)))
	ok, err := store.Requests().Resolve(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Requests().Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	id := uuid.New()

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		slot := &model.Slot{
			ID: id, OwnerID: "u1", StartTime: base, EndTime: base.Add(time.Hour),
			Status: model.SlotStatusBusy, CreatedAt: base, UpdatedAt: base,
		}
		if err := tx.Slots().Create(ctx, slot); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := store.Slots().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}
