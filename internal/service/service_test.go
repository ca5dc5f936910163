package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/slotswap/internal/migrate"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/Freeeeeet/slotswap/internal/repository/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRetention = 30 * 24 * time.Hour
	testHorizon   = 3 * 24 * time.Hour
	testTTL       = 7 * 24 * time.Hour
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store     *sqlite.Store
	clock     *fakeClock
	sink      *notify.Recorder
	slots     *SlotService
	exchange  *ExchangeService
	retention *RetentionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "slotswap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mg, err := migrate.New(store.DB(), migrate.DialectSQLite, nil)
	require.NoError(t, err)
	require.NoError(t, mg.Run(context.Background()))

	clock := &fakeClock{now: base}
	sink := &notify.Recorder{}
	logger := zap.NewNop()

	return &testEnv{
		store:     store,
		clock:     clock,
		sink:      sink,
		slots:     NewSlotService(store, 24*time.Hour, clock.Now, logger),
		exchange:  NewExchangeService(store, sink, testTTL, clock.Now, logger),
		retention: NewRetentionService(store, sink, testRetention, testHorizon, clock.Now, logger),
	}
}

func (e *testEnv) slot(t *testing.T, owner string, open bool) *model.Slot {
	t.Helper()
	start := e.clock.Now().Add(24 * time.Hour)
	slot, err := e.slots.CreateSlot(context.Background(), owner, CreateSlotInput{
		Title:     "slot of " + owner,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Open:      open,
	})
	require.NoError(t, err)
	return slot
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *model.Slot {
	t.Helper()
	slot, err := e.store.Slots().GetByID(context.Background(), id)
	require.NoError(t, err)
	return slot
}

func user(id string) model.Actor {
	return model.Actor{UserID: id}
}

func (e *testEnv) actorFor(slot *model.Slot) model.Actor {
	return user(slot.OwnerID)
}
