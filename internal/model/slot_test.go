package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlot(status SlotStatus) *Slot {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return &Slot{
		OwnerID:   "u1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    status,
	}
}

func TestValidateWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateWindow(start, start.Add(24*time.Hour), 24*time.Hour))
	assert.ErrorIs(t, ValidateWindow(start, start, 24*time.Hour), ErrEmptyWindow)
	assert.ErrorIs(t, ValidateWindow(start, start.Add(-time.Minute), 24*time.Hour), ErrEmptyWindow)
	assert.ErrorIs(t, ValidateWindow(start, start.Add(24*time.Hour+time.Second), 24*time.Hour), ErrWindowTooLong)
}

func TestSlotSoftDeleteRestoreKeepsPriorStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, status := range []SlotStatus{SlotStatusBusy, SlotStatusOpen} {
		slot := newSlot(status)

		require.NoError(t, slot.MarkDeleted("u1", at, 30*24*time.Hour))
		assert.Equal(t, SlotStatusDeleted, slot.Status)
		require.NotNil(t, slot.RecoveryExpiresAt)
		assert.Equal(t, at.Add(30*24*time.Hour), *slot.RecoveryExpiresAt)
		assert.Equal(t, "u1", *slot.DeletedBy)

		require.NoError(t, slot.Restore())
		assert.Equal(t, status, slot.Status)
		assert.Nil(t, slot.PriorStatus)
		assert.Nil(t, slot.DeletedAt)
		assert.Nil(t, slot.DeletedBy)
		assert.Nil(t, slot.RecoveryExpiresAt)
	}
}

func TestSlotLockedCannotBeDeletedOrEdited(t *testing.T) {
	slot := newSlot(SlotStatusOpen)
	require.NoError(t, slot.Lock())

	var terr *TransitionError
	assert.ErrorAs(t, slot.MarkDeleted("u1", time.Now(), time.Hour), &terr)
	assert.Nil(t, slot.DeletedAt)

	err := slot.SetWindow(slot.StartTime, slot.EndTime.Add(time.Hour), 24*time.Hour)
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, OpEditWindow, terr.Op)

	assert.ErrorAs(t, slot.TransferTo("u2"), &terr)
	assert.Equal(t, "u1", slot.OwnerID)
}

func TestSlotSwapLifecycle(t *testing.T) {
	slot := newSlot(SlotStatusOpen)
	require.NoError(t, slot.Lock())
	require.NoError(t, slot.CompleteSwap("u2"))
	assert.Equal(t, SlotStatusBusy, slot.Status)
	assert.Equal(t, "u2", slot.OwnerID)

	// нельзя принять обмен повторно
	assert.Error(t, slot.CompleteSwap("u3"))
	assert.Equal(t, "u2", slot.OwnerID)
}

func TestSlotRecoveryBoundary(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slot := newSlot(SlotStatusBusy)
	require.NoError(t, slot.MarkDeleted("u1", at, time.Hour))

	expiry := *slot.RecoveryExpiresAt
	assert.True(t, slot.IsRecoverable(expiry.Add(-time.Nanosecond)))
	assert.False(t, slot.IsPurgeable(expiry.Add(-time.Nanosecond)))
	assert.False(t, slot.IsRecoverable(expiry))
	assert.True(t, slot.IsPurgeable(expiry))
}

func TestExchangeRequestResolveOnce(t *testing.T) {
	req := &ExchangeRequest{Status: RequestStatusPending}
	at := time.Now()

	require.NoError(t, req.Resolve(true, at))
	assert.Equal(t, RequestStatusAccepted, req.Status)
	assert.Error(t, req.Resolve(false, at))
	assert.Equal(t, RequestStatusAccepted, req.Status)
}
