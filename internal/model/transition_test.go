package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		op   SlotOp
		from SlotStatus
		to   SlotStatus
		want bool
	}{
		{OpSetAvailability, SlotStatusBusy, SlotStatusOpen, true},
		{OpSetAvailability, SlotStatusOpen, SlotStatusBusy, true},
		{OpSetAvailability, SlotStatusLocked, SlotStatusOpen, false},
		{OpSetAvailability, SlotStatusDeleted, SlotStatusBusy, false},
		{OpSetAvailability, SlotStatusOpen, SlotStatusLocked, false},
		{OpLock, SlotStatusOpen, SlotStatusLocked, true},
		{OpLock, SlotStatusBusy, SlotStatusLocked, false},
		{OpLock, SlotStatusLocked, SlotStatusLocked, false},
		{OpAcceptSwap, SlotStatusLocked, SlotStatusBusy, true},
		{OpAcceptSwap, SlotStatusOpen, SlotStatusBusy, false},
		{OpRelease, SlotStatusLocked, SlotStatusOpen, true},
		{OpRelease, SlotStatusBusy, SlotStatusOpen, false},
		{OpSoftDelete, SlotStatusBusy, SlotStatusDeleted, true},
		{OpSoftDelete, SlotStatusOpen, SlotStatusDeleted, true},
		{OpSoftDelete, SlotStatusLocked, SlotStatusDeleted, false},
		{OpSoftDelete, SlotStatusDeleted, SlotStatusDeleted, false},
		{OpRestore, SlotStatusDeleted, SlotStatusOpen, true},
		{OpRestore, SlotStatusDeleted, SlotStatusLocked, false},
		{OpRestore, SlotStatusBusy, SlotStatusBusy, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+"_"+string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.op, tt.from, tt.to))
		})
	}
}

func TestParseSlotStatus(t *testing.T) {
	s, err := ParseSlotStatus("open")
	assert.NoError(t, err)
	assert.Equal(t, SlotStatusOpen, s)

	_, err = ParseSlotStatus("swap_pending")
	assert.Error(t, err)
}
