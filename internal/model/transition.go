package model

import "fmt"

// SlotOp - операция, меняющая статус слота
type SlotOp string

const (
	OpSetAvailability SlotOp = "set_availability"
	OpEditWindow      SlotOp = "edit_window"
	OpTransfer        SlotOp = "transfer"
	OpLock            SlotOp = "lock"
	OpAcceptSwap      SlotOp = "accept_swap"
	OpRelease         SlotOp = "release"
	OpSoftDelete      SlotOp = "soft_delete"
	OpRestore         SlotOp = "restore"
)

// slotTransitions - разрешённые переходы статуса для каждой операции.
// Всё, чего нет в таблице, запрещено.
var slotTransitions = map[SlotOp]map[SlotStatus][]SlotStatus{
	OpSetAvailability: {
		SlotStatusBusy: {SlotStatusBusy, SlotStatusOpen},
		SlotStatusOpen: {SlotStatusBusy, SlotStatusOpen},
	},
	OpLock: {
		SlotStatusOpen: {SlotStatusLocked},
	},
	OpAcceptSwap: {
		SlotStatusLocked: {SlotStatusBusy},
	},
	OpRelease: {
		SlotStatusLocked: {SlotStatusOpen},
	},
	OpSoftDelete: {
		SlotStatusBusy: {SlotStatusDeleted},
		SlotStatusOpen: {SlotStatusDeleted},
	},
	OpRestore: {
		SlotStatusDeleted: {SlotStatusBusy, SlotStatusOpen},
	},
}

// CanTransition проверяет переход по таблице
func CanTransition(op SlotOp, from, to SlotStatus) bool {
	for _, allowed := range slotTransitions[op][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionError - переход не разрешён таблицей
type TransitionError struct {
	Op   SlotOp
	From SlotStatus
	To   SlotStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: slot status %s cannot become %s", e.Op, e.From, e.To)
}
