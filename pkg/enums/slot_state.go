package enums

// SlotState tracks the generation progress of a single recipient document.
type SlotState string

const (
	SlotStatePending   SlotState = "PENDING"
	SlotStateGenerated SlotState = "GENERATED"
	SlotStateSigned    SlotState = "SIGNED"
	SlotStateRetry     SlotState = "RETRY"
	SlotStateFailed    SlotState = "FAILED"
)

var validSlotStates = []SlotState{
	SlotStatePending,
	SlotStateGenerated,
	SlotStateSigned,
	SlotStateRetry,
	SlotStateFailed,
}

// SlotStates lists every slot state.
func SlotStates() []SlotState {
	out := make([]SlotState, len(validSlotStates))
	copy(out, validSlotStates)
	return out
}

// IsValid reports whether the value is a known SlotState.
func (s SlotState) IsValid() bool {
	for _, candidate := range validSlotStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSuccess reports whether the slot already holds a stored document.
func (s SlotState) IsSuccess() bool {
	return s == SlotStateGenerated || s == SlotStateSigned
}

// NeedsGeneration reports whether the orchestrator should attempt the slot.
func (s SlotState) NeedsGeneration() bool {
	return s == SlotStatePending || s == SlotStateRetry
}
