package status

import (
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
)

// Derive computes the top-level status from the current status and the slots.
// Precedence: terminal sinks, then failure, retry, pending and finally success.
func Derive(current enums.ReceiptStatus, slots []models.Outcome) enums.ReceiptStatus {
	if current.IsTerminal() {
		return current
	}
	if len(slots) == 0 {
		return current
	}

	var failed, retry, pending bool
	allSigned := true
	for _, slot := range slots {
		switch slot.State {
		case enums.SlotStateFailed:
			failed = true
		case enums.SlotStateRetry:
			retry = true
		case enums.SlotStateGenerated:
			allSigned = false
		case enums.SlotStateSigned:
		default:
			pending = true
		}
	}

	switch {
	case failed:
		return enums.ReceiptStatusToReview
	case retry:
		return enums.ReceiptStatusRetry
	case pending:
		return enums.ReceiptStatusInserted
	case current.IsNotifierStatus():
		return current
	case allSigned:
		return enums.ReceiptStatusSigned
	default:
		return enums.ReceiptStatusGenerated
	}
}

// AllSucceeded reports whether every slot holds a stored document.
func AllSucceeded(slots []models.Outcome) bool {
	if len(slots) == 0 {
		return false
	}
	for _, slot := range slots {
		if !slot.State.IsSuccess() {
			return false
		}
	}
	return true
}
