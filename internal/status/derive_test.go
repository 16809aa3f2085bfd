package status

import (
	"testing"

	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
)

func TestDeriveTerminalStatusesAreSinks(t *testing.T) {
	terminal := []enums.ReceiptStatus{
		enums.ReceiptStatusIONotified,
		enums.ReceiptStatusNotToNotify,
		enums.ReceiptStatusToReview,
		enums.ReceiptStatusUnableToSend,
	}
	for _, current := range terminal {
		for _, state := range enums.SlotStates() {
			slots := []models.Outcome{{Key: "debtor", State: state}}
			if got := Derive(current, slots); got != current {
				t.Fatalf("Derive(%s, %s) moved terminal status to %s", current, state, got)
			}
		}
	}
}

func TestDeriveCrossProduct(t *testing.T) {
	nonTerminal := []enums.ReceiptStatus{}
	for _, status := range enums.ReceiptStatuses() {
		if !status.IsTerminal() {
			nonTerminal = append(nonTerminal, status)
		}
	}

	for _, current := range nonTerminal {
		for _, debtor := range enums.SlotStates() {
			for _, payer := range enums.SlotStates() {
				slots := []models.Outcome{
					{Key: "debtor", State: debtor},
					{Key: "payer", State: payer},
				}
				got := Derive(current, slots)
				want := expectedDerive(current, debtor, payer)
				if got != want {
					t.Fatalf("Derive(%s, [%s %s]) = %s, want %s", current, debtor, payer, got, want)
				}
			}
		}
	}
}

func expectedDerive(current enums.ReceiptStatus, a, b enums.SlotState) enums.ReceiptStatus {
	has := func(s enums.SlotState) bool { return a == s || b == s }
	switch {
	case has(enums.SlotStateFailed):
		return enums.ReceiptStatusToReview
	case has(enums.SlotStateRetry):
		return enums.ReceiptStatusRetry
	case has(enums.SlotStatePending):
		return enums.ReceiptStatusInserted
	case current.IsNotifierStatus():
		return current
	case a == enums.SlotStateSigned && b == enums.SlotStateSigned:
		return enums.ReceiptStatusSigned
	default:
		return enums.ReceiptStatusGenerated
	}
}

func TestDeriveWithoutSlotsKeepsCurrent(t *testing.T) {
	if got := Derive(enums.ReceiptStatusWaitingForEvent, nil); got != enums.ReceiptStatusWaitingForEvent {
		t.Fatalf("expected waiting cart to stay waiting, got %s", got)
	}
	if got := Derive(enums.ReceiptStatusInserted, nil); got != enums.ReceiptStatusInserted {
		t.Fatalf("expected status unchanged, got %s", got)
	}
}

func TestAllSucceeded(t *testing.T) {
	if AllSucceeded(nil) {
		t.Fatal("no slots is not a success")
	}
	slots := []models.Outcome{{State: enums.SlotStateGenerated}, {State: enums.SlotStateSigned}}
	if !AllSucceeded(slots) {
		t.Fatal("expected generated+signed to succeed")
	}
	slots[1].State = enums.SlotStateRetry
	if AllSucceeded(slots) {
		t.Fatal("retry slot is not a success")
	}
}
