package enums

import "testing"

func TestReceiptStatusClassification(t *testing.T) {
	notifier := map[ReceiptStatus]bool{
		ReceiptStatusIONotified:      true,
		ReceiptStatusIOErrorToNotify: true,
		ReceiptStatusIONotifierRetry: true,
		ReceiptStatusNotToNotify:     true,
	}
	terminal := map[ReceiptStatus]bool{
		ReceiptStatusIONotified:   true,
		ReceiptStatusNotToNotify:  true,
		ReceiptStatusToReview:     true,
		ReceiptStatusUnableToSend: true,
	}
	generatable := map[ReceiptStatus]bool{
		ReceiptStatusInserted: true,
		ReceiptStatusRetry:    true,
	}

	for _, status := range ReceiptStatuses() {
		if !status.IsValid() {
			t.Fatalf("%s should be valid", status)
		}
		if got := status.IsNotifierStatus(); got != notifier[status] {
			t.Fatalf("%s IsNotifierStatus=%v", status, got)
		}
		if got := status.IsTerminal(); got != terminal[status] {
			t.Fatalf("%s IsTerminal=%v", status, got)
		}
		if got := status.IsGeneratable(); got != generatable[status] {
			t.Fatalf("%s IsGeneratable=%v", status, got)
		}
	}
}

func TestParseReceiptStatus(t *testing.T) {
	status, err := ParseReceiptStatus("TO_REVIEW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ReceiptStatusToReview {
		t.Fatalf("unexpected status %s", status)
	}
	if _, err := ParseReceiptStatus("DONE"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if ReceiptStatus("DONE").IsNotifierStatus() {
		t.Fatalf("unknown status must not classify as notifier")
	}
}

func TestSlotStatePredicates(t *testing.T) {
	for _, state := range SlotStates() {
		success := state == SlotStateGenerated || state == SlotStateSigned
		if state.IsSuccess() != success {
			t.Fatalf("%s IsSuccess mismatch", state)
		}
		needs := state == SlotStatePending || state == SlotStateRetry
		if state.NeedsGeneration() != needs {
			t.Fatalf("%s NeedsGeneration mismatch", state)
		}
	}
}

func TestParseReceiptErrorStatus(t *testing.T) {
	if _, err := ParseReceiptErrorStatus("REPROCESSED"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseReceiptErrorStatus("open"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
