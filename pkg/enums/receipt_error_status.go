package enums

import "fmt"

// ReceiptErrorStatus tracks operator handling of a dead-lettered unit.
type ReceiptErrorStatus string

const (
	ReceiptErrorStatusToReview    ReceiptErrorStatus = "TO_REVIEW"
	ReceiptErrorStatusReprocessed ReceiptErrorStatus = "REPROCESSED"
)

var validReceiptErrorStatuses = []ReceiptErrorStatus{
	ReceiptErrorStatusToReview,
	ReceiptErrorStatusReprocessed,
}

// IsValid reports whether the value is a known ReceiptErrorStatus.
func (s ReceiptErrorStatus) IsValid() bool {
	for _, candidate := range validReceiptErrorStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReceiptErrorStatus converts raw input into a ReceiptErrorStatus.
func ParseReceiptErrorStatus(value string) (ReceiptErrorStatus, error) {
	for _, candidate := range validReceiptErrorStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt error status %q", value)
}
