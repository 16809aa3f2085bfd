package enums

import "fmt"

// ReceiptStatus is the lifecycle state of a receipt or cart record.
type ReceiptStatus string

const (
	ReceiptStatusWaitingForEvent ReceiptStatus = "WAITING_FOR_EVENT"
	ReceiptStatusNotQueueSent    ReceiptStatus = "NOT_QUEUE_SENT"
	ReceiptStatusInserted        ReceiptStatus = "INSERTED"
	ReceiptStatusRetry           ReceiptStatus = "RETRY"
	ReceiptStatusGenerated       ReceiptStatus = "GENERATED"
	ReceiptStatusSigned          ReceiptStatus = "SIGNED"
	ReceiptStatusFailed          ReceiptStatus = "FAILED"
	ReceiptStatusIONotified      ReceiptStatus = "IO_NOTIFIED"
	ReceiptStatusIOErrorToNotify ReceiptStatus = "IO_ERROR_TO_NOTIFY"
	ReceiptStatusIONotifierRetry ReceiptStatus = "IO_NOTIFIER_RETRY"
	ReceiptStatusNotToNotify     ReceiptStatus = "NOT_TO_NOTIFY"
	ReceiptStatusToReview        ReceiptStatus = "TO_REVIEW"
	ReceiptStatusUnableToSend    ReceiptStatus = "UNABLE_TO_SEND"
)

type statusTraits struct {
	notifier    bool
	terminal    bool
	generatable bool
}

var receiptStatusTraits = map[ReceiptStatus]statusTraits{
	ReceiptStatusWaitingForEvent: {},
	ReceiptStatusNotQueueSent:    {},
	ReceiptStatusInserted:        {generatable: true},
	ReceiptStatusRetry:           {generatable: true},
	ReceiptStatusGenerated:       {},
	ReceiptStatusSigned:          {},
	ReceiptStatusFailed:          {},
	ReceiptStatusIONotified:      {notifier: true, terminal: true},
	ReceiptStatusIOErrorToNotify: {notifier: true},
	ReceiptStatusIONotifierRetry: {notifier: true},
	ReceiptStatusNotToNotify:     {notifier: true, terminal: true},
	ReceiptStatusToReview:        {terminal: true},
	ReceiptStatusUnableToSend:    {terminal: true},
}

// String implements fmt.Stringer.
func (s ReceiptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReceiptStatus.
func (s ReceiptStatus) IsValid() bool {
	_, ok := receiptStatusTraits[s]
	return ok
}

// IsNotifierStatus reports whether the status belongs to the notifier sub-chain.
func (s ReceiptStatus) IsNotifierStatus() bool {
	return receiptStatusTraits[s].notifier
}

// IsTerminal reports whether no further generator-driven transition may leave s.
func (s ReceiptStatus) IsTerminal() bool {
	return receiptStatusTraits[s].terminal
}

// IsGeneratable reports whether the orchestrator may run a generation attempt from s.
func (s ReceiptStatus) IsGeneratable() bool {
	return receiptStatusTraits[s].generatable
}

// ReceiptStatuses lists every status in declaration order.
func ReceiptStatuses() []ReceiptStatus {
	return []ReceiptStatus{
		ReceiptStatusWaitingForEvent,
		ReceiptStatusNotQueueSent,
		ReceiptStatusInserted,
		ReceiptStatusRetry,
		ReceiptStatusGenerated,
		ReceiptStatusSigned,
		ReceiptStatusFailed,
		ReceiptStatusIONotified,
		ReceiptStatusIOErrorToNotify,
		ReceiptStatusIONotifierRetry,
		ReceiptStatusNotToNotify,
		ReceiptStatusToReview,
		ReceiptStatusUnableToSend,
	}
}

// ParseReceiptStatus converts raw input into a ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	status := ReceiptStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid receipt status %q", value)
	}
	return status, nil
}
