package enums

// ReasonErrorCode identifies which collaborator caused a slot failure.
type ReasonErrorCode string

const (
	ReasonErrorPDFEngine   ReasonErrorCode = "ERROR_PDF_ENGINE"
	ReasonErrorTemplatePDF ReasonErrorCode = "ERROR_TEMPLATE_PDF"
	ReasonErrorBlobStorage ReasonErrorCode = "ERROR_BLOB_STORAGE"
	ReasonErrorQueue       ReasonErrorCode = "ERROR_QUEUE"
)

var validReasonErrorCodes = []ReasonErrorCode{
	ReasonErrorPDFEngine,
	ReasonErrorTemplatePDF,
	ReasonErrorBlobStorage,
	ReasonErrorQueue,
}

// IsValid reports whether the value is a known ReasonErrorCode.
func (c ReasonErrorCode) IsValid() bool {
	for _, candidate := range validReasonErrorCodes {
		if candidate == c {
			return true
		}
	}
	return false
}
