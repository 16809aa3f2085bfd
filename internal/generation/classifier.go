package generation

import (
	"errors"

	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/angelmondragon/receipt-generator/pkg/pdfengine"
)

// Stage names the step of a slot attempt that failed.
type Stage string

const (
	StageTemplate Stage = "template"
	StageEngine   Stage = "engine"
	StageBlob     Stage = "blob"
	StageQueue    Stage = "queue"
)

// Failure is a classified slot or enqueue error.
type Failure struct {
	Code      enums.ReasonErrorCode
	Message   string
	Retryable bool
}

// Classify maps an error raised at stage to its reason code and retry policy.
func Classify(stage Stage, err error) Failure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	switch stage {
	case StageTemplate:
		return Failure{Code: enums.ReasonErrorTemplatePDF, Message: msg}
	case StageEngine:
		var engineErr *pdfengine.Error
		if errors.As(err, &engineErr) && engineErr.Unrenderable() {
			return Failure{Code: enums.ReasonErrorPDFEngine, Message: msg}
		}
		return Failure{Code: enums.ReasonErrorPDFEngine, Message: msg, Retryable: true}
	case StageBlob:
		return Failure{Code: enums.ReasonErrorBlobStorage, Message: msg, Retryable: true}
	case StageQueue:
		return Failure{Code: enums.ReasonErrorQueue, Message: msg, Retryable: true}
	default:
		return Failure{Code: enums.ReasonErrorPDFEngine, Message: msg, Retryable: true}
	}
}
