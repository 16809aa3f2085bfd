package generation

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/angelmondragon/receipt-generator/pkg/pdfengine"
	"github.com/angelmondragon/receipt-generator/pkg/storage/gcs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		stage     Stage
		err       error
		code      enums.ReasonErrorCode
		retryable bool
	}{
		{name: "template", stage: StageTemplate, err: errors.New("missing psp"), code: enums.ReasonErrorTemplatePDF},
		{name: "engine unavailable", stage: StageEngine, err: &pdfengine.Error{StatusCode: http.StatusServiceUnavailable}, code: enums.ReasonErrorPDFEngine, retryable: true},
		{name: "engine transport", stage: StageEngine, err: errors.New("connection reset"), code: enums.ReasonErrorPDFEngine, retryable: true},
		{name: "engine bad request", stage: StageEngine, err: &pdfengine.Error{StatusCode: http.StatusBadRequest}, code: enums.ReasonErrorPDFEngine},
		{name: "engine unprocessable wrapped", stage: StageEngine, err: fmt.Errorf("render: %w", &pdfengine.Error{StatusCode: http.StatusUnprocessableEntity}), code: enums.ReasonErrorPDFEngine},
		{name: "blob", stage: StageBlob, err: &gcs.UploadError{StatusCode: http.StatusForbidden}, code: enums.ReasonErrorBlobStorage, retryable: true},
		{name: "queue", stage: StageQueue, err: errors.New("publish timeout"), code: enums.ReasonErrorQueue, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stage, tt.err)
			if got.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got.Code)
			}
			if got.Retryable != tt.retryable {
				t.Fatalf("expected retryable %v, got %v", tt.retryable, got.Retryable)
			}
			if got.Message != tt.err.Error() {
				t.Fatalf("expected message %q, got %q", tt.err.Error(), got.Message)
			}
		})
	}
}
