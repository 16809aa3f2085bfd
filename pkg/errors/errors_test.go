package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeConcurrencyConflict, status: http.StatusConflict, publicMsg: "record modified concurrently", retryable: true},
		{code: CodeNotToRetry, status: http.StatusUnprocessableEntity, publicMsg: "event cannot be processed", detailsOK: true},
		{code: CodeUnableToQueue, status: http.StatusServiceUnavailable, publicMsg: "unable to schedule retry", retryable: true},
		{code: CodeUnableToSave, status: http.StatusServiceUnavailable, publicMsg: "unable to persist record", retryable: true},
		{code: CodeTokenizer, status: http.StatusBadGateway, publicMsg: "tokenizer unavailable", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeUnableToSave, cause, "update receipt")

	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause")
	}
	if wrapped.Error() != "UNABLE_TO_SAVE: update receipt: connection reset" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestIsCodeAndRetryable(t *testing.T) {
	notFound := fmt.Errorf("loading: %w", New(CodeNotFound, "receipt missing"))
	if !IsCode(notFound, CodeNotFound) {
		t.Fatalf("expected IsCode to find NOT_FOUND through fmt wrapping")
	}
	if IsRetryable(notFound) {
		t.Fatalf("not found must not be retryable")
	}
	if !IsRetryable(New(CodeUnableToQueue, "publish failed")) {
		t.Fatalf("unable to queue must be retryable")
	}
	if !IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors are treated as transient")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestAsNil(t *testing.T) {
	if As(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("expected nil for untyped error")
	}
}

func TestDumpCarriesCodeDetailsAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "receipts_pkey", TableName: "receipts", Message: "duplicate key value"}
	err := fmt.Errorf("insert: %w", Wrap(CodeConflict, pgErr, "receipt evt-1 already exists").
		WithDetails(map[string]any{"id": "evt-1"}))

	d := Dump(err)
	if d.Code != CodeConflict || d.HTTPStatus != http.StatusConflict || d.Retryable {
		t.Fatalf("unexpected dump header %+v", d)
	}
	if d.Postgres == nil || d.Postgres.Constraint != "receipts_pkey" || d.Postgres.Table != "receipts" {
		t.Fatalf("unexpected postgres fields %+v", d.Postgres)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if d.Details == nil {
		t.Fatalf("expected details")
	}
}

func TestDumpUntypedError(t *testing.T) {
	d := Dump(stdErrors.New("socket closed"))
	if d.Code != "" || d.HTTPStatus != http.StatusInternalServerError || !d.Retryable || d.Postgres != nil {
		t.Fatalf("unexpected dump %+v", d)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("expected empty dump for nil")
	}
}
