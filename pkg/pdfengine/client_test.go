package pdfengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/receipt-generator/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.PDFEngineConfig{URL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestGenerateStreamsPDF(t *testing.T) {
	var got Request
	var gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get(apiKeyHeader)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7")
	})

	body, err := client.Generate(context.Background(), Request{
		TemplateID:     "pagopa-ricevuta",
		Data:           map[string]string{"amount": "10.00"},
		ApplySignature: true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	defer body.Close()

	pdf, _ := io.ReadAll(body)
	if string(pdf) != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", pdf)
	}
	if gotKey != "secret" || got.TemplateID != "pagopa-ricevuta" || !got.ApplySignature {
		t.Fatalf("unexpected request key=%q req=%+v", gotKey, got)
	}
}

func TestGenerateErrorsAreTyped(t *testing.T) {
	cases := []struct {
		status       int
		unrenderable bool
	}{
		{status: http.StatusBadRequest, unrenderable: true},
		{status: http.StatusUnprocessableEntity, unrenderable: true},
		{status: http.StatusInternalServerError},
		{status: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "engine says no", tc.status)
		})
		_, err := client.Generate(context.Background(), Request{TemplateID: "t"})

		var engineErr *Error
		if !errors.As(err, &engineErr) {
			t.Fatalf("status %d: expected *Error, got %v", tc.status, err)
		}
		if engineErr.StatusCode != tc.status || engineErr.Unrenderable() != tc.unrenderable {
			t.Fatalf("status %d: unexpected error %+v", tc.status, engineErr)
		}
		if engineErr.Message != "engine says no" {
			t.Fatalf("unexpected message %q", engineErr.Message)
		}
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(config.PDFEngineConfig{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
