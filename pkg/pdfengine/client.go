package pdfengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/config"
)

const (
	apiKeyHeader = "Ocp-Apim-Subscription-Key"
	generatePath = "/generate-pdf"
	maxErrorBody = 2048
)

// Request asks the engine to render data with a stored template.
type Request struct {
	TemplateID     string `json:"templateId"`
	Data           any    `json:"data"`
	ApplySignature bool   `json:"applySignature"`
}

// Error carries the engine response for a failed render.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pdf engine returned %d: %s", e.StatusCode, e.Message)
}

// Unrenderable reports whether the engine rejected the template or data
// itself, so a retry cannot succeed.
func (e *Error) Unrenderable() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// Client calls the PDF rendering engine over HTTP. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(cfg config.PDFEngineConfig) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("pdf engine url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// Generate renders the document. The caller owns the returned stream.
func (c *Client) Generate(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.TemplateID == "" {
		return nil, &Error{StatusCode: http.StatusBadRequest, Message: "template id is required"}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{StatusCode: http.StatusUnprocessableEntity, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/pdf")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pdf engine request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = resp.Status
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	return resp.Body, nil
}

// Ping checks the engine answers its info endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("pdf engine info returned %s", resp.Status)
	}
	return nil
}
