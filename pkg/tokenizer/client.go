package tokenizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/config"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
)

const apiKeyHeader = "x-api-key"

// Client swaps personal data for opaque tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(cfg config.TokenizerConfig) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tokenizer url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// CreateToken returns the token for pii. Failures carry the upstream status
// code in the error details, 0 when the service was unreachable.
func (c *Client) CreateToken(ctx context.Context, pii string) (string, error) {
	body, err := json.Marshal(map[string]string{"pii": pii})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode tokenizer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tokens", bytes.NewReader(body))
	if err != nil {
		return "", tokenizerError(0, err, "build tokenizer request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", tokenizerError(0, err, "call tokenizer")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", tokenizerError(resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b))), "tokenizer rejected request")
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", tokenizerError(resp.StatusCode, err, "decode tokenizer response")
	}
	if out.Token == "" {
		return "", tokenizerError(resp.StatusCode, nil, "tokenizer returned empty token")
	}
	return out.Token, nil
}

func tokenizerError(status int, err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeTokenizer, err, msg).
		WithDetails(map[string]any{"status_code": status})
}
