package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

const (
	defaultEndpoint = "https://storage.googleapis.com"
	pingTimeout     = 5 * time.Second
	maxErrorBody    = 2048
)

// Client writes receipt PDFs to a single bucket through the GCS JSON API.
type Client struct {
	httpClient  *http.Client
	bucket      string
	endpoint    string
	tokenSource TokenSource
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// UploadResult describes a stored object.
type UploadResult struct {
	StatusCode   int
	DocumentName string
	DocumentURL  string
}

// UploadError is returned when the storage API rejects a write.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gcs upload failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gcs upload failed: status %d: %s", e.StatusCode, e.Body)
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	ts, err := newTokenSource(httpClient, gcp)
	if err != nil {
		return nil, err
	}

	client := newClient(httpClient, cfg.BucketName, cfg.Endpoint, ts)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}

	return client, nil
}

func newClient(httpClient *http.Client, bucket, endpoint string, ts TokenSource) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient:  httpClient,
		bucket:      bucket,
		endpoint:    strings.TrimRight(endpoint, "/"),
		tokenSource: ts,
	}
}

func (c *Client) Close() error {
	return nil
}

// Upload writes body under name, overwriting any previous object with the
// same name.
func (c *Client) Upload(ctx context.Context, name, contentType string, body io.Reader) (*UploadResult, error) {
	if c == nil || c.tokenSource == nil {
		return nil, errors.New("gcs client not initialized")
	}
	if name == "" {
		return nil, errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs token: %w", err)
	}

	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.endpoint, url.PathEscape(c.bucket), url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UploadError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var object struct {
		Name      string `json:"name"`
		MediaLink string `json:"mediaLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&object); err != nil {
		return nil, fmt.Errorf("decode gcs object: %w", err)
	}
	if object.Name == "" {
		object.Name = name
	}

	return &UploadResult{
		StatusCode:   resp.StatusCode,
		DocumentName: object.Name,
		DocumentURL:  c.ObjectURL(object.Name),
	}, nil
}

// ObjectURL is the canonical address of an object in the bucket.
func (c *Client) ObjectURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, name)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}
	if c.bucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return err
	}

	// object-level check, requires storage.objects.list
	u := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.endpoint, url.PathEscape(c.bucket))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(b) > 0 {
			return fmt.Errorf("gcs object check failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
		}
		return fmt.Errorf("gcs object check failed: %s", resp.Status)
	}

	return nil
}
