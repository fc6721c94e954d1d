// Package content is the HTTP client for the structured content store
// (a Directus-style items API).
package content

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

	"github.com/avast/retry-go/v4"
)

// Sentinel errors for the content package.
var (
	// ErrUnhealthy is returned when the content store health check fails.
	ErrUnhealthy = errors.New("content store health check failed")
)

// Config holds configuration for the content store client.
type Config struct {
	URL        string
	Token      string
	Timeout    time.Duration
	MaxRetries int          // Attempts for transient failures (network, 5xx, 429)
	HTTPClient *http.Client // Optional (tests)
}

// Client is an HTTP client for the content store items API.
type Client struct {
	url        string
	token      string
	maxRetries int
	httpClient *http.Client
}

// NewClient creates a new content store client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		httpClient: httpClient,
	}
}

// HealthCheck checks if the content store is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/server/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// CreateDocument creates a document record and returns its id.
func (c *Client) CreateDocument(ctx context.Context, doc Document) (string, error) {
	return c.createItem(ctx, CollectionDocuments, doc)
}

// CreateParagraph creates a paragraph record and returns its id.
func (c *Client) CreateParagraph(ctx context.Context, p Paragraph) (string, error) {
	return c.createItem(ctx, CollectionParagraphs, p)
}

// CreateStatement creates a statement record and returns its id.
func (c *Client) CreateStatement(ctx context.Context, s Statement) (string, error) {
	return c.createItem(ctx, CollectionStatements, s)
}

// createItem POSTs one item to /items/{collection}, retrying transient
// failures. Client errors (4xx other than 429) fail immediately.
func (c *Client) createItem(ctx context.Context, collection string, item any) (string, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s item: %w", collection, err)
	}

	var id string
	err = retry.Do(
		func() error {
			created, err := c.postItem(ctx, collection, body)
			if err != nil {
				return err
			}
			id = created
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s item: %w", collection, err)
	}
	return id, nil
}

func (c *Client) postItem(ctx context.Context, collection string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/items/"+collection, bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("server error (status %d): %s", resp.StatusCode, truncate(respBody))
	case resp.StatusCode >= 400:
		return "", retry.Unrecoverable(fmt.Errorf("rejected (status %d): %s", resp.StatusCode, truncate(respBody)))
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to parse response: %w", err))
	}
	if created.Data.ID == "" {
		return "", retry.Unrecoverable(fmt.Errorf("response missing item id"))
	}
	return string(created.Data.ID), nil
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
