// Package capability calls the metered upstream service that entitlements
// gate access to.
package capability

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
)

// ErrNotConfigured is returned when no upstream URL is set.
var ErrNotConfigured = errors.New("capability service not configured")

// RedesignRequest is the input of one room redesign.
type RedesignRequest struct {
	ImageURI    string `json:"image_uri"`
	StylePrompt string `json:"stylePrompt,omitempty"`
}

// RedesignResult is the upstream answer.
type RedesignResult struct {
	Description string `json:"description"`
	ImageURI    string `json:"image_uri"`
}

// UpstreamError is a non-2xx answer from the capability service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("capability service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("capability service returned %d", e.StatusCode)
}

// Runner performs one capability invocation.
type Runner interface {
	Redesign(ctx context.Context, req RedesignRequest) (*RedesignResult, error)
}

// Client forwards requests to an HTTP capability service.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for url. An empty url yields a client that
// always fails with ErrNotConfigured.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an upstream URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Redesign posts req to the upstream service.
func (c *Client) Redesign(ctx context.Context, in RedesignRequest) (*RedesignResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capability request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build capability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &UpstreamError{StatusCode: resp.StatusCode}
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &e) == nil {
			upErr.Message = e.Error
			if upErr.Message == "" {
				upErr.Message = e.Message
			}
		}
		return nil, upErr
	}

	var out RedesignResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode capability response: %w", err)
	}
	return &out, nil
}
