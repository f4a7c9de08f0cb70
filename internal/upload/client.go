package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/jamscribe/internal/segment"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 1 << 20

// StatusError is returned when the endpoint answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("transcription endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("transcription endpoint returned %d: %s", e.Code, body)
}

// Client posts segment files to the transcription endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for endpoint; timeout bounds each request
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the URL uploads are posted to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Transcribe posts the raw file bytes and returns the response body unmodified
func (c *Client) Transcribe(ctx context.Context, data []byte, seg segment.Finalized) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Segment-Slot", strconv.Itoa(seg.Slot.Index))
	req.Header.Set("X-Segment-Sequence", strconv.FormatUint(seg.Sequence, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
