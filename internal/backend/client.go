package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/verdantlabs/plantdoc/internal/domain"
)

// ErrUnreachable wraps network-level failures reaching the backend.
var ErrUnreachable = errors.New("detections backend unreachable")

// StatusError is a non-success response from the backend. Message carries
// the body's error field when present, otherwise the HTTP status text.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend rejected detection (status %d): %s", e.Status, e.Message)
}

// Client forwards completed diagnoses to the detections backend. Saving is
// fire-and-forget from the caller's perspective: a failure never rolls back
// the diagnosis already shown to the user.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// detectionPayload is the wire contract of POST /api/detections.
type detectionPayload struct {
	OriginalFilename string `json:"originalFilename"`
	MimeType         string `json:"mimeType"`
	GeminiResult     string `json:"geminiResult"`
}

type saveResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Save POSTs the diagnosis and returns the stored record id.
func (c *Client) Save(ctx context.Context, rec *domain.Diagnosis) (int64, error) {
	payload, err := json.Marshal(detectionPayload{
		OriginalFilename: rec.Image.Filename,
		MimeType:         rec.Image.MimeType,
		GeminiResult:     rec.Result,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal detection: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/detections", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			msg = body.Error
		}
		return 0, &StatusError{Status: resp.StatusCode, Message: msg}
	}

	var body saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return body.ID, nil
}
