package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const (
	roleUser  = "user"
	roleModel = "model"
)

// request types mirror the Gemini generateContent API structure.
type request struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Client speaks the Gemini REST API directly. One model handles image
// analysis and another the follow-up chat, matching how the service tiers
// its vision and text models.
type Client struct {
	apiKey      string
	visionModel string
	chatModel   string
	client      *http.Client
	baseURL     string
}

func NewClient(apiKey, visionModel, chatModel string) *Client {
	return &Client{
		apiKey:      apiKey,
		visionModel: visionModel,
		chatModel:   chatModel,
		client:      &http.Client{},
		baseURL:     defaultBaseURL,
	}
}

// NewClientForTesting points the client at a fake API server.
func NewClientForTesting(apiKey, visionModel, chatModel, baseURL string) *Client {
	c := NewClient(apiKey, visionModel, chatModel)
	c.baseURL = baseURL
	return c
}

// newHTTPRequest creates an authenticated POST to model:verb. verb is
// "generateContent" or "streamGenerateContent?alt=sse".
func (c *Client) newHTTPRequest(ctx context.Context, model, verb string, payload []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/models/%s:%s", c.baseURL, model, verb)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// firstText extracts the first text part from a response, or "".
func firstText(resp response) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

func (c *Client) AnalyzeImage(ctx context.Context, img domain.ImageResource) (string, error) {
	payload, err := ai.EncodeInline(bytes.NewReader(img.Data), img.MimeType)
	if err != nil {
		return "", err
	}

	body := request{
		Contents: []content{{
			Role: roleUser,
			Parts: []part{
				{Text: ai.AnalysisPrompt},
				{InlineData: &inlineData{MimeType: payload.MimeType, Data: payload.Data}},
			},
		}},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newHTTPRequest(ctx, c.visionModel, "generateContent", reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close gemini response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, errBody)
	}

	var respBody response
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	text := firstText(respBody)
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// NewChat builds a dialogue seeded with the analyzed image and its diagnosis.
// The seed history re-sends the image once so later questions need only text.
func (c *Client) NewChat(_ context.Context, img domain.ImageResource, analysis string) (ai.Chat, error) {
	payload, err := ai.EncodeInline(bytes.NewReader(img.Data), img.MimeType)
	if err != nil {
		return nil, err
	}

	seed := []content{
		{
			Role: roleUser,
			Parts: []part{
				{InlineData: &inlineData{MimeType: payload.MimeType, Data: payload.Data}},
				{Text: ai.ChatSeedFraming},
			},
		},
		{
			Role:  roleModel,
			Parts: []part{{Text: analysis}},
		},
	}

	return &chatSession{client: c, history: seed}, nil
}

// chatSession keeps the conversation history client-side; each Send replays
// it with the new user message against streamGenerateContent.
type chatSession struct {
	client *Client

	mu      sync.Mutex
	history []content
}

func (s *chatSession) Send(ctx context.Context, text string) (<-chan ai.StreamEvent, error) {
	userMsg := content{Role: roleUser, Parts: []part{{Text: text}}}

	s.mu.Lock()
	contents := make([]content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userMsg)
	s.mu.Unlock()

	body := request{
		SystemInstruction: &content{Parts: []part{{Text: ai.ChatSystemInstruction}}},
		Contents:          contents,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := s.client.newHTTPRequest(ctx, s.client.chatModel, "streamGenerateContent?alt=sse", reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, errBody)
	}

	ch := make(chan ai.StreamEvent, 16)

	go func() {
		defer close(ch)
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Error("failed to close gemini stream body", "error", err)
			}
		}()

		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Text()

			// SSE data lines start with "data: "
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var chunk response
			if err := json.Unmarshal([]byte(line[6:]), &chunk); err != nil {
				continue
			}

			for _, cand := range chunk.Candidates {
				for _, p := range cand.Content.Parts {
					if p.Text == "" {
						continue
					}
					full.WriteString(p.Text)
					ch <- ai.StreamEvent{Text: p.Text}
				}
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- ai.StreamEvent{Err: fmt.Errorf("read gemini stream: %w", err)}
			return
		}

		// Stream complete: the exchange becomes part of the history.
		s.mu.Lock()
		s.history = append(s.history, userMsg, content{
			Role:  roleModel,
			Parts: []part{{Text: full.String()}},
		})
		s.mu.Unlock()
	}()

	return ch, nil
}
