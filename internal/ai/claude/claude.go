package claude

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// Upper bound for a single diagnosis or follow-up answer.
const maxTokens = 1024

// Client implements the AI capability over the Anthropic Messages API.
type Client struct {
	client *anthropic.Client
	model  string
}

func NewClient(apiKey, model string, opts ...anthropic.ClientOption) *Client {
	return &Client{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

// imageContent builds a base64 image block for the Messages API.
func imageContent(img domain.ImageResource) (anthropic.MessageContent, error) {
	payload, err := ai.EncodeInline(bytes.NewReader(img.Data), img.MimeType)
	if err != nil {
		return anthropic.MessageContent{}, err
	}
	return anthropic.NewImageMessageContent(
		anthropic.NewMessageContentSource(anthropic.MessagesContentSourceTypeBase64, payload.MimeType, payload.Data),
	), nil
}

func (c *Client) AnalyzeImage(ctx context.Context, img domain.ImageResource) (string, error) {
	image, err := imageContent(img)
	if err != nil {
		return "", err
	}

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				image,
				anthropic.NewTextMessageContent(ai.AnalysisPrompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) NewChat(_ context.Context, img domain.ImageResource, analysis string) (ai.Chat, error) {
	image, err := imageContent(img)
	if err != nil {
		return nil, err
	}

	seed := []anthropic.Message{
		{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				image,
				anthropic.NewTextMessageContent(ai.ChatSeedFraming),
			},
		},
		anthropic.NewAssistantTextMessage(analysis),
	}

	return &chatSession{client: c, history: seed}, nil
}

type chatSession struct {
	client *Client

	mu      sync.Mutex
	history []anthropic.Message
}

func (s *chatSession) Send(ctx context.Context, text string) (<-chan ai.StreamEvent, error) {
	userMsg := anthropic.NewUserTextMessage(text)

	s.mu.Lock()
	messages := make([]anthropic.Message, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, userMsg)
	s.mu.Unlock()

	ch := make(chan ai.StreamEvent, 16)

	// CreateMessagesStream blocks until the stream finishes, delivering
	// deltas through the callback, so it runs on its own goroutine.
	go func() {
		defer close(ch)

		resp, err := s.client.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:     anthropic.Model(s.client.model),
				MaxTokens: maxTokens,
				System:    ai.ChatSystemInstruction,
				Messages:  messages,
			},
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text != nil && *data.Delta.Text != "" {
					ch <- ai.StreamEvent{Text: *data.Delta.Text}
				}
			},
		})
		if err != nil {
			if ctx.Err() == nil {
				ch <- ai.StreamEvent{Err: fmt.Errorf("claude stream failed: %w", err)}
			}
			return
		}

		s.mu.Lock()
		s.history = append(s.history, userMsg,
			anthropic.NewAssistantTextMessage(resp.GetFirstContentText()))
		s.mu.Unlock()
	}()

	return ch, nil
}
