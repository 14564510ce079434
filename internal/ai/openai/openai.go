package openai

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// Client implements the AI capability over the OpenAI Responses API. There is
// no server-side conversation object; chat history is replayed per request.
type Client struct {
	client *oai.Client
	model  oai.ChatModel
}

func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := oai.NewClient(opts...)
	return &Client{
		client: &client,
		model:  oai.ChatModel(model),
	}
}

// imagePart builds an input-image part carrying the image as a data URL.
func imagePart(img domain.ImageResource) (responses.ResponseInputContentUnionParam, error) {
	payload, err := ai.EncodeInline(bytes.NewReader(img.Data), img.MimeType)
	if err != nil {
		return responses.ResponseInputContentUnionParam{}, err
	}
	return responses.ResponseInputContentUnionParam{
		OfInputImage: &responses.ResponseInputImageParam{
			Detail:   responses.ResponseInputImageDetailAuto,
			ImageURL: oai.String(payload.DataURL()),
		},
	}, nil
}

func textPart(text string) responses.ResponseInputContentUnionParam {
	return responses.ResponseInputContentUnionParam{
		OfInputText: &responses.ResponseInputTextParam{Text: text},
	}
}

func (c *Client) AnalyzeImage(ctx context.Context, img domain.ImageResource) (string, error) {
	image, err := imagePart(img)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						textPart(ai.AnalysisPrompt),
						image,
					},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call openai: %w", err)
	}

	text := resp.OutputText()
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// historyItem is one replayed turn: role plus its content parts.
type historyItem struct {
	role  responses.EasyInputMessageRole
	parts responses.ResponseInputMessageContentListParam
}

func (c *Client) NewChat(_ context.Context, img domain.ImageResource, analysis string) (ai.Chat, error) {
	image, err := imagePart(img)
	if err != nil {
		return nil, err
	}

	seed := []historyItem{
		{
			role: responses.EasyInputMessageRoleUser,
			parts: responses.ResponseInputMessageContentListParam{
				image,
				textPart(ai.ChatSeedFraming),
			},
		},
		{
			role:  responses.EasyInputMessageRoleAssistant,
			parts: responses.ResponseInputMessageContentListParam{textPart(analysis)},
		},
	}

	return &chatSession{client: c, history: seed}, nil
}

type chatSession struct {
	client *Client

	mu      sync.Mutex
	history []historyItem
}

func (s *chatSession) Send(ctx context.Context, text string) (<-chan ai.StreamEvent, error) {
	userItem := historyItem{
		role:  responses.EasyInputMessageRoleUser,
		parts: responses.ResponseInputMessageContentListParam{textPart(text)},
	}

	s.mu.Lock()
	items := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(
			responses.ResponseInputMessageContentListParam{textPart(ai.ChatSystemInstruction)},
			responses.EasyInputMessageRoleSystem,
		),
	}
	for _, h := range s.history {
		items = append(items, responses.ResponseInputItemParamOfMessage(h.parts, h.role))
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(userItem.parts, userItem.role))
	s.mu.Unlock()

	stream := s.client.client.Responses.NewStreaming(ctx, responses.ResponseNewParams{
		Model: s.client.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	})

	ch := make(chan ai.StreamEvent, 16)

	go func() {
		defer close(ch)
		defer func() {
			if err := stream.Close(); err != nil {
				ch <- ai.StreamEvent{Err: fmt.Errorf("close openai stream: %w", err)}
			}
		}()

		var full bytes.Buffer
		for stream.Next() {
			event := stream.Current()
			if event.Type == "response.output_text.delta" && event.Delta != "" {
				full.WriteString(event.Delta)
				ch <- ai.StreamEvent{Text: event.Delta}
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				ch <- ai.StreamEvent{Err: fmt.Errorf("openai stream failed: %w", err)}
			}
			return
		}

		s.mu.Lock()
		s.history = append(s.history, userItem, historyItem{
			role:  responses.EasyInputMessageRoleAssistant,
			parts: responses.ResponseInputMessageContentListParam{textPart(full.String())},
		})
		s.mu.Unlock()
	}()

	return ch, nil
}
