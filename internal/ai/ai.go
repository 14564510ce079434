package ai

import (
	"context"
	"errors"

	"github.com/verdantlabs/plantdoc/internal/domain"
)

// AnalysisPrompt is the shared instruction sent with every one-shot image
// analysis, regardless of backend.
const AnalysisPrompt = `Analyze this image of a plant and identify any diseases present. Provide a brief description of the disease and potential remedies.`

// ChatSystemInstruction primes every follow-up chat session.
const ChatSystemInstruction = "You are a helpful assistant specialized in plant diseases. Answer questions based on the previously provided image context and its initial analysis. Be concise and informative."

// ChatSeedFraming is the user-role sentence that accompanies the original
// image in the seed history of a primed chat.
const ChatSeedFraming = "I uploaded this image of a plant for disease detection. Here is the initial analysis I received:"

// ErrEmptyResponse is returned when the model replies without any text
// content. Callers surface it to the user; nothing retries automatically.
var ErrEmptyResponse = errors.New("no text content in model response")

// Client is the generative-AI capability consumed by the rest of the system.
// Implementations are injected; nothing constructs ambient clients.
type Client interface {
	// AnalyzeImage sends the image with AnalysisPrompt and returns the
	// diagnosis text. A single attempt per call.
	AnalyzeImage(ctx context.Context, img domain.ImageResource) (string, error)

	// NewChat constructs a dialogue primed with the image and its analysis
	// (seed history plus ChatSystemInstruction). A returned error means
	// priming failed and no usable chat exists.
	NewChat(ctx context.Context, img domain.ImageResource, analysis string) (Chat, error)
}

// Chat is one primed multi-turn dialogue. Implementations own their history.
type Chat interface {
	// Send opens a streaming response to text. The channel yields fragments
	// in arrival order and is closed when the stream ends; it is finite and
	// not restartable. Callers must not open a second stream before the
	// previous channel is closed.
	Send(ctx context.Context, text string) (<-chan StreamEvent, error)
}

// StreamEvent is either a text fragment or an error emitted mid-stream.
type StreamEvent struct {
	Text string
	Err  error
}
