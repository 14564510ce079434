package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// Session is one primed dialogue bound to exactly one diagnosis. The binding
// never changes; a new diagnosis requires a new session.
type Session struct {
	record *domain.Diagnosis
	chat   ai.Chat
}

// NewSession primes a dialogue against record: the underlying chat is seeded
// with the original image and the diagnosis text so follow-up questions carry
// context without re-sending the image. On error no usable session exists and
// callers must not retain a reference.
func NewSession(ctx context.Context, client ai.Client, record *domain.Diagnosis) (*Session, error) {
	chat, err := client.NewChat(ctx, record.Image, record.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to prime chat session: %w", err)
	}
	return &Session{record: record, chat: chat}, nil
}

// Record returns the diagnosis this session is bound to.
func (s *Session) Record() *domain.Diagnosis {
	return s.record
}

// Send opens a streaming response to text. Whitespace-only fragments from the
// service are dropped; the surviving fragments keep their arrival order. The
// returned channel is closed when the stream ends and is not restartable.
func (s *Session) Send(ctx context.Context, text string) (<-chan ai.StreamEvent, error) {
	raw, err := s.chat.Send(ctx, text)
	if err != nil {
		return nil, err
	}

	out := make(chan ai.StreamEvent, 16)
	go func() {
		defer close(out)
		for ev := range raw {
			if ev.Err == nil && strings.TrimSpace(ev.Text) == "" {
				continue
			}
			out <- ev
		}
	}()
	return out, nil
}
