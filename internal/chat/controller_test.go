package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// scriptedChat replays a fixed fragment script per Send, or hands out a
// caller-controlled channel when manual is set.
type scriptedChat struct {
	script    []string
	streamErr error
	sendErr   error
	manual    chan ai.StreamEvent
	sends     int
}

func (s *scriptedChat) Send(_ context.Context, _ string) (<-chan ai.StreamEvent, error) {
	s.sends++
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if s.manual != nil {
		return s.manual, nil
	}
	ch := make(chan ai.StreamEvent, len(s.script)+1)
	for _, t := range s.script {
		ch <- ai.StreamEvent{Text: t}
	}
	if s.streamErr != nil {
		ch <- ai.StreamEvent{Err: s.streamErr}
	}
	close(ch)
	return ch, nil
}

// stubClient hands out a fixed chat and counts priming requests.
type stubClient struct {
	chat       ai.Chat
	newChatErr error
	primes     int
}

func (c *stubClient) AnalyzeImage(_ context.Context, _ domain.ImageResource) (string, error) {
	return "stub diagnosis", nil
}

func (c *stubClient) NewChat(_ context.Context, _ domain.ImageResource, _ string) (ai.Chat, error) {
	c.primes++
	if c.newChatErr != nil {
		return nil, c.newChatErr
	}
	return c.chat, nil
}

func diagnosis(id, text string) *domain.Diagnosis {
	return &domain.Diagnosis{
		ID:        id,
		Image:     domain.ImageResource{Filename: "leaf.png", MimeType: "image/png", Data: []byte{1}},
		Result:    text,
		CreatedAt: time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenWithoutDiagnosis(t *testing.T) {
	c := NewController(&stubClient{chat: &scriptedChat{}}, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleAssistant, turns[0].Role)
	assert.Equal(t, greetingNoContext, turns[0].Text)

	// Re-opening does not duplicate the greeting.
	c.Close()
	require.NoError(t, c.Open(ctx))
	assert.Len(t, c.Transcript(), 1)
	assert.False(t, c.Ready())
}

func TestOpenPrimesWhenDiagnosisBound(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "Early blight detected.")))
	assert.Equal(t, 0, client.primes, "closed panel must not prime")

	require.NoError(t, c.Open(ctx))
	assert.Equal(t, 1, client.primes)
	assert.True(t, c.Ready())

	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, greetingReady, turns[0].Text)
}

func TestOnNewDiagnosisIdempotentPerRecord(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	rec := diagnosis("d1", "Early blight detected.")
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, rec))
	require.NoError(t, c.OnNewDiagnosis(ctx, rec))

	assert.Equal(t, 1, client.primes, "same record must not re-prime")
	assert.Len(t, c.Transcript(), 1)
}

func TestOnNewDiagnosisRePrimesOnIdentityNotContent(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "Early blight detected.")))
	// Distinct record, byte-identical diagnosis text.
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d2", "Early blight detected.")))

	assert.Equal(t, 2, client.primes)
}

func TestSubmitAggregatesFragmentsInOrder(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{script: []string{"Leaf ", "spot ", "disease."}}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))
	require.NoError(t, c.Submit(ctx, "What is it?"))

	turns := c.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Text: "What is it?"}, turns[1])
	assert.Equal(t, domain.Turn{Role: domain.RoleAssistant, Text: "Leaf spot disease."}, turns[2])
}

func TestSubmitBlankIsNoop(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{script: []string{"x"}}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))

	require.NoError(t, c.Submit(ctx, "   "))
	assert.Len(t, c.Transcript(), 1)
}

func TestSubmitWithoutSession(t *testing.T) {
	c := NewController(&stubClient{chat: &scriptedChat{}}, testLogger())

	err := c.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, c.Transcript())
}

func TestSubmitRejectedWhileStreaming(t *testing.T) {
	manual := make(chan ai.StreamEvent)
	client := &stubClient{chat: &scriptedChat{manual: manual}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))

	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, "first") }()

	require.Eventually(t, func() bool { return !c.Ready() }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Submit(ctx, "second"), ErrBusy)

	manual <- ai.StreamEvent{Text: "answer"}
	close(manual)
	require.NoError(t, <-done)

	turns := c.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[1].Text)
	assert.Equal(t, "answer", turns[2].Text)
	assert.True(t, c.Ready())
}

func TestStaleStreamFragmentsDiscarded(t *testing.T) {
	manual := make(chan ai.StreamEvent)
	oldChat := &scriptedChat{manual: manual}
	client := &stubClient{chat: oldChat}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))

	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, "about the old plant") }()

	manual <- ai.StreamEvent{Text: "stale-"}
	require.Eventually(t, func() bool {
		turns := c.Transcript()
		return len(turns) == 3 && turns[2].Text == "stale-"
	}, 2*time.Second, 5*time.Millisecond)

	// A new diagnosis replaces the session mid-stream.
	client.chat = &scriptedChat{script: []string{"fresh answer"}}
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d2", "rust")))

	// Late fragments from the orphaned stream must be dropped.
	manual <- ai.StreamEvent{Text: "fragment"}
	close(manual)
	require.NoError(t, <-done)

	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, greetingReady, turns[0].Text)

	require.NoError(t, c.Submit(ctx, "about the new plant"))
	turns = c.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, "fresh answer", turns[2].Text)
	for _, turn := range turns {
		assert.NotContains(t, turn.Text, "stale")
	}
}

func TestStreamErrorAppendsApologyAndRecovers(t *testing.T) {
	chat := &scriptedChat{script: []string{"partial "}, streamErr: errors.New("connection reset")}
	client := &stubClient{chat: chat}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))

	err := c.Submit(ctx, "What now?")
	require.Error(t, err)

	turns := c.Transcript()
	require.Len(t, turns, 4)
	assert.Equal(t, "partial ", turns[2].Text)
	assert.Equal(t, msgStreamFailed, turns[3].Text)

	// The session stays usable for another attempt.
	chat.streamErr = nil
	chat.script = []string{"recovered"}
	require.NoError(t, c.Submit(ctx, "Try again?"))
	turns = c.Transcript()
	assert.Equal(t, "recovered", turns[len(turns)-1].Text)
}

func TestPrimingFailureLeavesSessionUnbound(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{}, newChatErr: errors.New("malformed image")}
	c := NewController(client, testLogger())
	ctx := context.Background()

	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))
	err := c.Open(ctx)
	require.Error(t, err)
	assert.False(t, c.Ready())

	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, msgPrimingFailed, turns[0].Text)

	// The user can retry by re-opening once the service recovers.
	client.newChatErr = nil
	require.NoError(t, c.Open(ctx))
	assert.True(t, c.Ready())
	assert.Equal(t, greetingReady, c.Transcript()[0].Text)
}

func TestOnAssistantDeltaHook(t *testing.T) {
	client := &stubClient{chat: &scriptedChat{script: []string{"a", "b"}}}
	c := NewController(client, testLogger())
	ctx := context.Background()

	var deltas []string
	c.OnAssistantDelta = func(d string) { deltas = append(deltas, d) }

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.OnNewDiagnosis(ctx, diagnosis("d1", "blight")))
	require.NoError(t, c.Submit(ctx, "hi"))

	assert.Equal(t, []string{"a", "b"}, deltas)
}
