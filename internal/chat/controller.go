package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// Fixed assistant messages shown in the transcript.
const (
	greetingNoContext = "Hello! Upload and analyze an image first, then I can help you with more questions about it."
	greetingReady     = "Hello! I'm ready to answer more questions about the plant in the image you just analyzed."
	msgPrimingFailed  = "Failed to start chat. Please try again."
	msgStreamFailed   = "Sorry, I couldn't process that. Please try again."
)

var (
	// ErrBusy rejects a Submit issued while a previous stream is still open.
	ErrBusy = errors.New("a response is still streaming")
	// ErrNoSession rejects a Submit with no primed session.
	ErrNoSession = errors.New("no chat session is ready")
)

// Controller orchestrates the session lifecycle and owns the transcript
// shown to the user. At most one session is active; turns are append-only
// except for the trailing assistant turn, which grows while its response
// streams.
type Controller struct {
	client ai.Client
	logger *slog.Logger

	// OnAssistantDelta, when set, observes every fragment applied to the
	// live assistant turn. Used by the CLI for incremental rendering.
	OnAssistantDelta func(delta string)

	mu      sync.Mutex
	open    bool
	record  *domain.Diagnosis
	session *Session
	live    *Session // session with an open stream, if any
	turns   []domain.Turn
}

func NewController(client ai.Client, logger *slog.Logger) *Controller {
	return &Controller{client: client, logger: logger}
}

// Open makes the chat visible. With no diagnosis bound yet it shows a
// greeting prompting the user to analyze an image first; with a diagnosis and
// no session it primes one.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	c.open = true
	if c.record == nil {
		if len(c.turns) == 0 {
			c.turns = append(c.turns, domain.Turn{Role: domain.RoleAssistant, Text: greetingNoContext})
		}
		c.mu.Unlock()
		return nil
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}
	rec := c.record
	c.mu.Unlock()

	return c.prime(ctx, rec)
}

// Close hides the chat. Session and transcript are untouched.
func (c *Controller) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// OnNewDiagnosis binds the controller to a freshly produced diagnosis. The
// comparison is on record identity, never on diagnosis text: a repeated call
// with the same record is a no-op, while a new record always invalidates the
// session and transcript, even if its text happens to match the old one.
func (c *Controller) OnNewDiagnosis(ctx context.Context, rec *domain.Diagnosis) error {
	c.mu.Lock()
	if rec != nil && c.record != nil && c.record.ID == rec.ID {
		c.mu.Unlock()
		return nil
	}
	c.record = rec
	c.session = nil
	c.turns = nil
	open := c.open
	c.mu.Unlock()

	if !open || rec == nil {
		return nil
	}
	return c.prime(ctx, rec)
}

// prime builds a session for rec and installs it unless rec was superseded
// while the priming request was in flight.
func (c *Controller) prime(ctx context.Context, rec *domain.Diagnosis) error {
	sess, err := NewSession(ctx, c.client, rec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.record != rec {
		// A newer diagnosis arrived mid-priming; this result is stale.
		return nil
	}
	if err != nil {
		c.logger.Error("chat priming failed", "diagnosis_id", rec.ID, "error", err)
		c.turns = []domain.Turn{{Role: domain.RoleAssistant, Text: msgPrimingFailed}}
		return err
	}

	c.session = sess
	c.turns = []domain.Turn{{Role: domain.RoleAssistant, Text: greetingReady}}
	return nil
}

// Submit sends one user message and folds the streamed fragments into the
// trailing assistant turn. Blank input is ignored. A Submit while a stream is
// open for the current session is rejected with ErrBusy rather than
// interleaved, and fragments belonging to a replaced session are discarded.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.live == c.session {
		c.mu.Unlock()
		return ErrBusy
	}
	sess := c.session
	c.live = sess
	c.turns = append(c.turns, domain.Turn{Role: domain.RoleUser, Text: text})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.live == sess {
			c.live = nil
		}
		c.mu.Unlock()
	}()

	ch, err := sess.Send(ctx, text)
	if err != nil {
		c.logger.Error("chat send failed", "error", err)
		c.appendApology(sess)
		return err
	}

	started := false
	for ev := range ch {
		c.mu.Lock()
		if c.session != sess {
			// Session was replaced mid-stream; the rest of this stream is
			// orphaned. Drain it so the producer can finish.
			c.mu.Unlock()
			go drain(ch)
			return nil
		}
		if ev.Err != nil {
			c.turns = append(c.turns, domain.Turn{Role: domain.RoleAssistant, Text: msgStreamFailed})
			c.mu.Unlock()
			c.logger.Error("chat stream failed", "error", ev.Err)
			go drain(ch)
			return ev.Err
		}
		if started {
			c.turns[len(c.turns)-1].Text += ev.Text
		} else {
			c.turns = append(c.turns, domain.Turn{Role: domain.RoleAssistant, Text: ev.Text})
			started = true
		}
		hook := c.OnAssistantDelta
		c.mu.Unlock()

		if hook != nil {
			hook(ev.Text)
		}
	}
	return nil
}

func (c *Controller) appendApology(sess *Session) {
	c.mu.Lock()
	if c.session == sess {
		c.turns = append(c.turns, domain.Turn{Role: domain.RoleAssistant, Text: msgStreamFailed})
	}
	c.mu.Unlock()
}

func drain(ch <-chan ai.StreamEvent) {
	for range ch {
	}
}

// Transcript returns a copy of the turns in display order. While a stream is
// open the last element is the live assistant turn.
func (c *Controller) Transcript() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Ready reports whether a primed session is accepting input.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.live == nil
}
