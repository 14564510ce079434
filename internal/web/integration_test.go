package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	geminiai "github.com/verdantlabs/plantdoc/internal/ai/gemini"
	"github.com/verdantlabs/plantdoc/internal/backend"
	"github.com/verdantlabs/plantdoc/internal/chat"
	"github.com/verdantlabs/plantdoc/internal/db"
	"github.com/verdantlabs/plantdoc/internal/detect"
	"github.com/verdantlabs/plantdoc/internal/domain"
	"github.com/verdantlabs/plantdoc/internal/store"
)

// fakeGemini serves both the one-shot analysis and the streaming chat
// endpoints of the Gemini REST API.
func fakeGemini(t *testing.T) *httptest.Server {
	t.Helper()

	chunk := func(text string) string {
		data, err := json.Marshal(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": text}},
				}},
			},
		})
		require.NoError(t, err)
		return string(data)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, chunk("Early blight detected on the lower leaves."))
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
			w.Header().Set("Content-Type", "text/event-stream")
			for _, frag := range []string{"Remove affected leaves ", "and apply ", "a copper fungicide."} {
				fmt.Fprintf(w, "data: %s\n\n", chunk(frag))
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

// TestUploadAnalyzeChatAndPersist walks the whole flow: analyze an image,
// prime a chat from the diagnosis, stream one follow-up answer, and persist
// the record through the real detections API.
func TestUploadAnalyzeChatAndPersist(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gemini := fakeGemini(t)
	defer gemini.Close()

	database, err := db.OpenForTesting()
	require.NoError(t, err)
	defer func() { assert.NoError(t, database.Close()) }()

	detectionStore := store.NewDetectionStore(database)
	api := httptest.NewServer(NewServer(detectionStore, logger))
	defer api.Close()

	client := geminiai.NewClientForTesting("test-key", "vision-model", "chat-model", gemini.URL)

	img := domain.ImageResource{
		Filename: "X.png",
		MimeType: "image/png",
		Data:     []byte{0x89, 0x50, 0x4E, 0x47},
	}

	detector := detect.NewDetector(client, logger)
	rec, err := detector.Analyze(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, "Early blight detected on the lower leaves.", rec.Result)

	controller := chat.NewController(client, logger)
	require.NoError(t, controller.Open(ctx))
	require.NoError(t, controller.OnNewDiagnosis(ctx, rec))

	turns := controller.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleAssistant, turns[0].Role)
	assert.Contains(t, turns[0].Text, "ready to answer")

	require.NoError(t, controller.Submit(ctx, "What's the cure?"))

	turns = controller.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Text: "What's the cure?"}, turns[1])
	assert.Equal(t, "Remove affected leaves and apply a copper fungicide.", turns[2].Text)

	id, err := backend.NewClient(api.URL).Save(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, id)

	stored, err := detectionStore.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "X.png", stored.OriginalFilename)
	assert.Equal(t, "image/png", stored.MimeType)
	assert.Equal(t, rec.Result, stored.Result)
}
