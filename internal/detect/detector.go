package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/plantdoc/internal/ai"
	"github.com/verdantlabs/plantdoc/internal/domain"
)

// Detector runs one-shot disease analysis and mints identity-bearing
// diagnosis records.
type Detector struct {
	client ai.Client
	logger *slog.Logger
}

func NewDetector(client ai.Client, logger *slog.Logger) *Detector {
	return &Detector{client: client, logger: logger}
}

// Analyze sends img for analysis and wraps the returned text in a Diagnosis.
// A single attempt: the caller decides whether to re-invoke on failure. Every
// successful call produces a record with a fresh ID, even for the same image.
func (d *Detector) Analyze(ctx context.Context, img domain.ImageResource) (*domain.Diagnosis, error) {
	d.logger.Info("analysis started", "filename", img.Filename, "mime_type", img.MimeType, "bytes", len(img.Data))

	text, err := d.client.AnalyzeImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}

	rec := &domain.Diagnosis{
		ID:        uuid.NewString(),
		Image:     img,
		Result:    text,
		CreatedAt: time.Now(),
	}
	d.logger.Info("analysis complete", "diagnosis_id", rec.ID, "chars", len(text))
	return rec, nil
}
