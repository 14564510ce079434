package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/verdantlabs/plantdoc/internal/domain"
)

// DetectionStore persists diagnosis records in sqlite.
type DetectionStore struct {
	db *sql.DB
}

func NewDetectionStore(db *sql.DB) *DetectionStore {
	return &DetectionStore{db: db}
}

func (s *DetectionStore) Create(ctx context.Context, originalFilename, mimeType, result string) (*domain.Detection, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO detections (original_filename, mime_type, gemini_result) VALUES (?, ?, ?)
	`, originalFilename, mimeType, result)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *DetectionStore) GetByID(ctx context.Context, id int64) (*domain.Detection, error) {
	det := &domain.Detection{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, original_filename, mime_type, gemini_result, created_at FROM detections WHERE id = ?
	`, id).Scan(&det.ID, &det.OriginalFilename, &det.MimeType, &det.Result, &det.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}

	return det, nil
}

// List returns all detections, newest first.
func (s *DetectionStore) List(ctx context.Context) ([]*domain.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_filename, mime_type, gemini_result, created_at FROM detections
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	detections := make([]*domain.Detection, 0)
	for rows.Next() {
		det := &domain.Detection{}
		if err := rows.Scan(&det.ID, &det.OriginalFilename, &det.MimeType, &det.Result, &det.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}

	return detections, nil
}
