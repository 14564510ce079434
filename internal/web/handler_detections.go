package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/verdantlabs/plantdoc/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Plant Disease Detector Backend is running!"))
}

// createDetectionRequest is the wire contract shared with the client's
// persistence call.
type createDetectionRequest struct {
	OriginalFilename string `json:"originalFilename"`
	MimeType         string `json:"mimeType"`
	GeminiResult     string `json:"geminiResult"`
}

// detectionJSON is a detection as rendered by the API.
type detectionJSON struct {
	ID               int64  `json:"id"`
	OriginalFilename string `json:"originalFilename"`
	MimeType         string `json:"mimeType"`
	GeminiResult     string `json:"geminiResult"`
	Timestamp        string `json:"timestamp"`
}

func toDetectionJSON(det *domain.Detection) detectionJSON {
	return detectionJSON{
		ID:               det.ID,
		OriginalFilename: det.OriginalFilename,
		MimeType:         det.MimeType,
		GeminiResult:     det.Result,
		Timestamp:        det.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateDetection(w http.ResponseWriter, r *http.Request) {
	var req createDetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	if req.OriginalFilename == "" || req.MimeType == "" || req.GeminiResult == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: originalFilename, mimeType, geminiResult")
		return
	}

	det, err := s.store.Create(r.Context(), req.OriginalFilename, req.MimeType, req.GeminiResult)
	if err != nil {
		s.logger.Error("create detection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save detection result.")
		return
	}

	s.logger.Info("detection saved", "detection_id", det.ID, "filename", det.OriginalFilename)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Detection result saved successfully!",
		"id":      det.ID,
	})
}

func (s *Server) handleListDetections(w http.ResponseWriter, r *http.Request) {
	detections, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list detections failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list detection results.")
		return
	}

	out := make([]detectionJSON, 0, len(detections))
	for _, det := range detections {
		out = append(out, toDetectionJSON(det))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDetection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid detection id.")
		return
	}

	det, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get detection failed", "detection_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get detection result.")
		return
	}
	if det == nil {
		writeError(w, http.StatusNotFound, "Detection not found.")
		return
	}

	writeJSON(w, http.StatusOK, toDetectionJSON(det))
}
