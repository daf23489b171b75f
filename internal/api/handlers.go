package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/pipeline"
)

type processRequest struct {
	URL string `json:"url"`
	// UserID is normally derived from the auth token; the body field exists
	// for extension clients that authenticate out of band.
	UserID string `json:"user_id"`
}

type processResponse struct {
	OK                bool   `json:"ok"`
	ID                string `json:"id,omitempty"`
	DurationMs        int64  `json:"durationMs,omitempty"`
	AlreadyProcessing bool   `json:"already_processing,omitempty"`
	Duplicate         bool   `json:"duplicate,omitempty"`
	Cancelled         bool   `json:"cancelled,omitempty"`
	Error             string `json:"error,omitempty"`
}

type cancelRequest struct {
	ID string `json:"id"`
}

type createRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Favicon     string   `json:"favicon"`
	Thumbnail   string   `json:"thumbnail"`
	Tags        []string `json:"tags"`
	UserID      string   `json:"user_id"`
}

// processBookmark runs the full enrichment pipeline synchronously and reports
// the terminal outcome; list requests observe intermediate state concurrently.
func (s *Server) processBookmark(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}
	if req.UserID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := s.svc.Process(r.Context(), req.UserID, req.URL)
	switch {
	case err == nil:
		writeJSON(s.logger, w, http.StatusOK, processResponse{
			OK:         true,
			ID:         res.Record.ID,
			DurationMs: res.Duration.Milliseconds(),
		})
	case errors.Is(err, bookmarks.ErrAlreadyProcessing):
		writeJSON(s.logger, w, http.StatusAccepted, processResponse{AlreadyProcessing: true})
	case errors.Is(err, bookmarks.ErrDuplicateBookmark):
		writeJSON(s.logger, w, http.StatusConflict, processResponse{Duplicate: true})
	case errors.Is(err, bookmarks.ErrInvalidURL):
		writeError(s.logger, w, http.StatusBadRequest, "invalid url")
	case errors.Is(err, bookmarks.ErrCancelled):
		writeJSON(s.logger, w, http.StatusOK, processResponse{OK: false, Cancelled: true})
	default:
		s.logger.Error("process failed", zap.String("url", req.URL), zap.Error(err))
		writeJSON(s.logger, w, http.StatusInternalServerError, processResponse{OK: false, Error: err.Error()})
	}
}

// cancelProcessing flags a run for cooperative abort. Idempotent: cancelling
// an unknown or finished run still succeeds.
func (s *Server) cancelProcessing(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.svc.Cancel(r.Context(), req.ID); err != nil {
		s.logger.Warn("cancel failed", zap.String("id", req.ID), zap.Error(err))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}
	cards, err := s.svc.Cards(r.Context(), userID)
	if err != nil {
		s.logger.Error("list failed", zap.String("user_id", userID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list bookmarks")
		return
	}
	if cards == nil {
		cards = []bookmarks.MergedCard{}
	}
	writeJSON(s.logger, w, http.StatusOK, cards)
}

// createBookmark stores a pre-enriched record directly, bypassing the
// pipeline.
func (s *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}
	if req.UserID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "user_id is required")
		return
	}

	rec, err := s.svc.Create(r.Context(), req.UserID, pipeline.CreateInput{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Favicon:     req.Favicon,
		Thumbnail:   req.Thumbnail,
		Tags:        req.Tags,
	})
	switch {
	case err == nil:
		writeJSON(s.logger, w, http.StatusCreated, rec)
	case errors.Is(err, bookmarks.ErrDuplicateBookmark):
		writeJSON(s.logger, w, http.StatusConflict, map[string]bool{"duplicate": true})
	case errors.Is(err, bookmarks.ErrInvalidURL):
		writeError(s.logger, w, http.StatusBadRequest, "invalid url")
	default:
		s.logger.Error("create failed", zap.String("url", req.URL), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to create bookmark")
	}
}

// deleteBookmark removes a persisted record and any lingering processing
// item. Deleting an absent record is not an error.
func (s *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	userID := r.URL.Query().Get("user_id")
	if id == "" || userID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "id and user_id are required")
		return
	}
	if err := s.svc.Delete(r.Context(), id, userID); err != nil && !errors.Is(err, bookmarks.ErrNotFound) {
		s.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to delete bookmark")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
