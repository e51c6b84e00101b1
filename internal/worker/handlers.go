package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tasteid/internal/tasteid"
	"github.com/thebtf/tasteid/pkg/models"
)

var validate = validator.New()

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps engine errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tasteid.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tasteid.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, tasteid.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Str("path", r.URL.Path).Msg("Request failed")
	}
	if tasteid.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]any{
		"error":     err.Error(),
		"retryable": tasteid.IsRetryable(err),
	})
}

// handleHealth reports service and database health.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := s.store.HealthCheck(r.Context())

	status := http.StatusOK
	if db.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":            db.Status,
		"version":           s.version,
		"uptime":            time.Since(s.startTime).Round(time.Second).String(),
		"driver":            s.store.Driver(),
		"database":          db,
		"recompute_limiter": s.limiter.Stats(),
	})
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// ImportRequest is the request body for rating imports.
type ImportRequest struct {
	Ratings []models.RatingEvent `json:"ratings" validate:"required,min=1,unique=ID,dive"`
}

// handleImportRatings stores ratings for the user. Events with a known id replace
// the stored one.
func (s *Service) handleImportRatings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Ratings) > MaxImportBatch {
		http.Error(w, "too many ratings in one import", http.StatusRequestEntityTooLarge)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "invalid ratings: "+err.Error(), http.StatusBadRequest)
		return
	}

	for i := range req.Ratings {
		req.Ratings[i].UserID = userID
	}
	if err := s.ratings.UpsertRatings(r.Context(), req.Ratings); err != nil {
		writeError(w, r, err)
		return
	}

	total, err := s.ratings.CountRatings(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(req.Ratings),
		"total":    total,
	})
}

// RecomputeResponse summarizes a persisted recompute.
type RecomputeResponse struct {
	ComputedAt        time.Time              `json:"computed_at"`
	RunID             string                 `json:"run_id"`
	Archetype         models.ArchetypeResult `json:"archetype"`
	Alerts            []models.DriftAlert    `json:"alerts"`
	SignificantDrifts []models.DriftAlert    `json:"significant_drifts"`
	ColdStarts        []string               `json:"cold_starts,omitempty"`
	ActivePatterns    int                    `json:"active_patterns"`
	Episodes          int                    `json:"episodes"`
	EventCount        int                    `json:"event_count"`
	Version           int64                  `json:"version"`
}

// handleRecompute runs a full recompute for the user and persists the result.
func (s *Service) handleRecompute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	out, err := s.taste.Recompute(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	active := 0
	for _, p := range out.Result.Patterns {
		if p.IsActive() {
			active++
		}
	}

	writeJSON(w, http.StatusOK, RecomputeResponse{
		ComputedAt:        out.Profile.ComputedAt,
		RunID:             out.Profile.RunID,
		Version:           out.Profile.Version,
		Archetype:         out.Profile.Archetype,
		Alerts:            nonNil(out.Result.Alerts),
		SignificantDrifts: nonNil(out.Result.SignificantDrifts),
		ColdStarts:        out.Result.ColdStarts,
		ActivePatterns:    active,
		Episodes:          len(out.Result.Episodes),
		EventCount:        out.Result.EventCount,
	})
}

// handleGetProfile returns the stored profile row.
func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.taste.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleGetPatterns returns the stored patterns, optionally filtered by ?status=.
func (s *Service) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	status := models.PatternStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	patterns, err := s.taste.Patterns(r.Context(), chi.URLParam(r, "userID"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": nonNil(patterns)})
}

// handleGetDrifts returns the alerts of the latest run.
func (s *Service) handleGetDrifts(w http.ResponseWriter, r *http.Request) {
	view, err := s.taste.Drifts(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetEpisodes returns the episode history with graph statistics.
func (s *Service) handleGetEpisodes(w http.ResponseWriter, r *http.Request) {
	view, err := s.taste.Episodes(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetTastes returns the consolidated tastes, optionally filtered by ?trend=.
func (s *Service) handleGetTastes(w http.ResponseWriter, r *http.Request) {
	view, err := s.taste.Episodes(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	trend := models.TasteTrend(r.URL.Query().Get("trend"))
	tastes := make([]models.ConsolidatedTaste, 0, len(view.Tastes))
	for _, t := range view.Tastes {
		if trend == "" || t.Trend == trend {
			tastes = append(tastes, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tastes": tastes})
}

// handlePreview computes a signature from the current ratings without persisting.
func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.taste.Preview(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
