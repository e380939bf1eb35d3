package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/matchcore/internal/explain"
	"github.com/onnwee/matchcore/internal/matching"
	"github.com/onnwee/matchcore/internal/middleware"
)

// RecommendationService is the subset of matching.Service used by the handlers.
type RecommendationService interface {
	GetRankedCandidates(ctx context.Context, req matching.Request) (*matching.Response, error)
	GetMatchExplanation(ctx context.Context, userID, targetID string) (*explain.Explanation, error)
}

// RecommendationHandlers serves ranked candidates and match explanations
// for the authenticated user.
type RecommendationHandlers struct {
	service RecommendationService
}

// NewRecommendationHandlers creates a new RecommendationHandlers instance.
func NewRecommendationHandlers(service RecommendationService) *RecommendationHandlers {
	return &RecommendationHandlers{service: service}
}

// ExplanationResponse wraps an explanation with the pair it describes.
type ExplanationResponse struct {
	TargetID string `json:"target_id"`
	explain.Explanation
}

// Register mounts the recommendation routes on mux.
func (h *RecommendationHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/recommendations", h.ListRecommendations)
	mux.HandleFunc("GET /v1/recommendations/{targetID}/explanation", h.GetExplanation)
}

// ListRecommendations handles GET /v1/recommendations.
// Query parameters: context (pulse|zone), event_id, limit, offset.
func (h *RecommendationHandlers) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), matching.DefaultLimit)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeValidation, "offset must be an integer")
		return
	}

	resp, err := h.service.GetRankedCandidates(r.Context(), matching.Request{
		UserID:  userID,
		EventID: q.Get("event_id"),
		Context: q.Get("context"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, resp)
}

// GetExplanation handles GET /v1/recommendations/{targetID}/explanation.
func (h *RecommendationHandlers) GetExplanation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	targetID := r.PathValue("targetID")
	e, err := h.service.GetMatchExplanation(r.Context(), userID, targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, ExplanationResponse{TargetID: targetID, Explanation: *e})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return userID, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
