package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/middleware"
)

type generateRequest struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// GenerateImage runs the full generation pipeline synchronously and returns
// the persisted record, or a structured error, never a partial record.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.failKind(w, domain.KindUnauthenticated, "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.failKind(w, domain.KindInvalidArgument, "invalid payload")
		return
	}

	rec, err := a.Generator.Generate(r.Context(), domain.GenerationRequest{
		UserID:         userID,
		Prompt:         req.Prompt,
		Style:          req.Style,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}

// ListImages serves the caller's gallery, newest first.
func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.failKind(w, domain.KindUnauthenticated, "missing user context")
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	recs, err := a.Generator.Gallery(r.Context(), userID, limit, offset)
	if err != nil {
		a.fail(w, err)
		return
	}
	if recs == nil {
		recs = []domain.GenerationRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": recs})
}

// Quota reports the caller's daily usage.
func (a *App) Quota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.failKind(w, domain.KindUnauthenticated, "missing user context")
		return
	}
	rec, err := a.Ledger.Usage(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{
		"daily_limit": rec.DailyLimit,
		"used_today":  rec.UsedToday,
		"remaining":   rec.Remaining(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
