package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/clientip"
	"github.com/your-org/mediastream/internal/viewlog"
)

// CacheStatusHeader reports HIT, MISS or SKIP on analytics responses.
const CacheStatusHeader = "X-Cache"

type viewRequest struct {
	Timestamp json.RawMessage `json:"timestamp"`
}

func (h *HTTPHandler) handleLogView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := h.decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	ts, err := viewlog.ParseTimestamp(req.Timestamp)
	if err != nil {
		h.writeError(w, r, apperror.Wrap(apperror.KindInvalidArgument, "invalid timestamp", err))
		return
	}

	entry, err := h.views.LogView(r.Context(), viewlog.View{
		MediaID:   chi.URLParam(r, "id"),
		SourceIP:  clientip.FromRequest(r),
		Timestamp: ts,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "view logged",
		"media_id":  entry.MediaID,
		"timestamp": entry.Timestamp,
	})
}

func (h *HTTPHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, status, err := h.analytics.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(CacheStatusHeader, string(status))
	writeJSON(w, http.StatusOK, snap)
}
