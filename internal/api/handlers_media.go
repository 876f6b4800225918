package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/auth"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/internal/ingestion"
)

type uploadForm struct {
	Title string `validate:"required,max=256"`
	Type  string `validate:"omitempty,oneof=video audio"`
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxSizeBytes > 0 && r.ContentLength > h.maxSizeBytes {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if h.maxSizeBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeBytes+h.formMemBytes)
	}

	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	form := uploadForm{Title: r.FormValue("title"), Type: r.FormValue("type")}
	if err := h.validate.Struct(form); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "title and type(video|audio) required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if h.maxSizeBytes > 0 && header.Size > h.maxSizeBytes {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "file exceeds max size limit")
		return
	}

	who, _ := auth.IdentityFromContext(r.Context())
	asset, err := h.uploader.ProcessUpload(r.Context(), file, header.Size, ingestion.UploadOptions{
		Title:    form.Title,
		Type:     form.Type,
		Filename: header.Filename,
		Owner:    who.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "media uploaded",
		"media":   asset,
	})
}

func (h *HTTPHandler) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !catalog.ValidID(id) {
		h.writeError(w, r, apperror.InvalidArgument("malformed media id"))
		return
	}
	asset, err := h.catalog.Get(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		h.writeError(w, r, apperror.NotFound("media not found"))
		return
	}
	if err != nil {
		h.writeError(w, r, apperror.Internal("lookup media", err))
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *HTTPHandler) handleStreamURL(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())
	grant, err := h.issuer.IssueStreamToken(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stream_url":         grant.URL,
		"expires_in_seconds": int(grant.ExpiresIn.Seconds()),
	})
}

func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.streamer.Stream(w, r, id, r.URL.Query().Get("token")); err != nil {
		h.writeError(w, r, err)
	}
}
