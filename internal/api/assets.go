package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AssetStore keeps binary attachments such as voice notes.
type AssetStore interface {
	PutAsset(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// AssetHandler accepts and serves attachments from object storage.
type AssetHandler struct {
	store AssetStore
}

// NewAssetHandler creates a handler backed by store.
func NewAssetHandler(store AssetStore) *AssetHandler {
	return &AssetHandler{store: store}
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
//
//	@Summary		Upload an attachment
//	@Tags			assets
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Attachment"
//	@Success		201		{object}	AssetUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [post]
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	key, err := h.store.PutAsset(r.Context(), data, ct)
	if err != nil {
		writeError(w, "upload asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, AssetUploadResponse{Key: key, Size: int64(len(data))})
}

// Serve handles GET /api/assets/*.
func (h *AssetHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if name == "" || strings.Contains(name, "..") || strings.Contains(name, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid asset name"))
		return
	}
	data, err := h.store.Get(r.Context(), "assets/"+name)
	if err != nil {
		writeError(w, "get asset", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}
