package handlers

import (
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpkit"
)

// StreamOutput serves a rendered image straight from storage. The wildcard
// path is the object key the worker wrote, e.g. renders/<batch>/row_00001.png.
func (h *Handler) StreamOutput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The key is either the renders/<batch>/... path written by the worker or
	// the provider-issued file id (gdrive). Traversal is the only thing to
	// reject here; the provider decides whether the key exists.
	objectKey := path.Clean(chi.URLParam(r, "*"))
	if objectKey == "." || strings.HasPrefix(objectKey, "..") || strings.HasPrefix(objectKey, "/") {
		httpkit.WriteErr(w, 404, "OUTPUT_NOT_FOUND", "output not found", map[string]any{"object_key": objectKey})
		return
	}

	rc, ct, size, err := h.sp.GetObject(ctx, objectKey)
	if err != nil {
		httpkit.WriteErr(w, 404, "OUTPUT_NOT_FOUND", "output not found", map[string]any{"object_key": objectKey})
		return
	}
	defer rc.Close()

	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(objectKey))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
}
