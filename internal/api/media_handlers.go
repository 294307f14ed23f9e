package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"assetmarket/internal/media"
)

// Media handles GET /api/media?fileUrl=...&size=...: proxies the remote asset
// file, resized or transcoded to the requested preset.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if h.MediaProcessor == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("media processing is not configured"))
		return
	}
	fileURL := r.URL.Query().Get("fileUrl")
	if fileURL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("fileUrl query parameter is required"))
		return
	}
	size := r.URL.Query().Get("size")

	result, err := h.MediaProcessor.Fetch(r.Context(), fileURL, size)
	if err != nil {
		if errors.Is(err, media.ErrFetch) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	if result.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
