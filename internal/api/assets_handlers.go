package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"assetmarket/internal/models"
	"assetmarket/internal/store"
)

type removeCartResponse struct {
	Removed int `json:"removed"`
}

// CartByID handles DELETE /api/cart/{assetId}: removes every cart entry for
// the asset in one batch.
func (h *Handler) CartByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	assetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cart/"), "/")
	if assetID == "" || strings.Contains(assetID, "/") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("asset id is required"))
		return
	}

	docs, err := h.Store.Query(r.Context(), store.CollectionCartAssets, "assetId", assetID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if len(docs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("cart asset %s not found", assetID))
		return
	}

	batch := h.Store.Batch()
	for _, doc := range docs {
		key, _ := doc["assetId"].(string)
		if key == "" {
			continue
		}
		batch.Delete(store.CollectionCartAssets, key)
	}
	if err := batch.Commit(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removeCartResponse{Removed: len(docs)})
}

// AssetByID handles GET /api/assets/{assetId}: returns the cart document for
// the asset.
func (h *Handler) AssetByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	assetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/assets/"), "/")
	if assetID == "" || strings.Contains(assetID, "/") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("asset id is required"))
		return
	}

	doc, err := h.Store.Get(r.Context(), store.CollectionCartAssets, assetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("asset %s not found", assetID))
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	var item models.CartItem
	if err := store.Decode(doc, &item); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
