package api

import (
	"fmt"
	"net/http"
	"strings"

	"assetmarket/internal/market"
)

type moveAssetsRequest struct {
	OrderID  string   `json:"orderId"`
	UID      string   `json:"uid"`
	AssetIDs []string `json:"assetIds"`
}

type settleResponse struct {
	Settled int `json:"settled"`
}

type buyNowSettleRequest struct {
	OrderID string `json:"orderId"`
	UID     string `json:"uid"`
}

// MoveAssets handles POST /api/move-assets: grants every cart asset named in
// the request to the buyer in one atomic settlement.
func (h *Handler) MoveAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var payload moveAssetsRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	refs := make([]market.AssetRef, 0, len(payload.AssetIDs))
	for _, assetID := range payload.AssetIDs {
		refs = append(refs, market.AssetRef{
			Source:   market.SourceCart,
			AssetID:  assetID,
			BuyerUID: payload.UID,
			OrderID:  payload.OrderID,
		})
	}
	settled, err := h.Settlement.Settle(r.Context(), refs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{Settled: settled})
}

// BuyNowByID handles POST /api/buy-now/{assetId}/settle: grants a single
// buy-now asset to the buyer.
func (h *Handler) BuyNowByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/buy-now/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "settle" {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown buy-now resource %q", trimmed))
		return
	}
	assetID := parts[0]

	var payload buyNowSettleRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settled, err := h.Settlement.Settle(r.Context(), []market.AssetRef{{
		Source:   market.SourceBuyNow,
		AssetID:  assetID,
		BuyerUID: payload.UID,
		OrderID:  payload.OrderID,
	}})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{Settled: settled})
}
