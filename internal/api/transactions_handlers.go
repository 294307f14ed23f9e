package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"assetmarket/internal/market"
	"assetmarket/internal/models"
)

type transactionItemRequest struct {
	AssetID  string      `json:"assetId"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int64       `json:"quantity"`
}

type createTransactionRequest struct {
	OrderID         string                   `json:"orderId"`
	GrossAmount     json.Number              `json:"grossAmount"`
	CustomerDetails models.CustomerDetails   `json:"customerDetails"`
	Items           []transactionItemRequest `json:"items"`
	UID             string                   `json:"uid"`
}

type createTransactionResponse struct {
	OrderID string `json:"orderId"`
	Token   string `json:"token"`
}

type updateTransactionRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type transactionStatusResponse struct {
	OrderID           string `json:"orderId"`
	Status            string `json:"status"`
	TransactionStatus string `json:"transactionStatus,omitempty"`
	PaymentType       string `json:"paymentType,omitempty"`
}

// CreateTransaction handles POST /api/transactions/create-transaction.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var payload createTransactionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	gross, err := parseMoneyNumber(payload.GrossAmount, "grossAmount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items := make([]models.TransactionItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		price, err := parseMoneyNumber(item.Price, fmt.Sprintf("items[%s].price", item.AssetID))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		items = append(items, models.TransactionItem{
			AssetID:  item.AssetID,
			Name:     item.Name,
			Price:    price,
			Quantity: item.Quantity,
		})
	}

	result, err := h.Checkout.CreateTransaction(r.Context(), market.CreateTransactionParams{
		OrderID:         payload.OrderID,
		GrossAmount:     gross,
		CustomerDetails: payload.CustomerDetails,
		Items:           items,
		BuyerUID:        payload.UID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTransactionResponse{OrderID: result.OrderID, Token: result.Token})
}

// UpdateTransaction handles PUT /api/transactions/update-transaction.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodPut)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var payload updateTransactionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Checkout.UpdateStatus(r.Context(), payload.OrderID, payload.Status); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": payload.OrderID, "status": payload.Status})
}

// TransactionByID handles GET /api/transactions/{orderId} and
// GET /api/transactions/{orderId}/status.
func (h *Handler) TransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("order id is required"))
		return
	}
	orderID := parts[0]

	switch {
	case len(parts) == 1:
		record, err := h.Checkout.GetTransaction(r.Context(), orderID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case len(parts) == 2 && parts[1] == "status":
		status, err := h.Checkout.TransactionStatus(r.Context(), orderID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		record, err := h.Checkout.GetTransaction(r.Context(), orderID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionStatusResponse{
			OrderID:           orderID,
			Status:            record.Status,
			TransactionStatus: status.TransactionStatus,
			PaymentType:       status.PaymentType,
		})
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown transaction resource %q", trimmed))
	}
}
