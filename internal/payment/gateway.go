// Package payment talks to the hosted-checkout payment provider. The provider
// issues a one-time payment token for an order and separately reports the
// current payment state for that order.
package payment

import (
	"context"
	"errors"

	"assetmarket/internal/models"
)

// ErrGateway wraps every provider-side failure so callers can map it to a 502
// without inspecting transport details.
var ErrGateway = errors.New("payment gateway error")

// LineItem is one order line submitted to the provider.
type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// CreateTransactionRequest is the hosted-checkout creation payload.
type CreateTransactionRequest struct {
	OrderID         string
	GrossAmount     models.Money
	CustomerDetails models.CustomerDetails
	Items           []LineItem
}

// CreateTransactionResponse carries the provider's checkout token and
// transaction identifiers.
type CreateTransactionResponse struct {
	Token         string `json:"token"`
	TransactionID string `json:"transaction_id,omitempty"`
	Channel       string `json:"channel,omitempty"`
	Source        string `json:"source,omitempty"`
}

// StatusResponse reports the provider's view of an order.
type StatusResponse struct {
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type,omitempty"`
	TransactionTime   string `json:"transaction_time,omitempty"`
	GrossAmount       string `json:"gross_amount,omitempty"`
}

// Gateway is implemented by the HTTP client and by test stubs.
type Gateway interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (CreateTransactionResponse, error)
	TransactionStatus(ctx context.Context, orderID string) (StatusResponse, error)
}

// Completed reports whether the provider considers the payment captured.
func (s StatusResponse) Completed() bool {
	switch s.TransactionStatus {
	case "capture", "settlement":
		return true
	default:
		return false
	}
}

// Failed reports whether the provider considers the payment terminally failed.
func (s StatusResponse) Failed() bool {
	switch s.TransactionStatus {
	case "deny", "cancel", "expire", "failure":
		return true
	default:
		return false
	}
}
