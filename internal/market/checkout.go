package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"assetmarket/internal/models"
	"assetmarket/internal/payment"
	"assetmarket/internal/store"
)

const transactionExpiry = 24 * time.Hour

// feeLineItemID marks the synthetic transaction-fee line submitted to the
// gateway so provider statements reconcile against the stored gross amount.
const feeLineItemID = "transaction-fee"

// Checkout creates payment transactions and tracks their status lifecycle.
type Checkout struct {
	store   store.Store
	gateway payment.Gateway
	fee     models.Money
	logger  *slog.Logger
	now     func() time.Time
}

// CheckoutConfig wires the checkout service's dependencies.
type CheckoutConfig struct {
	Store   store.Store
	Gateway payment.Gateway
	// TransactionFee is the fixed fee included in every order's gross
	// amount and submitted to the gateway as its own line item.
	TransactionFee models.Money
	Logger         *slog.Logger
	Now            func() time.Time
}

// NewCheckout builds the checkout service.
func NewCheckout(cfg CheckoutConfig) (*Checkout, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Checkout{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		fee:     cfg.TransactionFee,
		logger:  logger,
		now:     now,
	}, nil
}

// CreateTransactionParams describes a checkout request. GrossAmount is the
// total the buyer is charged, inclusive of the fixed transaction fee.
type CreateTransactionParams struct {
	OrderID         string
	GrossAmount     models.Money
	CustomerDetails models.CustomerDetails
	Items           []models.TransactionItem
	BuyerUID        string
}

// CreateTransactionResult carries the hosted-checkout token back to the
// client.
type CreateTransactionResult struct {
	OrderID string
	Token   string
}

// CreateTransaction validates the order, reconciles its price against the
// declared gross amount, obtains a payment token, and records the pending
// transaction. Nothing is persisted and the gateway is never contacted when
// validation or reconciliation fails.
func (c *Checkout) CreateTransaction(ctx context.Context, params CreateTransactionParams) (CreateTransactionResult, error) {
	if strings.TrimSpace(params.OrderID) == "" {
		return CreateTransactionResult{}, fmt.Errorf("%w: order id required", ErrInvalidInput)
	}
	details := params.CustomerDetails
	if strings.TrimSpace(details.Name) == "" || strings.TrimSpace(details.Email) == "" || strings.TrimSpace(details.Phone) == "" {
		return CreateTransactionResult{}, fmt.Errorf("%w: customer name, email and phone are required", ErrInvalidInput)
	}
	if len(params.Items) == 0 {
		return CreateTransactionResult{}, fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	for _, item := range params.Items {
		if strings.TrimSpace(item.AssetID) == "" {
			return CreateTransactionResult{}, fmt.Errorf("%w: item asset id required", ErrInvalidInput)
		}
		if item.Quantity <= 0 {
			return CreateTransactionResult{}, fmt.Errorf("%w: item %s quantity must be positive", ErrInvalidInput, item.AssetID)
		}
	}

	lines := make([]LineItem, 0, len(params.Items))
	for _, item := range params.Items {
		lines = append(lines, LineItem{Price: item.Price, Quantity: item.Quantity})
	}
	// The declared gross includes the fixed fee; items must account for the
	// remainder exactly.
	if err := Reconcile(lines, params.GrossAmount.Sub(c.fee)); err != nil {
		return CreateTransactionResult{}, err
	}

	gatewayItems := make([]payment.LineItem, 0, len(params.Items)+1)
	for _, item := range params.Items {
		gatewayItems = append(gatewayItems, payment.NewLineItem(item.AssetID, item.Name, item.Price, item.Quantity))
	}
	if !c.fee.IsZero() {
		gatewayItems = append(gatewayItems, payment.NewLineItem(feeLineItemID, "Transaction fee", c.fee, 1))
	}

	resp, err := c.gateway.CreateTransaction(ctx, payment.CreateTransactionRequest{
		OrderID:         params.OrderID,
		GrossAmount:     params.GrossAmount,
		CustomerDetails: details,
		Items:           gatewayItems,
	})
	if err != nil {
		return CreateTransactionResult{}, fmt.Errorf("create gateway transaction: %w", err)
	}

	now := c.now()
	txn := models.Transaction{
		OrderID:         params.OrderID,
		GrossAmount:     params.GrossAmount,
		CustomerDetails: details,
		Items:           params.Items,
		UID:             params.BuyerUID,
		Status:          models.TransactionPending,
		PaymentToken:    resp.Token,
		ProviderRef:     resp.TransactionID,
		Channel:         resp.Channel,
		Source:          resp.Source,
		CreatedAt:       now,
		ExpiryTime:      now.Add(transactionExpiry),
	}
	doc, err := store.Encode(txn)
	if err != nil {
		return CreateTransactionResult{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := c.store.Set(ctx, store.CollectionTransactions, params.OrderID, doc); err != nil {
		return CreateTransactionResult{}, fmt.Errorf("%w: persist transaction %s: %v", ErrStore, params.OrderID, err)
	}

	c.logger.Info("transaction created",
		"order_id", params.OrderID,
		"gross_amount", params.GrossAmount,
		"items", len(params.Items))
	return CreateTransactionResult{OrderID: params.OrderID, Token: resp.Token}, nil
}

// GetTransaction loads a stored transaction by order id.
func (c *Checkout) GetTransaction(ctx context.Context, orderID string) (models.Transaction, error) {
	doc, err := c.store.Get(ctx, store.CollectionTransactions, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Transaction{}, &NotFoundError{Ref: fmt.Sprintf("transaction %s", orderID)}
		}
		return models.Transaction{}, fmt.Errorf("%w: read transaction %s: %v", ErrStore, orderID, err)
	}
	var txn models.Transaction
	if err := store.Decode(doc, &txn); err != nil {
		return models.Transaction{}, fmt.Errorf("%w: decode transaction %s: %v", ErrStore, orderID, err)
	}
	return txn, nil
}

// UpdateStatus moves a transaction's status forward. Terminal states reject
// any change, and only the status field is written.
func (c *Checkout) UpdateStatus(ctx context.Context, orderID, status string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id required", ErrInvalidInput)
	}
	if !models.ValidTransactionStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	txn, err := c.GetTransaction(ctx, orderID)
	if err != nil {
		return err
	}
	if txn.Status == status {
		return nil
	}
	if models.TerminalTransactionStatus(txn.Status) {
		return fmt.Errorf("%w: transaction %s is %s", ErrInvalidTransition, orderID, txn.Status)
	}
	if err := c.store.Update(ctx, store.CollectionTransactions, orderID, map[string]any{"status": status}); err != nil {
		return fmt.Errorf("%w: update transaction %s: %v", ErrStore, orderID, err)
	}
	c.logger.Info("transaction status updated", "order_id", orderID, "status", status)
	return nil
}

// TransactionStatus asks the payment provider for the order's current state
// and folds a terminal provider outcome into the stored record. The provider
// response is returned unchanged either way.
func (c *Checkout) TransactionStatus(ctx context.Context, orderID string) (payment.StatusResponse, error) {
	txn, err := c.GetTransaction(ctx, orderID)
	if err != nil {
		return payment.StatusResponse{}, err
	}
	resp, err := c.gateway.TransactionStatus(ctx, orderID)
	if err != nil {
		return payment.StatusResponse{}, fmt.Errorf("fetch gateway status: %w", err)
	}
	if txn.Status == models.TransactionPending {
		switch {
		case resp.Completed():
			if err := c.UpdateStatus(ctx, orderID, models.TransactionCompleted); err != nil {
				return payment.StatusResponse{}, err
			}
		case resp.Failed():
			if err := c.UpdateStatus(ctx, orderID, models.TransactionFailed); err != nil {
				return payment.StatusResponse{}, err
			}
		}
	}
	return resp, nil
}
