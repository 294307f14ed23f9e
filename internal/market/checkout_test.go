package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"assetmarket/internal/models"
	"assetmarket/internal/payment"
	"assetmarket/internal/store"
)

type stubGateway struct {
	createResp  payment.CreateTransactionResponse
	createErr   error
	statusResp  payment.StatusResponse
	statusErr   error
	createCalls int
	statusCalls int
	lastCreate  payment.CreateTransactionRequest
}

func (g *stubGateway) CreateTransaction(ctx context.Context, req payment.CreateTransactionRequest) (payment.CreateTransactionResponse, error) {
	g.createCalls++
	g.lastCreate = req
	if g.createErr != nil {
		return payment.CreateTransactionResponse{}, g.createErr
	}
	return g.createResp, nil
}

func (g *stubGateway) TransactionStatus(ctx context.Context, orderID string) (payment.StatusResponse, error) {
	g.statusCalls++
	if g.statusErr != nil {
		return payment.StatusResponse{}, g.statusErr
	}
	return g.statusResp, nil
}

func newTestCheckout(t *testing.T, gateway *stubGateway, fee models.Money) (*Checkout, *store.MemoryStore) {
	t.Helper()
	memory := store.NewMemoryStore()
	checkout, err := NewCheckout(CheckoutConfig{
		Store:          memory,
		Gateway:        gateway,
		TransactionFee: fee,
		Now:            func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new checkout: %v", err)
	}
	return checkout, memory
}

func validParams() CreateTransactionParams {
	return CreateTransactionParams{
		OrderID:     "ORD1",
		GrossAmount: models.MustParseMoney("10000"),
		CustomerDetails: models.CustomerDetails{
			Name:  "Buyer One",
			Email: "buyer@example.com",
			Phone: "0811111111",
		},
		Items: []models.TransactionItem{
			{AssetID: "A1", Name: "Asset One", Price: models.MustParseMoney("10000"), Quantity: 1},
		},
		BuyerUID: "U1",
	}
}

func TestCreateTransactionPersistsPendingRecord(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{createResp: payment.CreateTransactionResponse{
		Token:         "tok-1",
		TransactionID: "trx-1",
		Channel:       "web",
	}}
	checkout, _ := newTestCheckout(t, gateway, models.Money{})

	result, err := checkout.CreateTransaction(ctx, validParams())
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if result.Token != "tok-1" || result.OrderID != "ORD1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	txn, err := checkout.GetTransaction(ctx, "ORD1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != models.TransactionPending {
		t.Fatalf("expected pending status, got %q", txn.Status)
	}
	if txn.PaymentToken != "tok-1" || txn.ProviderRef != "trx-1" {
		t.Fatalf("gateway identifiers not stored: %+v", txn)
	}
	if got := txn.ExpiryTime.Sub(txn.CreatedAt); got != 24*time.Hour {
		t.Fatalf("expected 24h expiry window, got %s", got)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		mutate func(*CreateTransactionParams)
	}{
		{name: "missingOrderID", mutate: func(p *CreateTransactionParams) { p.OrderID = " " }},
		{name: "missingName", mutate: func(p *CreateTransactionParams) { p.CustomerDetails.Name = "" }},
		{name: "missingEmail", mutate: func(p *CreateTransactionParams) { p.CustomerDetails.Email = "" }},
		{name: "missingPhone", mutate: func(p *CreateTransactionParams) { p.CustomerDetails.Phone = "" }},
		{name: "noItems", mutate: func(p *CreateTransactionParams) { p.Items = nil }},
		{name: "zeroQuantity", mutate: func(p *CreateTransactionParams) { p.Items[0].Quantity = 0 }},
		{name: "missingItemAsset", mutate: func(p *CreateTransactionParams) { p.Items[0].AssetID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := &stubGateway{}
			checkout, _ := newTestCheckout(t, gateway, models.Money{})
			params := validParams()
			tc.mutate(&params)
			if _, err := checkout.CreateTransaction(ctx, params); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if gateway.createCalls != 0 {
				t.Fatal("gateway must not be contacted for invalid input")
			}
		})
	}
}

func TestCreateTransactionAmountMismatchSkipsGateway(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{}
	checkout, memory := newTestCheckout(t, gateway, models.Money{})

	params := validParams()
	params.GrossAmount = models.MustParseMoney("9000")
	_, err := checkout.CreateTransaction(ctx, params)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if gateway.createCalls != 0 {
		t.Fatal("gateway must not be contacted on mismatch")
	}
	if _, err := memory.Get(ctx, store.CollectionTransactions, "ORD1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("nothing may be persisted on mismatch")
	}
}

func TestCreateTransactionFeeIncludedConsistently(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{createResp: payment.CreateTransactionResponse{Token: "tok-1"}}
	fee := models.MustParseMoney("1000")
	checkout, _ := newTestCheckout(t, gateway, fee)

	params := validParams()
	// Items total 10000; with the 1000 fee the declared gross is 11000.
	params.GrossAmount = models.MustParseMoney("11000")
	if _, err := checkout.CreateTransaction(ctx, params); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if !gateway.lastCreate.GrossAmount.Equal(models.MustParseMoney("11000")) {
		t.Fatalf("gateway gross must include the fee: %s", gateway.lastCreate.GrossAmount)
	}
	items := gateway.lastCreate.Items
	if len(items) != 2 {
		t.Fatalf("expected synthetic fee line item, got %d items", len(items))
	}
	feeLine := items[len(items)-1]
	if feeLine.ID != "transaction-fee" || feeLine.Price != fee.MinorUnits() || feeLine.Quantity != 1 {
		t.Fatalf("unexpected fee line: %+v", feeLine)
	}
	// The submitted line items must sum to the submitted gross amount.
	var total int64
	for _, item := range items {
		total += item.Price * item.Quantity
	}
	if total != gateway.lastCreate.GrossAmount.MinorUnits() {
		t.Fatalf("line items (%d) do not reconcile with gateway gross (%d)", total, gateway.lastCreate.GrossAmount.MinorUnits())
	}
}

func TestCreateTransactionGatewayFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{createErr: payment.ErrGateway}
	checkout, memory := newTestCheckout(t, gateway, models.Money{})

	if _, err := checkout.CreateTransaction(ctx, validParams()); !errors.Is(err, payment.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if _, err := memory.Get(ctx, store.CollectionTransactions, "ORD1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("nothing may be persisted when the gateway fails")
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{createResp: payment.CreateTransactionResponse{Token: "tok-1"}}
	checkout, _ := newTestCheckout(t, gateway, models.Money{})

	if _, err := checkout.CreateTransaction(ctx, validParams()); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := checkout.UpdateStatus(ctx, "ORD1", models.TransactionCompleted); err != nil {
		t.Fatalf("pending -> completed must succeed: %v", err)
	}
	// Terminal states reject different statuses.
	if err := checkout.UpdateStatus(ctx, "ORD1", models.TransactionPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := checkout.UpdateStatus(ctx, "ORD1", models.TransactionFailed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// Re-asserting the current status is a no-op, not an error.
	if err := checkout.UpdateStatus(ctx, "ORD1", models.TransactionCompleted); err != nil {
		t.Fatalf("idempotent status update must succeed: %v", err)
	}
	txn, err := checkout.GetTransaction(ctx, "ORD1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.UID != "U1" || txn.PaymentToken != "tok-1" {
		t.Fatal("status update must leave other fields untouched")
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	checkout, _ := newTestCheckout(t, &stubGateway{}, models.Money{})

	var notFound *NotFoundError
	if err := checkout.UpdateStatus(ctx, "missing", models.TransactionCompleted); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if err := checkout.UpdateStatus(ctx, "ORD1", "refunded"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}

func TestTransactionStatusFoldsTerminalOutcome(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{
		createResp: payment.CreateTransactionResponse{Token: "tok-1"},
		statusResp: payment.StatusResponse{TransactionStatus: "settlement"},
	}
	checkout, _ := newTestCheckout(t, gateway, models.Money{})

	if _, err := checkout.CreateTransaction(ctx, validParams()); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	resp, err := checkout.TransactionStatus(ctx, "ORD1")
	if err != nil {
		t.Fatalf("transaction status: %v", err)
	}
	if !resp.Completed() {
		t.Fatalf("unexpected provider response: %+v", resp)
	}
	txn, err := checkout.GetTransaction(ctx, "ORD1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != models.TransactionCompleted {
		t.Fatalf("provider settlement must complete the record, got %q", txn.Status)
	}

	// A completed record stays completed even if polled again.
	gateway.statusResp = payment.StatusResponse{TransactionStatus: "expire"}
	if _, err := checkout.TransactionStatus(ctx, "ORD1"); err != nil {
		t.Fatalf("second status poll: %v", err)
	}
	txn, _ = checkout.GetTransaction(ctx, "ORD1")
	if txn.Status != models.TransactionCompleted {
		t.Fatalf("terminal state must not regress, got %q", txn.Status)
	}
}
