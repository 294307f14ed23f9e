package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assetmarket/internal/api"
	"assetmarket/internal/market"
	"assetmarket/internal/payment"
	"assetmarket/internal/store"
)

type noopGateway struct{}

func (noopGateway) CreateTransaction(ctx context.Context, req payment.CreateTransactionRequest) (payment.CreateTransactionResponse, error) {
	return payment.CreateTransactionResponse{Token: "tok-" + req.OrderID}, nil
}

func (noopGateway) TransactionStatus(ctx context.Context, orderID string) (payment.StatusResponse, error) {
	return payment.StatusResponse{TransactionStatus: "pending"}, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	st := store.NewMemoryStore()
	checkout, err := market.NewCheckout(market.CheckoutConfig{Store: st, Gateway: noopGateway{}})
	if err != nil {
		t.Fatalf("NewCheckout: %v", err)
	}
	engine, err := market.NewEngine(market.EngineConfig{Store: st})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	srv, err := New(api.NewHandler(checkout, engine, st), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestServerRoutesHealthz(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestServerEchoesCallerRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Fatalf("request id = %q, want caller-supplied", got)
	}
}

func TestServerRoutesCheckoutThroughChain(t *testing.T) {
	srv := newTestServer(t, Config{})

	body := `{
		"orderId": "ORD1",
		"grossAmount": 100,
		"customerDetails": {"name": "Ayu", "email": "ayu@example.com", "phone": "+628123"},
		"items": [{"assetId": "A1", "name": "Pack", "price": 100, "quantity": 1}],
		"uid": "U1"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/create-transaction", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["token"] != "tok-ORD1" {
		t.Fatalf("token = %q", payload["token"])
	}
}

func TestGlobalRateLimitAnswers429(t *testing.T) {
	srv := newTestServer(t, Config{RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1}})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}

func TestCheckoutRateLimitPerClient(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{CheckoutLimit: 2, CheckoutWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowCheckout(ctx, "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("attempt %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, retryAfter, err := rl.AllowCheckout(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("AllowCheckout: %v", err)
	}
	if allowed {
		t.Fatal("third attempt should be denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %s, want positive", retryAfter)
	}

	// A different client keeps its own budget.
	allowed, _, err = rl.AllowCheckout(ctx, "10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("fresh client: allowed=%v err=%v", allowed, err)
	}
}

func TestClientIPFromRequest(t *testing.T) {
	cases := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"remote addr", "192.0.2.10:4455", "", "192.0.2.10"},
		{"forwarded", "10.0.0.1:1000", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"no port", "192.0.2.11", "", "192.0.2.11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := clientIPFromRequest(req); got != tc.want {
				t.Fatalf("ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequestIDMiddlewareUsesGenerator(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get("X-Request-Id")
	})
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "generated-id" {
		t.Fatalf("request id = %q, want generated-id", seen)
	}
}

func TestServerRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, Config{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestNewRequiresHandler(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error for nil handler")
	}
}
