package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"assetmarket/internal/api"
	"assetmarket/internal/observability/logging"
	"assetmarket/internal/serverutil"
)

type Config struct {
	Addr      string
	RateLimit RateLimitConfig
	Logger    *slog.Logger
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	rateLimiter *rateLimiter
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.HandleFunc("/api/transactions/create-transaction", handler.CreateTransaction)
	mux.HandleFunc("/api/transactions/update-transaction", handler.UpdateTransaction)
	mux.HandleFunc("/api/transactions/", handler.TransactionByID)
	mux.HandleFunc("/api/move-assets", handler.MoveAssets)
	mux.HandleFunc("/api/buy-now/", handler.BuyNowByID)
	mux.HandleFunc("/api/cart/", handler.CartByID)
	mux.HandleFunc("/api/assets/", handler.AssetByID)
	mux.HandleFunc("/api/media", handler.Media)

	rl := newRateLimiter(cfg.RateLimit)
	handlerChain := http.Handler(mux)
	handlerChain = rateLimitMiddleware(rl, cfg.Logger, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		rateLimiter: rl,
	}, nil
}

// Handler exposes the fully assembled middleware chain, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		ShutdownTimeout: serverutil.DefaultShutdownTimeout,
	})
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			writeMiddlewareError(w, http.StatusTooManyRequests, "global rate limit exceeded")
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/api/transactions/create-transaction" {
			ip := clientIPFromRequest(r)
			allowed, retryAfter, err := rl.AllowCheckout(r.Context(), ip)
			if err != nil {
				if logger != nil {
					logger.Warn("checkout rate limit check failed", "error", err, "remote_ip", ip)
				}
			} else if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
				}
				writeMiddlewareError(w, http.StatusTooManyRequests, "checkout rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
