// Command server starts the asset marketplace HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"assetmarket/internal/api"
	"assetmarket/internal/market"
	"assetmarket/internal/media"
	"assetmarket/internal/models"
	"assetmarket/internal/observability/logging"
	"assetmarket/internal/payment"
	"assetmarket/internal/server"
	"assetmarket/internal/store"
)

func main() {
	// A missing .env file is not an error; explicit environment wins either way.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	storeDriver := flag.String("store-driver", "", "datastore driver (memory, firestore, or postgres)")
	firestoreProject := flag.String("firestore-project", "", "Firestore project ID")
	firestoreCredentials := flag.String("firestore-credentials", "", "path to Firestore service account credentials")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	paymentBaseURL := flag.String("payment-base-url", "", "payment provider API root")
	paymentServerKey := flag.String("payment-server-key", "", "payment provider server key")
	paymentTimeout := flag.Duration("payment-timeout", 0, "timeout for payment provider calls")
	transactionFee := flag.String("transaction-fee", "", "fixed per-order transaction fee, e.g. 1000 or 1000.50")
	statusCacheAddr := flag.String("status-cache-redis-addr", "", "Redis address for the payment status cache")
	statusCachePassword := flag.String("status-cache-redis-password", "", "Redis password for the payment status cache")
	statusCacheTTL := flag.Duration("status-cache-ttl", 0, "TTL for cached payment status responses")
	ffmpegPath := flag.String("ffmpeg-path", "", "path to the ffmpeg binary")
	mediaWorkers := flag.Int("media-workers", 0, "maximum concurrent media transformations")
	mediaTempDir := flag.String("media-temp-dir", "", "working directory for media temp files")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	checkoutLimit := flag.Int("rate-checkout-limit", 0, "maximum checkout attempts per window for a single IP")
	checkoutWindow := flag.Duration("rate-checkout-window", 0, "window for counting checkout attempts")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed checkout throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed checkout throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for rate limit Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("ASSETMARKET_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("ASSETMARKET_LOG_FORMAT")),
	})

	listenAddr := firstNonEmpty(*addr, os.Getenv("ASSETMARKET_ADDR"), ":8080")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	st, err := openStore(bootCtx, storeOptions{
		Driver:                  firstNonEmpty(*storeDriver, os.Getenv("ASSETMARKET_STORE_DRIVER"), "memory"),
		FirestoreProject:        firstNonEmpty(*firestoreProject, os.Getenv("ASSETMARKET_FIRESTORE_PROJECT")),
		FirestoreCreds:          firstNonEmpty(*firestoreCredentials, os.Getenv("ASSETMARKET_FIRESTORE_CREDENTIALS")),
		PostgresDSN:             firstNonEmpty(*postgresDSN, os.Getenv("ASSETMARKET_POSTGRES_DSN")),
		PostgresMaxConns:        resolveInt(*postgresMaxConns, "ASSETMARKET_POSTGRES_MAX_CONNS"),
		PostgresMinConns:        resolveInt(*postgresMinConns, "ASSETMARKET_POSTGRES_MIN_CONNS"),
		PostgresMaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "ASSETMARKET_POSTGRES_MAX_CONN_LIFETIME", 0),
		PostgresMaxConnIdle:     resolveDuration(*postgresMaxConnIdle, "ASSETMARKET_POSTGRES_MAX_CONN_IDLE", 0),
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	gateway, err := buildGateway(gatewayOptions{
		BaseURL:       firstNonEmpty(*paymentBaseURL, os.Getenv("ASSETMARKET_PAYMENT_BASE_URL")),
		ServerKey:     firstNonEmpty(*paymentServerKey, os.Getenv("ASSETMARKET_PAYMENT_SERVER_KEY")),
		Timeout:       resolveDuration(*paymentTimeout, "ASSETMARKET_PAYMENT_TIMEOUT", 0),
		CacheAddr:     firstNonEmpty(*statusCacheAddr, os.Getenv("ASSETMARKET_STATUS_CACHE_REDIS_ADDR")),
		CachePassword: firstNonEmpty(*statusCachePassword, os.Getenv("ASSETMARKET_STATUS_CACHE_REDIS_PASSWORD")),
		CacheTTL:      resolveDuration(*statusCacheTTL, "ASSETMARKET_STATUS_CACHE_TTL", 0),
	})
	if err != nil {
		logger.Error("failed to configure payment gateway", "error", err)
		os.Exit(1)
	}

	fee := models.Money{}
	if raw := firstNonEmpty(*transactionFee, os.Getenv("ASSETMARKET_TRANSACTION_FEE")); raw != "" {
		fee, err = models.ParseMoney(raw)
		if err != nil {
			logger.Error("invalid transaction fee", "value", raw, "error", err)
			os.Exit(1)
		}
	}

	checkout, err := market.NewCheckout(market.CheckoutConfig{
		Store:          st,
		Gateway:        gateway,
		TransactionFee: fee,
		Logger:         logging.WithComponent(logger, "checkout"),
	})
	if err != nil {
		logger.Error("failed to initialise checkout", "error", err)
		os.Exit(1)
	}
	engine, err := market.NewEngine(market.EngineConfig{
		Store:  st,
		Logger: logging.WithComponent(logger, "settlement"),
	})
	if err != nil {
		logger.Error("failed to initialise settlement engine", "error", err)
		os.Exit(1)
	}

	processor := media.NewProcessor(media.Config{
		FFmpegPath: firstNonEmpty(*ffmpegPath, os.Getenv("ASSETMARKET_FFMPEG_PATH")),
		Workers:    resolveInt(*mediaWorkers, "ASSETMARKET_MEDIA_WORKERS"),
		TempDir:    firstNonEmpty(*mediaTempDir, os.Getenv("ASSETMARKET_MEDIA_TEMP_DIR")),
		Logger:     logging.WithComponent(logger, "media"),
	})

	handler := api.NewHandler(checkout, engine, st)
	handler.MediaProcessor = processor
	handler.Logger = logging.WithComponent(logger, "api")

	rateCfg := server.RateLimitConfig{
		GlobalRPS:      resolveFloat(*globalRPS, "ASSETMARKET_RATE_GLOBAL_RPS"),
		GlobalBurst:    resolveInt(*globalBurst, "ASSETMARKET_RATE_GLOBAL_BURST"),
		CheckoutLimit:  resolveInt(*checkoutLimit, "ASSETMARKET_RATE_CHECKOUT_LIMIT"),
		CheckoutWindow: resolveDuration(*checkoutWindow, "ASSETMARKET_RATE_CHECKOUT_WINDOW", 0),
		RedisAddr:      firstNonEmpty(*rateRedisAddr, os.Getenv("ASSETMARKET_RATE_REDIS_ADDR")),
		RedisPassword:  firstNonEmpty(*rateRedisPassword, os.Getenv("ASSETMARKET_RATE_REDIS_PASSWORD")),
		RedisTimeout:   resolveDuration(*rateRedisTimeout, "ASSETMARKET_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		RateLimit: rateCfg,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("asset market API listening", "addr", listenAddr)
	if err := srv.Run(runCtx); err != nil {
		logger.Error("server stopped", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if closer, ok := gateway.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close payment gateway", "error", err)
		}
	}
	if err := st.Close(closeCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
}

type storeOptions struct {
	Driver                  string
	FirestoreProject        string
	FirestoreCreds          string
	PostgresDSN             string
	PostgresMaxConns        int
	PostgresMinConns        int
	PostgresMaxConnLifetime time.Duration
	PostgresMaxConnIdle     time.Duration
}

func openStore(ctx context.Context, opts storeOptions) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "firestore":
		if opts.FirestoreProject == "" {
			return nil, fmt.Errorf("firestore driver requires a project ID")
		}
		var clientOpts []option.ClientOption
		if opts.FirestoreCreds != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.FirestoreCreds))
		}
		return store.NewFirestoreStore(ctx, opts.FirestoreProject, clientOpts...)
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:             opts.PostgresDSN,
			MaxConnections:  int32(opts.PostgresMaxConns),
			MinConnections:  int32(opts.PostgresMinConns),
			MaxConnLifetime: opts.PostgresMaxConnLifetime,
			MaxConnIdleTime: opts.PostgresMaxConnIdle,
			ApplicationName: "assetmarket",
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

type gatewayOptions struct {
	BaseURL       string
	ServerKey     string
	Timeout       time.Duration
	CacheAddr     string
	CachePassword string
	CacheTTL      time.Duration
}

func buildGateway(opts gatewayOptions) (payment.Gateway, error) {
	client, err := payment.NewClient(payment.ClientConfig{
		BaseURL:        opts.BaseURL,
		ServerKey:      opts.ServerKey,
		RequestTimeout: opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if opts.CacheAddr == "" {
		return client, nil
	}
	cached, err := payment.NewStatusCache(client, payment.StatusCacheConfig{
		Addr:     opts.CacheAddr,
		Password: opts.CachePassword,
		TTL:      opts.CacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envName string) int {
	if flagValue != 0 {
		return flagValue
	}
	if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return 0
}

func resolveFloat(flagValue float64, envName string) float64 {
	if flagValue != 0 {
		return flagValue
	}
	if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envName string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil {
			return value
		}
	}
	return fallback
}
