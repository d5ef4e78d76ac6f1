package main

import (
	"context"
	"net/http"
	"time"

	"github.com/paystream-au/railcore/libs/config"
	"github.com/paystream-au/railcore/libs/db"
	"github.com/paystream-au/railcore/libs/httpx"
	"github.com/paystream-au/railcore/libs/kafkax"
	otelx "github.com/paystream-au/railcore/libs/otel"
	"github.com/paystream-au/railcore/libs/runtime"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/command"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/handlers"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/idempotency"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/payments"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/publisher"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/ratelimit"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/rejection"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/schema"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "orchestrator-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		logger.Error("schema registry load failed", "err", err)
		panic(err)
	}
	logger.Info("schema registry loaded", "event_types", registry.EventTypes())

	var checks []runtime.ReadyCheck

	brokers := config.String("KAFKA_BROKERS", "")
	var pub schema.Publisher
	if brokers != "" {
		kafkaPub := publisher.NewKafka(brokers, logger)
		defer func() { _ = kafkaPub.Close() }()
		pub = kafkaPub
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("no kafka brokers configured, events stay in process (dev mode)")
		pub = publisher.NewMemory()
	}

	gate := schema.NewGate(registry, pub, logger)
	rejections := rejection.NewEmitter(gate, logger)

	var store idempotency.Store
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		pg := idempotency.NewPostgresStore(pool, config.Duration("RESERVATION_TTL", 5*time.Minute))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("command_records schema setup failed", "err", err)
			panic(err)
		}
		store = pg
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		// Acceptable only outside production: exactly-once does not survive
		// a restart without a durable store.
		logger.Warn("no DATABASE_URL configured, using in-memory idempotency store (dev mode)")
		store = idempotency.NewMemoryStore()
	}

	logics := command.NewRegistry()
	payments.Register(logics, gate)

	pipeline := command.NewHandler(store, rejections, logics, logger)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		limiter := ratelimit.NewRedisLimiter(rdb,
			config.Int("COMMAND_RATE_LIMIT", 120),
			config.Duration("COMMAND_RATE_WINDOW", time.Minute),
			"railcore:cmd",
		)
		pipeline = pipeline.WithLimiter(limiter)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	h := handlers.NewCommandHandler(pipeline, logger)
	mux.HandleFunc("/api/v1/commands", h.Submit)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "orchestrator")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("orchestrator listening", "port", port, "commands", logics.Types())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
