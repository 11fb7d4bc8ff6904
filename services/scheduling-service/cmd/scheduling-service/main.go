package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/reminders"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8085")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	loc, err := config.Location("BUSINESS_TIMEZONE", "UTC")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers := config.String("KAFKA_BROKERS", ""); len(kafkax.SplitBrokers(brokers)) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	engineCfg := scheduling.Config{Location: loc, Logger: logger}
	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		ttl, err := config.Duration("AVAILABILITY_CACHE_TTL", 30*time.Second)
		if err != nil {
			panic(err)
		}
		engineCfg.Cache = cache.NewAvailability(rdb, config.String("AVAILABILITY_CACHE_PREFIX", "availability"), ttl, logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("availability cache enabled", "redis_addr", addr, "ttl", ttl)
	}

	repo := storage.NewRepository(pool)
	engine := scheduling.New(repo, engineCfg)
	outboxRepo := outbox.NewRepository()
	retention, err := config.Duration("EVENT_RETENTION", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		Retention: retention,
	})
	go publisher.Run(ctx)

	if err := startReminderWorker(ctx, logger, pool, outboxRepo); err != nil {
		panic(err)
	}

	startAbsenceConsumer(ctx, logger, pool, engine, service, retention)

	if err := startGrpcServer(ctx, logger); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	jwtSecret := config.String("JWT_SECRET", "")
	var jwks *auth.JWKSClient
	if url := strings.TrimSpace(config.String("JWKS_URL", "")); url != "" {
		jwksTTL, err := config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		jwks = auth.NewJWKSClient(url, jwksTTL)
	}
	if jwtSecret == "" && jwks == nil {
		logger.Warn("no JWT_SECRET or JWKS_URL set; staff and admin routes will reject every request")
	}
	var authenticator *handlers.Authenticator
	if jwtSecret != "" || jwks != nil {
		authenticator = handlers.NewAuthenticator(auth.NewVerifier(jwtSecret, jwks))
	}

	limiter, err := publicLimiter(logger, rdb)
	if err != nil {
		panic(err)
	}
	handlers.NewHandler(engine, logger).Register(mux, handlers.RouteOptions{
		Auth:          authenticator,
		PublicLimiter: limiter,
	})

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After", "X-RateLimit-Remaining"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := runtime.Serve(ctx, srv, logger.With("timezone", loc.String()), 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
}

func startReminderWorker(ctx context.Context, logger *slog.Logger, pool *db.Pool, outboxRepo *outbox.Repository) error {
	if !config.Bool("REMINDERS_ENABLED", true) {
		logger.Info("reminder worker disabled")
		return nil
	}
	interval, err := config.Duration("REMINDER_INTERVAL", time.Minute)
	if err != nil {
		return err
	}
	lead, err := config.Duration("REMINDER_LEAD", 24*time.Hour)
	if err != nil {
		return err
	}
	window, err := config.Duration("REMINDER_WINDOW", time.Hour)
	if err != nil {
		return err
	}
	worker := reminders.NewWorker(pool, reminders.NewRepository(), outboxRepo, logger, reminders.WorkerConfig{
		Interval:  interval,
		Lead:      lead,
		Window:    window,
		BatchSize: 50,
	})
	go worker.Run(ctx)
	return nil
}

// startAbsenceConsumer follows the absence feed when brokers and a topic are configured,
// mirroring the publisher which also stays off without brokers.
func startAbsenceConsumer(ctx context.Context, logger *slog.Logger, pool *db.Pool, engine *scheduling.Engine, service string, retention time.Duration) {
	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		logger.Warn("absence consumer disabled (no kafka brokers configured)")
		return
	}
	topic := strings.TrimSpace(config.String("KAFKA_ABSENCE_TOPIC", "staff.absence.changed.v1"))
	if topic == "" {
		logger.Info("absence consumer disabled (no topic configured)")
		return
	}
	inboxRepo := inbox.NewRepository(pool)
	absenceConsumer, err := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topic:   topic,
	}, consumer.AbsenceHandler(engine))
	if err != nil {
		logger.Error("absence consumer init failed", "err", err)
		return
	}
	go absenceConsumer.Run(ctx)
	if retention > 0 {
		go pruneInbox(ctx, logger, inboxRepo, retention)
	}
}

func pruneInbox(ctx context.Context, logger *slog.Logger, repo *inbox.Repository, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("inbox prune failed", "err", err)
				continue
			}
			logger.Info("inbox pruned", "deleted", n)
		}
	}
}

// publicLimiter rate limits anonymous routes, sharing counters through Redis when available.
func publicLimiter(logger *slog.Logger, rdb *redis.Client) (httpx.Middleware, error) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}
	if perMinute <= 0 {
		return nil, nil
	}
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:scheduling"))
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), nil
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
	return httpx.NewRateLimiter(perMinute, time.Minute).Middleware(), nil
}
