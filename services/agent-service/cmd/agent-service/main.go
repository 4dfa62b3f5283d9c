package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/voicedesk/libs/config"
	"github.com/md-rashed-zaman/voicedesk/libs/db"
	"github.com/md-rashed-zaman/voicedesk/libs/httpx"
	"github.com/md-rashed-zaman/voicedesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/voicedesk/libs/otel"
	"github.com/md-rashed-zaman/voicedesk/libs/runtime"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/booking"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/convstate"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/dialog"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/handlers"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/llm"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/outbox"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "agent-service")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewAppointmentsRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}

	redisDB := 0
	if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
		redisDB = v
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.String("REDIS_ADDR", "localhost:6379"),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	defer func() { _ = rdb.Close() }()

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingSvc := booking.NewService(repo, outboxRepo, logger)
	chat := llm.NewClient(
		config.String("OPENAI_API_KEY", ""),
		config.String("OPENAI_BASE_URL", ""),
		config.String("OPENAI_MODEL", ""),
	)
	states := convstate.NewStore(rdb)
	ctrl := dialog.NewController(chat, bookingSvc, logger)
	webhooks := handlers.NewWebhooks(ctrl, states, chat, bookingSvc, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	webhooks.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "agent")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
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
