package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/voicedesk/libs/config"
	"github.com/md-rashed-zaman/voicedesk/libs/db"
	"github.com/md-rashed-zaman/voicedesk/libs/httpx"
	otelx "github.com/md-rashed-zaman/voicedesk/libs/otel"
	"github.com/md-rashed-zaman/voicedesk/libs/runtime"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/booking"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/dashboard"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/outbox"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/storage"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/sweep"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/telephony"
)

func main() {
	service := config.String("SERVICE_NAME", "dashboard-service")
	port, err := config.Port("PORT", "8082")
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

	outboxRepo := outbox.NewRepository(pool)
	bookingSvc := booking.NewService(repo, outboxRepo, logger)

	tel := telephony.NewClient(
		config.String("TWILIO_ACCOUNT_SID", ""),
		config.String("TWILIO_AUTH_TOKEN", ""),
		config.String("TWILIO_FROM_NUMBER", ""),
	)
	var caller telephony.Caller = tel
	if config.String("TWILIO_ACCOUNT_SID", "") == "" {
		logger.Warn("telephony credentials missing, manual reminder calls disabled")
		caller = telephony.NoopCaller{}
	}
	// The sweeper doubles as the manual-call path; its loop only runs in
	// reminder-service.
	reminder := sweep.NewSweeper(repo, caller, logger, sweep.Config{
		VoiceURL: config.String("VOICE_WEBHOOK_URL", ""),
	})

	passHash := config.String("DASHBOARD_ADMIN_PASSWORD_HASH", "")
	if passHash == "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(config.String("DASHBOARD_ADMIN_PASSWORD", "admin")), bcrypt.DefaultCost)
		if err != nil {
			panic(err)
		}
		passHash = string(hashed)
		logger.Warn("DASHBOARD_ADMIN_PASSWORD_HASH not set, derived hash from plain password")
	}

	tokenTTLMinutes := 60
	if v, err := strconv.Atoi(config.String("DASHBOARD_TOKEN_TTL_MINUTES", "60")); err == nil && v > 0 {
		tokenTTLMinutes = v
	}

	api := dashboard.New(repo, bookingSvc, reminder, tel, logger, dashboard.Config{
		AdminUser:     config.String("DASHBOARD_ADMIN_USER", "admin"),
		AdminPassHash: passHash,
		JWTSecret:     config.String("JWT_SECRET", "dev-secret"),
		TokenTTL:      time.Duration(tokenTTLMinutes) * time.Minute,
		IsNotFound:    storage.IsNotFound,
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	api.Register(mux)

	limitPerMinute := 60
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "60")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "dashboard")
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

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
