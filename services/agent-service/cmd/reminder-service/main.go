package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/voicedesk/libs/config"
	"github.com/md-rashed-zaman/voicedesk/libs/db"
	"github.com/md-rashed-zaman/voicedesk/libs/grpcx"
	"github.com/md-rashed-zaman/voicedesk/libs/httpx"
	otelx "github.com/md-rashed-zaman/voicedesk/libs/otel"
	"github.com/md-rashed-zaman/voicedesk/libs/runtime"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/storage"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/sweep"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/telephony"
)

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8081")
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

	voiceURL, err := config.RequiredString("VOICE_WEBHOOK_URL")
	if err != nil {
		panic(err)
	}

	var caller telephony.Caller
	accountSID := config.String("TWILIO_ACCOUNT_SID", "")
	if accountSID == "" {
		logger.Warn("telephony credentials missing, reminder calls disabled")
		caller = telephony.NoopCaller{}
	} else {
		caller = telephony.NewClient(
			accountSID,
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM_NUMBER", ""),
		)
	}

	intervalMinutes := 15
	if v, err := strconv.Atoi(config.String("SWEEP_INTERVAL_MINUTES", "15")); err == nil && v > 0 {
		intervalMinutes = v
	}
	sweeper := sweep.NewSweeper(repo, caller, logger, sweep.Config{
		VoiceURL: voiceURL,
		Interval: time.Duration(intervalMinutes) * time.Minute,
	})
	go sweeper.Run(ctx)

	if err := startGrpcServer(ctx, logger); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reminder")
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

// startGrpcServer exposes the standard gRPC health service so cluster probes
// and apptctl can check liveness over gRPC.
func startGrpcServer(ctx context.Context, logger *slog.Logger) error {
	port := runtime.Getenv("GRPC_PORT", "9091")
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		healthSrv.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}
