package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/voicedesk/libs/config"
	"github.com/md-rashed-zaman/voicedesk/libs/db"
	"github.com/md-rashed-zaman/voicedesk/libs/httpx"
	"github.com/md-rashed-zaman/voicedesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/voicedesk/libs/otel"
	"github.com/md-rashed-zaman/voicedesk/libs/runtime"
	"github.com/md-rashed-zaman/voicedesk/services/notify-service/internal/consumer"
	"github.com/md-rashed-zaman/voicedesk/services/notify-service/internal/inbox"
	"github.com/md-rashed-zaman/voicedesk/services/notify-service/internal/sms"
	"github.com/md-rashed-zaman/voicedesk/services/notify-service/internal/storage"
)

// appointmentPayload mirrors the lifecycle events published by agent-service.
type appointmentPayload struct {
	AppointmentID   int64  `json:"appointment_id"`
	Name            string `json:"name"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes"`
	PhoneNumber     string `json:"phone_number"`
	Status          string `json:"status"`
	OccurredAt      string `json:"occurred_at"`
}

const unknownPhone = "Unknown"

func messageBody(eventType string, payload appointmentPayload) string {
	first := firstWord(payload.Name)
	switch eventType {
	case "appointment.rescheduled.v1":
		return fmt.Sprintf("Hi %s, your appointment has been moved to %s. See you then.", first, payload.AppointmentTime)
	case "appointment.cancelled.v1":
		return fmt.Sprintf("Hi %s, your appointment for %s has been cancelled. Call us any time to rebook.", first, payload.AppointmentTime)
	default:
		return fmt.Sprintf("Hi %s, your appointment for %s is booked. Reply to this message or call us if anything changes.", first, payload.AppointmentTime)
	}
}

func splitTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func firstWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func main() {
	service := config.String("SERVICE_NAME", "notify-service")
	port, err := config.Port("PORT", "8083")
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

	inboxRepo := inbox.NewRepository(pool)
	if err := inboxRepo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}
	notificationsRepo := storage.NewRepository(pool)
	if err := notificationsRepo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	var smsSender sms.Sender
	switch smsProvider {
	case "twilio":
		smsSender = sms.NewTwilioSender(
			config.String("TWILIO_ACCOUNT_SID", ""),
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM_NUMBER", ""),
		)
	case "webhook":
		smsSender = sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		)
	default:
		smsSender = sms.NewNoopSender()
	}
	logger.Info("sms provider selected", "provider", smsSender.ProviderID())

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notify-service"),
		Topics: splitTopics(config.String("KAFKA_CONSUME_TOPICS",
			"appointment.booked.v1,appointment.rescheduled.v1,appointment.cancelled.v1")),
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)

		var payload appointmentPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == 0 || payload.Name == "" || payload.AppointmentTime == "" {
			logger.Error("missing appointment fields", "event_id", meta.EventID)
			return nil
		}

		body := messageBody(meta.EventType, payload)
		notification := storage.Notification{
			AppointmentID: payload.AppointmentID,
			EventType:     meta.EventType,
			Channel:       "sms",
			Recipient:     payload.PhoneNumber,
			Body:          body,
		}

		phone := strings.TrimSpace(payload.PhoneNumber)
		if phone == "" || phone == unknownPhone {
			notification.Status = "skipped"
			notification.Reason = "no phone number on record"
			logger.Info("notification skipped, no phone number",
				"appointment_id", payload.AppointmentID, "event_type", meta.EventType)
		} else if err := smsSender.Send(ctx, phone, body); err != nil {
			notification.Status = "failed"
			notification.Reason = err.Error()
			logger.Error("sms send failed", "err", err, "appointment_id", payload.AppointmentID)
		} else {
			notification.Status = "sent"
			notification.ProviderID = smsSender.ProviderID()
		}

		if err := notificationsRepo.Insert(ctx, notification); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}

		logger.Info("appointment event processed",
			"appointment_id", payload.AppointmentID,
			"event_type", meta.EventType,
			"status", notification.Status)
		return nil
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notify")
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
