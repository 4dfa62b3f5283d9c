// Package dashboard is the operator-facing REST API: appointment CRUD,
// export/import, manual reminder calls and the call log.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/voicedesk/libs/auth"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/telephony"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

// Store is the appointment read/delete surface the dashboard needs.
type Store interface {
	ListAll(ctx context.Context) ([]model.Appointment, error)
	SearchByName(ctx context.Context, name string) ([]model.Appointment, error)
	SearchByDate(ctx context.Context, fragment string) ([]model.Appointment, error)
	GetByID(ctx context.Context, id int64) (model.Appointment, error)
	Delete(ctx context.Context, id int64) error
}

// Booker creates appointments (manual entry and import).
type Booker interface {
	Book(ctx context.Context, name, appointmentTime, notes, phone, bookingKey string) (model.Appointment, error)
}

// Reminder places an operator-triggered reminder call.
type Reminder interface {
	Remind(ctx context.Context, appt model.Appointment) error
}

// CallLog lists recent provider calls.
type CallLog interface {
	RecentCalls(ctx context.Context, limit int) ([]telephony.Call, error)
}

type Handler struct {
	store    Store
	booker   Booker
	reminder Reminder
	calls    CallLog
	logger   *slog.Logger

	adminUser     string
	adminPassHash string
	jwtSecret     string
	tokenTTL      time.Duration
	notFound      func(error) bool
	now           func() time.Time
}

type Config struct {
	AdminUser     string
	AdminPassHash string // bcrypt
	JWTSecret     string
	TokenTTL      time.Duration
	// IsNotFound distinguishes missing rows from storage failures.
	IsNotFound func(error) bool
}

func New(store Store, booker Booker, reminder Reminder, calls CallLog, logger *slog.Logger, cfg Config) *Handler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.IsNotFound == nil {
		cfg.IsNotFound = func(error) bool { return false }
	}
	return &Handler{
		store:         store,
		booker:        booker,
		reminder:      reminder,
		calls:         calls,
		logger:        logger,
		adminUser:     cfg.AdminUser,
		adminPassHash: cfg.AdminPassHash,
		jwtSecret:     cfg.JWTSecret,
		tokenTTL:      cfg.TokenTTL,
		notFound:      cfg.IsNotFound,
		now:           time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/login", h.Login)
	mux.Handle("GET /api/v1/appointments", h.requireAuth(http.HandlerFunc(h.ListAppointments)))
	mux.Handle("POST /api/v1/appointments", h.requireAuth(http.HandlerFunc(h.CreateAppointment)))
	mux.Handle("GET /api/v1/appointments/export", h.requireAuth(http.HandlerFunc(h.Export)))
	mux.Handle("POST /api/v1/appointments/import", h.requireAuth(http.HandlerFunc(h.Import)))
	mux.Handle("GET /api/v1/appointments/{id}", h.requireAuth(http.HandlerFunc(h.GetAppointment)))
	mux.Handle("DELETE /api/v1/appointments/{id}", h.requireAuth(http.HandlerFunc(h.DeleteAppointment)))
	mux.Handle("POST /api/v1/appointments/{id}/call", h.requireAuth(http.HandlerFunc(h.TriggerCall)))
	mux.Handle("GET /api/v1/calls/recent", h.requireAuth(http.HandlerFunc(h.RecentCalls)))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if req.Username != h.adminUser ||
		bcrypt.CompareHashAndPassword([]byte(h.adminPassHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := h.now()
	exp := now.Add(h.tokenTTL)
	token, err := auth.SignHS256(auth.Claims{
		Sub:  req.Username,
		Role: "admin",
		Iat:  now.Unix(),
		Exp:  exp.Unix(),
	}, h.jwtSecret)
	if err != nil {
		h.logger.Error("token sign failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.Unix()})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, h.jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Role != "admin" && claims.Role != "operator" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// appointmentView decorates an appointment with the resolved next occurrence
// of its schedule string, when parseable.
type appointmentView struct {
	model.Appointment
	ResolvedTime string  `json:"resolved_time,omitempty"`
	HoursUntil   float64 `json:"hours_until,omitempty"`
}

func (h *Handler) view(appt model.Appointment) appointmentView {
	v := appointmentView{Appointment: appt}
	if at, err := timewindow.NextOccurrence(appt.AppointmentTime, h.now()); err == nil {
		v.ResolvedTime = at.Format(time.RFC3339)
		v.HoursUntil = at.Sub(h.now()).Hours()
	}
	return v
}

func (h *Handler) views(appts []model.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, appt := range appts {
		out = append(out, h.view(appt))
	}
	return out
}

// ListAppointments supports ?name=, ?date= and ?id= filters; without a
// filter it returns everything.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if rawID := q.Get("id"); rawID != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		appt, err := h.store.GetByID(r.Context(), id)
		if err != nil {
			h.storageError(w, err, "appointment lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, h.view(appt))
		return
	}

	var (
		appts []model.Appointment
		err   error
	)
	switch {
	case q.Get("name") != "":
		appts, err = h.store.SearchByName(r.Context(), q.Get("name"))
	case q.Get("date") != "":
		appts, err = h.store.SearchByDate(r.Context(), q.Get("date"))
	default:
		appts, err = h.store.ListAll(r.Context())
	}
	if err != nil {
		h.storageError(w, err, "appointment list failed")
		return
	}
	writeJSON(w, http.StatusOK, h.views(appts))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	appt, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.storageError(w, err, "appointment lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, h.view(appt))
}

type createRequest struct {
	Name            string `json:"name"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes"`
	PhoneNumber     string `json:"phone_number"`
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)
	if req.Name == "" || req.AppointmentTime == "" {
		http.Error(w, "name and appointment_time are required", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.Book(r.Context(), req.Name, req.AppointmentTime, req.Notes, req.PhoneNumber, "")
	if err != nil {
		h.storageError(w, err, "appointment create failed")
		return
	}
	writeJSON(w, http.StatusCreated, h.view(appt))
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storageError(w, err, "appointment delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export returns the raw appointment rows, suitable for re-import.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	appts, err := h.store.ListAll(r.Context())
	if err != nil {
		h.storageError(w, err, "export failed")
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.json"`)
	writeJSON(w, http.StatusOK, appts)
}

type importResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import creates appointments from an exported JSON array. Rows that fail
// validation are skipped, not fatal; re-imports dedupe on name and time.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var rows []createRequest
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var res importResult
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		at := strings.TrimSpace(row.AppointmentTime)
		if name == "" || at == "" {
			res.Skipped++
			continue
		}
		key := "import|" + name + "|" + at
		if _, err := h.booker.Book(r.Context(), name, at, row.Notes, row.PhoneNumber, key); err != nil {
			h.logger.Error("import row failed", "name", name, "err", err)
			res.Skipped++
			continue
		}
		res.Imported++
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) TriggerCall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	appt, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.storageError(w, err, "appointment lookup failed")
		return
	}
	if appt.PhoneNumber == "" || appt.PhoneNumber == model.UnknownPhone {
		http.Error(w, "appointment has no phone number", http.StatusBadRequest)
		return
	}
	if err := h.reminder.Remind(r.Context(), appt); err != nil {
		h.logger.Error("manual reminder failed", "appointment_id", id, "err", err)
		http.Error(w, "failed to initiate call", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Reminder call initiated"})
}

func (h *Handler) RecentCalls(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	calls, err := h.calls.RecentCalls(r.Context(), limit)
	if err != nil {
		h.logger.Error("call log fetch failed", "err", err)
		http.Error(w, "call log unavailable", http.StatusBadGateway)
		return
	}
	if calls == nil {
		calls = []telephony.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *Handler) storageError(w http.ResponseWriter, err error, msg string) {
	if h.notFound(err) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	h.logger.Error(msg, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
