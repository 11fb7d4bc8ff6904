package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

type Handler struct {
	engine *scheduling.Engine
	logger *slog.Logger
}

func NewHandler(engine *scheduling.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

type RouteOptions struct {
	Auth *Authenticator
	// PublicLimiter, when set, rate limits the anonymous routes.
	PublicLimiter httpx.Middleware
}

func (h *Handler) Register(mux *http.ServeMux, opts RouteOptions) {
	public := []httpx.Middleware{opts.Auth.Optional()}
	if opts.PublicLimiter != nil {
		public = append([]httpx.Middleware{opts.PublicLimiter}, public...)
	}
	staff := opts.Auth.RequireRole(auth.RoleAdmin, auth.RoleStaff)
	admin := opts.Auth.RequireRole(auth.RoleAdmin)
	customer := opts.Auth.RequireRole(auth.RoleCustomer)

	mux.Handle("/api/v1/public/availability", httpx.Chain(http.HandlerFunc(h.Availability), public...))
	mux.Handle("/api/v1/public/appointments", httpx.Chain(http.HandlerFunc(h.Create), public...))
	mux.Handle("/api/v1/public/appointments/cancel", httpx.Chain(http.HandlerFunc(h.Cancel), public...))

	mux.Handle("/api/v1/customer/appointments", customer(http.HandlerFunc(h.CustomerAppointments)))

	mux.Handle("/api/v1/appointments", staff(http.HandlerFunc(h.List)))
	mux.Handle("/api/v1/appointments/reschedule", staff(http.HandlerFunc(h.Reschedule)))
	mux.Handle("/api/v1/appointments/release", staff(http.HandlerFunc(h.Release)))
	mux.Handle("/api/v1/appointments/status", staff(http.HandlerFunc(h.Status)))

	mux.Handle("/api/v1/admin/closures", admin(http.HandlerFunc(h.Closures)))
	mux.Handle("/api/v1/admin/overrides", admin(http.HandlerFunc(h.Overrides)))
	mux.Handle("/api/v1/admin/business-hours", admin(http.HandlerFunc(h.BusinessHours)))
	mux.Handle("/api/v1/admin/settings", admin(http.HandlerFunc(h.Settings)))
	mux.Handle("/api/v1/admin/absences", admin(http.HandlerFunc(h.Absences)))
}

type availabilityResponse struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	date, err := model.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	query := scheduling.AvailabilityQuery{Date: date, ServiceID: strings.TrimSpace(q.Get("service_id"))}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		query.DurationMinutes, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
	}

	times, err := h.engine.GetAvailability(r.Context(), query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Date: date.String(), Times: times})
}

type createRequest struct {
	ServiceID     string `json:"service_id"`
	EmployeeID    string `json:"employee_id"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CreateAppointment(r.Context(), CallerFrom(r.Context()), scheduling.CreateRequest{
		ServiceID:  req.ServiceID,
		EmployeeID: req.EmployeeID,
		Start:      start,
		Customer: model.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointment(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	CustomerEmail string `json:"customer_email"`
}

// Cancel lets a customer cancel their own booking; the email must match the one booked with.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.engine.UpdateStatus(r.Context(), CallerFrom(r.Context()), scheduling.StatusChange{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Status:        model.StatusCancelled,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointment(appt))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	from, err := h.parseInstant(q.Get("from"), false)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := h.parseInstant(q.Get("to"), true)
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.engine.ListAppointments(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointments(appts)})
}

// CustomerAppointments lists the signed-in customer's bookings.
func (h *Handler) CustomerAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	appts, err := h.engine.ListCustomerAppointments(r.Context(), CallerFrom(r.Context()), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointments(appts)})
}

// parseInstant accepts RFC3339 or a bare date in the business timezone. A bare date used as
// an upper bound includes the whole day.
func (h *Handler) parseInstant(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDays(1)
	}
	return d.Midnight(h.engine.Location()), nil
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
	EmployeeID    string `json:"employee_id"`
	ServiceID     string `json:"service_id"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.RescheduleAppointment(r.Context(), scheduling.RescheduleRequest{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		NewStart:      start,
		EmployeeID:    strings.TrimSpace(req.EmployeeID),
		ServiceID:     strings.TrimSpace(req.ServiceID),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointment(appt))
}

type appointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.AppointmentID)
	if err := h.engine.ReleaseAppointment(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": id, "status": string(model.StatusAvailable)})
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.engine.UpdateStatus(r.Context(), CallerFrom(r.Context()), scheduling.StatusChange{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Status:        model.Status(strings.ToUpper(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointment(appt))
}
