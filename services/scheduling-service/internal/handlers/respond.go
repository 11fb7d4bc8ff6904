package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	EmployeeID    string `json:"employee_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toAppointment(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		EmployeeID:    a.EmployeeID,
		StartTime:     a.Start.UTC().Format(time.RFC3339),
		EndTime:       a.End.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		CustomerName:  a.Customer.Name,
		CustomerEmail: a.Customer.Email,
		CustomerPhone: a.Customer.Phone,
	}
	if a.CancelledAt != nil {
		out.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		out.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func toAppointments(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}
	return out
}

type conflictResponse struct {
	Error     string                `json:"error"`
	Count     int                   `json:"count"`
	Conflicts []appointmentResponse `json:"conflicts"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine error kinds to status codes. Conflicts are JSON so callers can see
// which appointments block the change.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduling.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduling.ErrConflict):
		ce, _ := scheduling.AsConflict(err)
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:     ce.Reason,
			Count:     ce.Count(),
			Conflicts: toAppointments(ce.Appointments),
		})
	case errors.Is(err, scheduling.ErrConfiguration):
		logger.Warn("scheduling not configured", "err", err)
		http.Error(w, "scheduling is not configured yet", http.StatusServiceUnavailable)
	default:
		logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeBody(r, v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
