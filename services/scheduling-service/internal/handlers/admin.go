package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

type closureResponse struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toClosure(c model.Closure) closureResponse {
	out := closureResponse{ID: c.ID, Date: c.Date.String(), Reason: c.Reason}
	if !c.CreatedAt.IsZero() {
		out.CreatedAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

type overrideResponse struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
	OpenTime  string `json:"open_time,omitempty"`
	CloseTime string `json:"close_time,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toOverride(o model.DateOverride) overrideResponse {
	out := overrideResponse{ID: o.ID, Date: o.Date.String(), Reason: o.Reason}
	if o.HasHours() {
		out.OpenTime, out.CloseTime = o.Open.String(), o.Close.String()
	}
	if !o.CreatedAt.IsZero() {
		out.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

type absenceResponse struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Reason     string `json:"reason"`
}

func toAbsence(a model.Absence) absenceResponse {
	return absenceResponse{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		StartDate:  a.StartDate.String(),
		EndDate:    a.EndDate.String(),
		Reason:     a.Reason,
	}
}

// dateRange reads optional from/to dates; missing bounds are unbounded.
func dateRange(r *http.Request) (model.Date, model.Date, bool) {
	var from, to model.Date
	var err error
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		if from, err = model.ParseDate(raw); err != nil {
			return from, to, false
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if to, err = model.ParseDate(raw); err != nil {
			return from, to, false
		}
	}
	return from, to, true
}

func (h *Handler) requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

type closureRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func (h *Handler) Closures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		from, to, ok := dateRange(r)
		if !ok {
			http.Error(w, "invalid date range", http.StatusBadRequest)
			return
		}
		closures, err := h.engine.ListClosures(ctx, from, to)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		out := make([]closureResponse, 0, len(closures))
		for _, c := range closures {
			out = append(out, toClosure(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"closures": out})

	case http.MethodPost:
		var req closureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := model.ParseDate(strings.TrimSpace(req.Date))
		if err != nil {
			http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		closure, err := h.engine.ProposeClosure(ctx, scheduling.ClosureRequest{Date: date, Reason: req.Reason})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toClosure(closure))

	case http.MethodDelete:
		id, ok := h.requireID(w, r)
		if !ok {
			return
		}
		if err := h.engine.DeleteClosure(ctx, id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type overrideRequest struct {
	Date      string `json:"date"`
	Reason    string `json:"reason"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

func parseOptionalClock(raw string) (*model.ClockTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	c, err := model.ParseClock(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *Handler) Overrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		from, to, ok := dateRange(r)
		if !ok {
			http.Error(w, "invalid date range", http.StatusBadRequest)
			return
		}
		overrides, err := h.engine.ListOverrides(ctx, from, to)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		out := make([]overrideResponse, 0, len(overrides))
		for _, o := range overrides {
			out = append(out, toOverride(o))
		}
		writeJSON(w, http.StatusOK, map[string]any{"overrides": out})

	case http.MethodPost:
		var req overrideRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := model.ParseDate(strings.TrimSpace(req.Date))
		if err != nil {
			http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		opens, err := parseOptionalClock(req.OpenTime)
		if err != nil {
			http.Error(w, "invalid open_time (expected HH:MM)", http.StatusBadRequest)
			return
		}
		closes, err := parseOptionalClock(req.CloseTime)
		if err != nil {
			http.Error(w, "invalid close_time (expected HH:MM)", http.StatusBadRequest)
			return
		}
		override, err := h.engine.ProposeOverride(ctx, scheduling.OverrideRequest{
			Date:   date,
			Reason: req.Reason,
			Open:   opens,
			Close:  closes,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOverride(override))

	case http.MethodDelete:
		id, ok := h.requireID(w, r)
		if !ok {
			return
		}
		if err := h.engine.DeleteOverride(ctx, id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type settingsResponse struct {
	Version          int64               `json:"version"`
	DefaultServiceID string              `json:"default_service_id,omitempty"`
	Hours            model.BusinessHours `json:"hours"`
	UpdatedAt        string              `json:"updated_at"`
}

func toSettings(s model.Settings) settingsResponse {
	return settingsResponse{
		Version:          s.Version,
		DefaultServiceID: s.DefaultServiceID,
		Hours:            s.Hours,
		UpdatedAt:        s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type settingsRequest struct {
	DefaultServiceID string `json:"default_service_id"`
}

// Settings reads the business settings (GET) or changes the default service (PUT).
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	var (
		settings model.Settings
		err      error
	)
	switch r.Method {
	case http.MethodGet:
		settings, err = h.engine.Settings(r.Context())
	case http.MethodPut:
		var req settingsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		settings, err = h.engine.SetDefaultService(r.Context(), req.DefaultServiceID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettings(settings))
}

// BusinessHours replaces the weekly hours. The body maps weekday names to {"open","close"}
// or null for a closed day.
func (h *Handler) BusinessHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var hours model.BusinessHours
	if err := decodeBody(r, &hours); err != nil {
		http.Error(w, "invalid business hours: "+err.Error(), http.StatusBadRequest)
		return
	}
	settings, err := h.engine.ProposeBusinessHours(r.Context(), hours)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettings(settings))
}

type absenceRequest struct {
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Reason     string `json:"reason"`
}

func (h *Handler) Absences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		absences, err := h.engine.ListAbsences(ctx, strings.TrimSpace(r.URL.Query().Get("employee_id")))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		out := make([]absenceResponse, 0, len(absences))
		for _, a := range absences {
			out = append(out, toAbsence(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"absences": out})

	case http.MethodPost:
		var req absenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, err := model.ParseDate(strings.TrimSpace(req.StartDate))
		if err != nil {
			http.Error(w, "invalid start_date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		end, err := model.ParseDate(strings.TrimSpace(req.EndDate))
		if err != nil {
			http.Error(w, "invalid end_date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		absence, err := h.engine.ProposeAbsence(ctx, scheduling.AbsenceRequest{
			EmployeeID: req.EmployeeID,
			StartDate:  start,
			EndDate:    end,
			Reason:     req.Reason,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAbsence(absence))

	case http.MethodDelete:
		id, ok := h.requireID(w, r)
		if !ok {
			return
		}
		if err := h.engine.DeleteAbsence(ctx, id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
