package scheduling

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Event types double as Kafka topic names.
const (
	EventAppointmentConfirmed   = "booking.appointment.confirmed.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentReleased    = "booking.appointment.released.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
	EventAppointmentNoShow      = "booking.appointment.no_show.v1"
	EventReviewRequested        = "booking.appointment.review_requested.v1"
	EventReminderDue            = "booking.appointment.reminder_due.v1"
	EventClosureCreated         = "schedule.closure.created.v1"
	EventOverrideCreated        = "schedule.override.created.v1"
	EventAbsenceCreated         = "schedule.absence.created.v1"
	EventBusinessHoursChanged   = "schedule.business_hours.changed.v1"
)

// AppointmentPayload is the notification-facing view of an appointment.
func AppointmentPayload(a model.Appointment) map[string]any {
	return map[string]any{
		"appointment_id": a.ID,
		"service_id":     a.ServiceID,
		"employee_id":    a.EmployeeID,
		"status":         string(a.Status),
		"start_time":     a.Start.UTC().Format(time.RFC3339),
		"end_time":       a.End.UTC().Format(time.RFC3339),
		"customer_name":  a.Customer.Name,
		"customer_email": a.Customer.Email,
		"customer_phone": a.Customer.Phone,
	}
}

func appointmentEvent(eventType string, a model.Appointment, extra map[string]any) Event {
	payload := AppointmentPayload(a)
	for k, v := range extra {
		payload[k] = v
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		Type:          eventType,
		Payload:       payload,
	}
}

func scheduleEvent(eventType, id string, payload map[string]any) Event {
	return Event{
		AggregateType: "schedule",
		AggregateID:   id,
		Type:          eventType,
		Payload:       payload,
	}
}

// ReminderCandidates is the window the reminder worker scans: appointments starting in
// (now+lead-window, now+lead].
func ReminderCandidates(now time.Time, lead, window time.Duration) (time.Time, time.Time) {
	end := now.Add(lead)
	return end.Add(-window), end
}
