package reminders

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

func TestReminderWindow(t *testing.T) {
	now := time.Date(2030, time.June, 2, 10, 0, 0, 0, time.UTC)
	from, to := scheduling.ReminderCandidates(now, 24*time.Hour, time.Hour)
	if !from.Equal(time.Date(2030, time.June, 3, 9, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2030, time.June, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %s..%s", from, to)
	}
}

func TestReminderEventPayload(t *testing.T) {
	start := time.Date(2030, time.June, 3, 10, 0, 0, 0, time.UTC)
	evt, err := ReminderEvent(model.Appointment{
		ID:         "appt-1",
		EmployeeID: "emp-a",
		Start:      start,
		End:        start.Add(time.Hour),
		Status:     model.StatusConfirmed,
		Customer:   model.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("ReminderEvent: %v", err)
	}
	if evt.EventType != scheduling.EventReminderDue || evt.AggregateID != "appt-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["remind_at"] != "2030-06-02T10:00:00Z" || payload["customer_email"] != "ada@example.com" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNewWorkerDefaults(t *testing.T) {
	w := NewWorker(nil, NewRepository(), nil, nil, WorkerConfig{})
	if w.interval != time.Minute || w.lead != 24*time.Hour || w.window != time.Hour || w.batchSize != 50 {
		t.Fatalf("unexpected defaults %+v", w)
	}
}
