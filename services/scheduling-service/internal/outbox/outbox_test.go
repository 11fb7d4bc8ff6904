package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "a1", "booking.appointment.confirmed.v1", map[string]any{"employee_id": "emp-a"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got["employee_id"] != "emp-a" {
		t.Fatalf("unexpected payload %v", got)
	}
	if _, err := NewEvent("appointment", "a1", "x", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	msg := Message(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "booking.appointment.cancelled.v1",
		Payload:     []byte(`{}`),
		Traceparent: traceparent,
	})
	if msg.Topic != "booking.appointment.cancelled.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != msg.Topic {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != traceparent {
		t.Fatalf("traceparent header = %q", got)
	}
}
