package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// AbsenceChanged is published by the staff directory when leave is added or removed outside
// this service.
type AbsenceChanged struct {
	EmployeeID string     `json:"employee_id"`
	StartDate  model.Date `json:"start_date"`
	EndDate    model.Date `json:"end_date"`
}

// Invalidator drops cached availability for a date range.
type Invalidator interface {
	InvalidateDates(ctx context.Context, from, to model.Date)
}

// AbsenceHandler invalidates every date the changed absence touches.
func AbsenceHandler(inv Invalidator) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt AbsenceChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode absence event: %w", err)
		}
		if evt.StartDate.IsZero() || evt.EndDate.IsZero() {
			return fmt.Errorf("absence event for %q without dates", evt.EmployeeID)
		}
		inv.InvalidateDates(ctx, evt.StartDate, evt.EndDate)
		return nil
	}
}
