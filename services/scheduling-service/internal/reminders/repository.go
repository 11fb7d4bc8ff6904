package reminders

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Repository runs on the querier it is handed; FetchDue locks rows, so call it inside a transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// FetchDue locks confirmed appointments starting in (from, to] that have not been reminded.
func (r *Repository) FetchDue(ctx context.Context, q db.Querier, from, to time.Time, limit int) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, service_id, employee_id, start_time, end_time, status,
			customer_name, customer_email, customer_phone
		FROM appointments
		WHERE status = 'CONFIRMED'
			AND reminder_sent = false
			AND start_time > $1
			AND start_time <= $2
		ORDER BY start_time
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]model.Appointment, 0, limit)
	for rows.Next() {
		var a model.Appointment
		var status string
		if err := rows.Scan(&a.ID, &a.ServiceID, &a.EmployeeID, &a.Start, &a.End, &status,
			&a.Customer.Name, &a.Customer.Email, &a.Customer.Phone); err != nil {
			return nil, err
		}
		a.Status = model.Status(status)
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *Repository) MarkSent(ctx context.Context, q db.Querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true,
			updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
