package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

// Worker emits one reminder_due event per confirmed appointment as it enters the reminder
// window. Rescheduling resets the sent flag so the new time is reminded again.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	lead      time.Duration
	window    time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	Lead      time.Duration
	Window    time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		lead:      cfg.Lead,
		window:    cfg.Window,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Run sweeps once at start, then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.processBatch(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			w.logger.Error("reminder batch failed", "err", err)
		case n > 0:
			w.logger.Info("reminders queued", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) (int, error) {
	from, to := scheduling.ReminderCandidates(w.now(), w.lead, w.window)
	var queued int
	err := w.pool.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		due, err := w.repo.FetchDue(ctx, tx, from, to, w.batchSize)
		if err != nil || len(due) == 0 {
			return err
		}

		ids := make([]string, 0, len(due))
		for _, a := range due {
			evt, err := ReminderEvent(a, w.lead)
			if err != nil {
				w.logger.Warn("reminder payload failed", "appointment_id", a.ID, "err", err)
				continue
			}
			if err := w.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		queued = len(ids)
		return w.repo.MarkSent(ctx, tx, ids)
	})
	return queued, err
}

func ReminderEvent(a model.Appointment, lead time.Duration) (outbox.Event, error) {
	payload := scheduling.AppointmentPayload(a)
	payload["remind_at"] = a.Start.Add(-lead).UTC().Format(time.RFC3339)
	return outbox.NewEvent("appointment", a.ID, scheduling.EventReminderDue, payload)
}
