package scheduling

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Settings returns the current business settings.
func (e *Engine) Settings(ctx context.Context) (model.Settings, error) {
	return e.store.Settings(ctx)
}

// SetDefaultService makes serviceID the service booked and offered when a request names
// none. The service must exist and be active. Cached availability is keyed by duration, so
// nothing is invalidated.
func (e *Engine) SetDefaultService(ctx context.Context, serviceID string) (model.Settings, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return model.Settings{}, validationf("default_service_id is required")
	}
	var saved model.Settings
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := e.bookableService(ctx, tx, serviceID, false); err != nil {
			return err
		}
		s, err := tx.SaveDefaultService(ctx, serviceID)
		if err != nil {
			return err
		}
		saved = s
		return nil
	})
	if err != nil {
		return model.Settings{}, err
	}
	e.logger.Info("default service changed", "service_id", serviceID, "version", saved.Version)
	return saved, nil
}
