package alerter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleetwatch/fleetwatch/internal/alerter/channels"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/storage"
)

// Dispatcher persists alerts and fans them out to the owning user's
// enabled notification channels.
type Dispatcher struct {
	db   *storage.DB
	smtp models.SMTPConfig

	// newChannel is swappable for tests
	newChannel func(models.AlertChannel, models.SMTPConfig) (channels.Channel, error)
}

// New creates a Dispatcher
func New(db *storage.DB, smtp models.SMTPConfig) *Dispatcher {
	return &Dispatcher{
		db:         db,
		smtp:       smtp,
		newChannel: channels.New,
	}
}

// TriggerAlert records an alert and attempts delivery on every enabled
// channel of the user. Channels fail independently; the alert is marked
// notified as soon as one channel accepts it. Deliveries are not retried.
func (d *Dispatcher) TriggerAlert(ctx context.Context, containerID int64, alertType, message string, userID int64) error {
	alertID, err := d.db.InsertAlert(models.Alert{
		ContainerID: containerID,
		AlertType:   alertType,
		Message:     message,
	})
	if err != nil {
		return fmt.Errorf("failed to persist alert: %w", err)
	}

	slog.Warn("alert triggered", "container_id", containerID, "type", alertType, "message", message)

	configs, err := d.db.GetEnabledAlertChannels(userID)
	if err != nil {
		return fmt.Errorf("failed to load alert channels: %w", err)
	}

	notification := channels.Notification{
		AlertID:     alertID,
		ContainerID: containerID,
		AlertType:   alertType,
		Message:     message,
	}

	notified := false
	for _, cfg := range configs {
		ch, err := d.newChannel(cfg, d.smtp)
		if err != nil {
			slog.Error("failed to build alert channel", "channel_id", cfg.ID, "type", cfg.Type, "error", err)
			continue
		}

		if err := ch.Send(ctx, notification); err != nil {
			slog.Error("failed to deliver alert", "channel_id", cfg.ID, "type", cfg.Type, "error", err)
			continue
		}

		if !notified {
			notified = true
			if err := d.db.MarkAlertNotified(alertID); err != nil {
				slog.Error("failed to mark alert notified", "alert_id", alertID, "error", err)
			}
		}
	}

	return nil
}
