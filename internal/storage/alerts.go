package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Alert operations

// InsertAlert persists a new alert with notified=false
func (db *DB) InsertAlert(alert models.Alert) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO alerts (container_id, alert_type, message)
		VALUES (?, ?, ?)
	`, alert.ContainerID, alert.AlertType, alert.Message)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// MarkAlertNotified flips the notified flag once a channel accepted the
// notification
func (db *DB) MarkAlertNotified(id int64) error {
	_, err := db.conn.Exec("UPDATE alerts SET notified = 1 WHERE id = ?", id)
	return err
}

// MarkAlertRead marks an alert as read, but only when it belongs to one of
// the user's containers. Returns false when no such alert exists.
func (db *DB) MarkAlertRead(id, userID int64) (bool, error) {
	result, err := db.conn.Exec(`
		UPDATE alerts SET is_read = 1
		WHERE id = ? AND container_id IN (
			SELECT c.id FROM containers c
			JOIN platforms p ON c.platform_id = p.id
			WHERE p.user_id = ?
		)
	`, id, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetAlertsByUser returns a page of the user's alerts, newest first
func (db *DB) GetAlertsByUser(userID int64, limit, offset int) ([]models.Alert, int, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.container_id, a.alert_type, a.message, a.notified, a.is_read,
		       a.created_at, c.name
		FROM alerts a
		JOIN containers c ON a.container_id = c.id
		JOIN platforms p ON c.platform_id = p.id
		WHERE p.user_id = ?
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var containerName sql.NullString
		err := rows.Scan(&a.ID, &a.ContainerID, &a.AlertType, &a.Message,
			&a.Notified, &a.Read, &a.CreatedAt, &containerName)
		if err != nil {
			return nil, 0, err
		}
		a.ContainerName = containerName.String
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM alerts a
		JOIN containers c ON a.container_id = c.id
		JOIN platforms p ON c.platform_id = p.id
		WHERE p.user_id = ?
	`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// Alert channel operations

// AddAlertChannel inserts a notification channel for a user
func (db *DB) AddAlertChannel(ch models.AlertChannel) (int64, error) {
	config, err := json.Marshal(ch.Config)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal channel config: %w", err)
	}

	result, err := db.conn.Exec(`
		INSERT INTO alert_channels (user_id, channel_type, config, enabled)
		VALUES (?, ?, ?, ?)
	`, ch.UserID, ch.Type, string(config), ch.Enabled)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAlertChannelsByUser returns all channels configured by a user
func (db *DB) GetAlertChannelsByUser(userID int64) ([]models.AlertChannel, error) {
	return db.queryAlertChannels(`
		SELECT id, user_id, channel_type, config, enabled
		FROM alert_channels
		WHERE user_id = ?
	`, userID)
}

// GetEnabledAlertChannels returns the user's enabled channels, the fan-out
// set of the alert dispatcher
func (db *DB) GetEnabledAlertChannels(userID int64) ([]models.AlertChannel, error) {
	return db.queryAlertChannels(`
		SELECT id, user_id, channel_type, config, enabled
		FROM alert_channels
		WHERE user_id = ? AND enabled = 1
	`, userID)
}

// GetUserAlertChannel returns a channel only if it belongs to the user.
// Returns nil without error when not found.
func (db *DB) GetUserAlertChannel(id, userID int64) (*models.AlertChannel, error) {
	channels, err := db.queryAlertChannels(`
		SELECT id, user_id, channel_type, config, enabled
		FROM alert_channels
		WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}
	return &channels[0], nil
}

// UpdateAlertChannel updates a channel's config and enabled flag
func (db *DB) UpdateAlertChannel(ch models.AlertChannel) error {
	config, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal channel config: %w", err)
	}

	_, err = db.conn.Exec(`
		UPDATE alert_channels SET config = ?, enabled = ?
		WHERE id = ?
	`, string(config), ch.Enabled, ch.ID)
	return err
}

// DeleteAlertChannel removes a channel
func (db *DB) DeleteAlertChannel(id int64) error {
	_, err := db.conn.Exec("DELETE FROM alert_channels WHERE id = ?", id)
	return err
}

func (db *DB) queryAlertChannels(query string, args ...interface{}) ([]models.AlertChannel, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.AlertChannel
	for rows.Next() {
		var ch models.AlertChannel
		var config string
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.Type, &config, &ch.Enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(config), &ch.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channel config: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
