package storage

import (
	"database/sql"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// WatchTarget is a container bound to a watch task together with the
// platform access data a watch run needs to reach it. APIKey is still
// encrypted here; the watcher decrypts it transiently.
type WatchTarget struct {
	ContainerID  int64
	RemoteID     string
	Name         string
	Status       string
	PlatformID   int64
	PlatformType string
	APIKey       string
	ExtraConfig  map[string]string
}

// Watch task operations

// AddWatchTask inserts a watch task
func (db *DB) AddWatchTask(task models.WatchTask) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO watch_tasks (user_id, name, cron_expr, enabled)
		VALUES (?, ?, ?, ?)
	`, task.UserID, task.Name, task.CronExpr, task.Enabled)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetWatchTask returns nil without error when the task does not exist
func (db *DB) GetWatchTask(id int64) (*models.WatchTask, error) {
	return db.getWatchTask("id = ?", id)
}

// GetEnabledWatchTask returns the task only when it exists and is enabled
func (db *DB) GetEnabledWatchTask(id int64) (*models.WatchTask, error) {
	return db.getWatchTask("id = ? AND enabled = 1", id)
}

// GetUserWatchTask returns a task only if it belongs to the user
func (db *DB) GetUserWatchTask(id, userID int64) (*models.WatchTask, error) {
	var task models.WatchTask
	err := db.conn.QueryRow(`
		SELECT id, user_id, name, cron_expr, enabled, created_at
		FROM watch_tasks
		WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&task.ID, &task.UserID, &task.Name, &task.CronExpr,
		&task.Enabled, &task.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (db *DB) getWatchTask(where string, arg interface{}) (*models.WatchTask, error) {
	var task models.WatchTask
	err := db.conn.QueryRow(`
		SELECT id, user_id, name, cron_expr, enabled, created_at
		FROM watch_tasks
		WHERE `+where, arg).Scan(&task.ID, &task.UserID, &task.Name,
		&task.CronExpr, &task.Enabled, &task.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetWatchTasksByUser returns all of a user's tasks with their bound
// containers populated
func (db *DB) GetWatchTasksByUser(userID int64) ([]models.WatchTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, cron_expr, enabled, created_at
		FROM watch_tasks
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.WatchTask
	for rows.Next() {
		var task models.WatchTask
		err := rows.Scan(&task.ID, &task.UserID, &task.Name, &task.CronExpr,
			&task.Enabled, &task.CreatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		containers, err := db.GetWatchTaskContainers(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Containers = containers
	}
	return tasks, nil
}

// GetEnabledWatchTasks returns every enabled task across all users; used
// by the scheduler at startup
func (db *DB) GetEnabledWatchTasks() ([]models.WatchTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, cron_expr, enabled, created_at
		FROM watch_tasks
		WHERE enabled = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.WatchTask
	for rows.Next() {
		var task models.WatchTask
		err := rows.Scan(&task.ID, &task.UserID, &task.Name, &task.CronExpr,
			&task.Enabled, &task.CreatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateWatchTask updates name, cron expression and enabled flag
func (db *DB) UpdateWatchTask(task models.WatchTask) error {
	_, err := db.conn.Exec(`
		UPDATE watch_tasks SET name = ?, cron_expr = ?, enabled = ?
		WHERE id = ?
	`, task.Name, task.CronExpr, task.Enabled, task.ID)
	return err
}

// DeleteWatchTask removes a task and, via cascade, its bindings and logs
func (db *DB) DeleteWatchTask(id int64) error {
	_, err := db.conn.Exec("DELETE FROM watch_tasks WHERE id = ?", id)
	return err
}

// Binding operations

// BindContainer attaches a container to a task if it is owned by the
// task's user; silently skips containers that are not. Returns whether
// the binding was created.
func (db *DB) BindContainer(taskID, containerID, userID int64) (bool, error) {
	var ownedID int64
	err := db.conn.QueryRow(`
		SELECT c.id FROM containers c
		JOIN platforms p ON c.platform_id = p.id
		WHERE c.id = ? AND p.user_id = ?
	`, containerID, userID).Scan(&ownedID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = db.conn.Exec(`
		INSERT OR IGNORE INTO watch_task_containers (task_id, container_id)
		VALUES (?, ?)
	`, taskID, containerID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearTaskContainers removes all bindings of a task
func (db *DB) ClearTaskContainers(taskID int64) error {
	_, err := db.conn.Exec("DELETE FROM watch_task_containers WHERE task_id = ?", taskID)
	return err
}

// GetWatchTaskContainers returns the containers bound to a task with
// platform info for display
func (db *DB) GetWatchTaskContainers(taskID int64) ([]models.Container, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.platform_id, c.remote_id, c.name, c.status, c.last_check, c.metadata,
		       p.name, p.platform_type
		FROM watch_task_containers wtc
		JOIN containers c ON wtc.container_id = c.id
		JOIN platforms p ON c.platform_id = p.id
		WHERE wtc.task_id = ?
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []models.Container
	for rows.Next() {
		var c models.Container
		var name, status sql.NullString
		var lastCheck sql.NullTime
		var metadata sql.NullString
		err := rows.Scan(&c.ID, &c.PlatformID, &c.RemoteID, &name, &status,
			&lastCheck, &metadata, &c.PlatformName, &c.PlatformType)
		if err != nil {
			return nil, err
		}
		c.Name = name.String
		c.Status = status.String
		c.LastCheck = lastCheck.Time
		if err := unmarshalMetadata(metadata, &c.Metadata); err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

// GetWatchTargets returns the containers bound to a task together with
// the platform credentials a watch run needs
func (db *DB) GetWatchTargets(taskID int64) ([]WatchTarget, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.remote_id, c.name, c.status, c.platform_id,
		       p.platform_type, p.api_key, p.extra_config
		FROM watch_task_containers wtc
		JOIN containers c ON wtc.container_id = c.id
		JOIN platforms p ON c.platform_id = p.id
		WHERE wtc.task_id = ?
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []WatchTarget
	for rows.Next() {
		var t WatchTarget
		var name, status sql.NullString
		var extraConfig sql.NullString
		err := rows.Scan(&t.ContainerID, &t.RemoteID, &name, &status,
			&t.PlatformID, &t.PlatformType, &t.APIKey, &extraConfig)
		if err != nil {
			return nil, err
		}
		t.Name = name.String
		t.Status = status.String
		if err := unmarshalExtraConfig(extraConfig, &t.ExtraConfig); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// Watch log operations

// InsertWatchLog appends an audit entry; watch logs are never updated or
// deleted
func (db *DB) InsertWatchLog(entry models.WatchLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO watch_logs (task_id, container_id, action, result, message)
		VALUES (?, ?, ?, ?, ?)
	`, entry.TaskID, entry.ContainerID, entry.Action, entry.Result, entry.Message)
	return err
}

// GetWatchLogs returns a page of a task's audit log, newest first
func (db *DB) GetWatchLogs(taskID int64, limit, offset int) ([]models.WatchLog, int, error) {
	rows, err := db.conn.Query(`
		SELECT wl.id, wl.task_id, wl.container_id, wl.action, wl.result, wl.message, wl.created_at,
		       c.name
		FROM watch_logs wl
		JOIN containers c ON wl.container_id = c.id
		WHERE wl.task_id = ?
		ORDER BY wl.created_at DESC, wl.id DESC
		LIMIT ? OFFSET ?
	`, taskID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []models.WatchLog
	for rows.Next() {
		var entry models.WatchLog
		var message, containerName sql.NullString
		err := rows.Scan(&entry.ID, &entry.TaskID, &entry.ContainerID, &entry.Action,
			&entry.Result, &message, &entry.CreatedAt, &containerName)
		if err != nil {
			return nil, 0, err
		}
		entry.Message = message.String
		entry.ContainerName = containerName.String
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM watch_logs WHERE task_id = ?", taskID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
