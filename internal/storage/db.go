package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DB handles database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes schema
func New(dbPath string) (*DB, error) {
	// _busy_timeout=5000: Wait up to 5 seconds for locks
	// _journal_mode=WAL: Enable Write-Ahead Logging for better concurrency
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows multiple readers + 1 writer
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		email TEXT,
		must_change_password BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS platforms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		platform_type TEXT NOT NULL,
		name TEXT NOT NULL,
		api_key TEXT NOT NULL,
		extra_config TEXT,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS containers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform_id INTEGER NOT NULL,
		remote_id TEXT NOT NULL,
		name TEXT,
		status TEXT,
		last_check TIMESTAMP,
		metadata TEXT,
		UNIQUE(platform_id, remote_id),
		FOREIGN KEY (platform_id) REFERENCES platforms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_containers_platform_id ON containers(platform_id);

	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		container_id INTEGER NOT NULL,
		alert_type TEXT,
		message TEXT,
		notified BOOLEAN NOT NULL DEFAULT 0,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (container_id) REFERENCES containers(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_container_id ON alerts(container_id);

	CREATE TABLE IF NOT EXISTS alert_channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		channel_type TEXT NOT NULL,
		config TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS watch_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS watch_task_containers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		container_id INTEGER NOT NULL,
		UNIQUE(task_id, container_id),
		FOREIGN KEY (task_id) REFERENCES watch_tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (container_id) REFERENCES containers(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS watch_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		container_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL,
		message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (task_id) REFERENCES watch_tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_watch_logs_task_id ON watch_logs(task_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Platform operations

// AddPlatform inserts a platform configuration. APIKey must already be
// encrypted by the caller.
func (db *DB) AddPlatform(p models.Platform) (int64, error) {
	extraConfig, err := marshalExtraConfig(p.ExtraConfig)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(`
		INSERT INTO platforms (user_id, platform_type, name, api_key, extra_config, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.UserID, p.PlatformType, p.Name, p.APIKey, extraConfig, p.Enabled)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetEnabledPlatforms returns every enabled platform across all users
func (db *DB) GetEnabledPlatforms() ([]models.Platform, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, platform_type, name, api_key, extra_config, enabled, created_at
		FROM platforms
		WHERE enabled = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPlatforms(rows)
}

// GetPlatformsByUser returns all platforms owned by a user
func (db *DB) GetPlatformsByUser(userID int64) ([]models.Platform, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, platform_type, name, api_key, extra_config, enabled, created_at
		FROM platforms
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPlatforms(rows)
}

// GetEnabledPlatformsByUser returns a user's enabled platforms
func (db *DB) GetEnabledPlatformsByUser(userID int64) ([]models.Platform, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, platform_type, name, api_key, extra_config, enabled, created_at
		FROM platforms
		WHERE user_id = ? AND enabled = 1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPlatforms(rows)
}

// GetUserPlatform returns a platform only if it belongs to the user.
// Returns nil without error when not found.
func (db *DB) GetUserPlatform(id, userID int64) (*models.Platform, error) {
	row := db.conn.QueryRow(`
		SELECT id, user_id, platform_type, name, api_key, extra_config, enabled, created_at
		FROM platforms
		WHERE id = ? AND user_id = ?
	`, id, userID)

	p, err := scanPlatform(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePlatform updates name, api_key, enabled and extra_config
func (db *DB) UpdatePlatform(p models.Platform) error {
	extraConfig, err := marshalExtraConfig(p.ExtraConfig)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		UPDATE platforms SET name = ?, api_key = ?, enabled = ?, extra_config = ?
		WHERE id = ?
	`, p.Name, p.APIKey, p.Enabled, extraConfig, p.ID)
	return err
}

// DeletePlatform removes a platform and, via cascade, its containers
func (db *DB) DeletePlatform(id int64) error {
	_, err := db.conn.Exec("DELETE FROM platforms WHERE id = ?", id)
	return err
}

// Container operations

// GetContainerByRemoteID looks up the local mirror of a remote workload.
// Returns nil without error when not found.
func (db *DB) GetContainerByRemoteID(platformID int64, remoteID string) (*models.Container, error) {
	row := db.conn.QueryRow(`
		SELECT id, platform_id, remote_id, name, status, last_check, metadata
		FROM containers
		WHERE platform_id = ? AND remote_id = ?
	`, platformID, remoteID)

	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// InsertContainer records a newly discovered remote workload
func (db *DB) InsertContainer(c models.Container) (int64, error) {
	metadata, err := marshalMetadata(c.Metadata)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(`
		INSERT INTO containers (platform_id, remote_id, name, status, last_check, metadata)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	`, c.PlatformID, c.RemoteID, c.Name, c.Status, metadata)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateContainerObserved refreshes the fields a reconciliation pass
// observes: name, status, metadata and the last-check timestamp.
func (db *DB) UpdateContainerObserved(id int64, name, status string, metadata map[string]interface{}) error {
	data, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		UPDATE containers SET name = ?, status = ?, last_check = CURRENT_TIMESTAMP, metadata = ?
		WHERE id = ?
	`, name, status, data, id)
	return err
}

// UpdateContainerStatus persists a freshly observed status
func (db *DB) UpdateContainerStatus(id int64, status string) error {
	_, err := db.conn.Exec(`
		UPDATE containers SET status = ?, last_check = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, id)
	return err
}

// DeleteContainer removes a container record
func (db *DB) DeleteContainer(id int64) error {
	_, err := db.conn.Exec("DELETE FROM containers WHERE id = ?", id)
	return err
}

// GetContainersByPlatform returns all mirrored containers of one platform
func (db *DB) GetContainersByPlatform(platformID int64) ([]models.Container, error) {
	rows, err := db.conn.Query(`
		SELECT id, platform_id, remote_id, name, status, last_check, metadata
		FROM containers
		WHERE platform_id = ?
	`, platformID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []models.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		containers = append(containers, *c)
	}
	return containers, rows.Err()
}

// GetContainersByUser returns all containers owned by a user, newest
// checks first, with platform info joined in for display
func (db *DB) GetContainersByUser(userID int64) ([]models.Container, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.platform_id, c.remote_id, c.name, c.status, c.last_check, c.metadata,
		       p.name, p.platform_type
		FROM containers c
		JOIN platforms p ON c.platform_id = p.id
		WHERE p.user_id = ?
		ORDER BY c.last_check DESC
	`, userID)
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

// GetUserContainer returns a container together with its owning platform,
// only if the platform belongs to the user. Returns nils without error
// when not found.
func (db *DB) GetUserContainer(id, userID int64) (*models.Container, *models.Platform, error) {
	row := db.conn.QueryRow(`
		SELECT c.id, c.platform_id, c.remote_id, c.name, c.status, c.last_check, c.metadata,
		       p.id, p.user_id, p.platform_type, p.name, p.api_key, p.extra_config, p.enabled, p.created_at
		FROM containers c
		JOIN platforms p ON c.platform_id = p.id
		WHERE c.id = ? AND p.user_id = ?
	`, id, userID)

	var c models.Container
	var p models.Platform
	var cname, status sql.NullString
	var lastCheck sql.NullTime
	var metadata, extraConfig sql.NullString
	err := row.Scan(&c.ID, &c.PlatformID, &c.RemoteID, &cname, &status, &lastCheck, &metadata,
		&p.ID, &p.UserID, &p.PlatformType, &p.Name, &p.APIKey, &extraConfig, &p.Enabled, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	c.Name = cname.String
	c.Status = status.String
	c.LastCheck = lastCheck.Time
	c.PlatformName = p.Name
	c.PlatformType = p.PlatformType
	if err := unmarshalMetadata(metadata, &c.Metadata); err != nil {
		return nil, nil, err
	}
	if err := unmarshalExtraConfig(extraConfig, &p.ExtraConfig); err != nil {
		return nil, nil, err
	}
	return &c, &p, nil
}

// scan helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlatform(row rowScanner) (*models.Platform, error) {
	var p models.Platform
	var extraConfig sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.PlatformType, &p.Name, &p.APIKey,
		&extraConfig, &p.Enabled, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalExtraConfig(extraConfig, &p.ExtraConfig); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPlatforms(rows *sql.Rows) ([]models.Platform, error) {
	var platforms []models.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, *p)
	}
	return platforms, rows.Err()
}

func scanContainer(row rowScanner) (*models.Container, error) {
	var c models.Container
	var name, status sql.NullString
	var lastCheck sql.NullTime
	var metadata sql.NullString
	err := row.Scan(&c.ID, &c.PlatformID, &c.RemoteID, &name, &status, &lastCheck, &metadata)
	if err != nil {
		return nil, err
	}
	c.Name = name.String
	c.Status = status.String
	c.LastCheck = lastCheck.Time
	if err := unmarshalMetadata(metadata, &c.Metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw sql.NullString, out *map[string]interface{}) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}

func marshalExtraConfig(extra map[string]string) (sql.NullString, error) {
	if len(extra) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal extra config: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalExtraConfig(raw sql.NullString, out *map[string]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal extra config: %w", err)
	}
	return nil
}
