package models

import "time"

// Canonical container statuses. Every platform adapter normalizes its
// vendor-specific status vocabulary into this closed set.
const (
	StatusRunning   = "running"
	StatusStopped   = "stopped"
	StatusDeploying = "deploying"
	StatusError     = "error"
	StatusUnknown   = "unknown"
)

// Supported platform types.
const (
	PlatformZeabur = "zeabur"
	PlatformRender = "render"
	PlatformKoyeb  = "koyeb"
	PlatformVercel = "vercel"
)

// Alert channel types.
const (
	ChannelTypeEmail   = "email"
	ChannelTypeWebhook = "webhook"
)

// Watch log actions and results.
const (
	WatchActionCheck   = "check"
	WatchActionRestart = "restart"

	WatchResultOK      = "ok"
	WatchResultSuccess = "success"
	WatchResultError   = "error"
)

// AlertTypeStatusChange is the only alert type currently emitted.
const AlertTypeStatusChange = "status_change"

// Platform represents a configured cloud platform account
type Platform struct {
	ID           int64             `json:"id"`
	UserID       int64             `json:"user_id"`
	PlatformType string            `json:"platform_type"`
	Name         string            `json:"name"`
	APIKey       string            `json:"-"` // stored encrypted, never serialized
	ExtraConfig  map[string]string `json:"extra_config,omitempty"`
	Enabled      bool              `json:"enabled"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Container is the locally mirrored record of a remote workload.
// (PlatformID, RemoteID) is unique; rows whose remote counterpart
// disappears are deleted by the next reconciliation pass.
type Container struct {
	ID         int64                  `json:"id"`
	PlatformID int64                  `json:"platform_id"`
	RemoteID   string                 `json:"remote_id"`
	Name       string                 `json:"name"`
	Status     string                 `json:"status"`
	LastCheck  time.Time              `json:"last_check"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// Joined from the owning platform for display
	PlatformName string `json:"platform_name,omitempty"`
	PlatformType string `json:"platform_type,omitempty"`
}

// Alert records a detected abnormal status transition
type Alert struct {
	ID            int64     `json:"id"`
	ContainerID   int64     `json:"container_id"`
	AlertType     string    `json:"alert_type"`
	Message       string    `json:"message"`
	Notified      bool      `json:"notified"`
	Read          bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
	ContainerName string    `json:"container_name,omitempty"`
}

// AlertChannel is a per-user notification destination
type AlertChannel struct {
	ID      int64             `json:"id"`
	UserID  int64             `json:"user_id"`
	Type    string            `json:"type"` // email, webhook
	Config  map[string]string `json:"config"`
	Enabled bool              `json:"enabled"`
}

// WatchTask is a user-defined scheduled check-and-remediate routine
type WatchTask struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CronExpr  string    `json:"cron_expr"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`

	Containers []Container `json:"containers,omitempty"`
}

// WatchLog is an append-only audit entry for one container in one watch run
type WatchLog struct {
	ID            int64     `json:"id"`
	TaskID        int64     `json:"task_id"`
	ContainerID   int64     `json:"container_id"`
	Action        string    `json:"action"` // check, restart
	Result        string    `json:"result"` // ok, success, error
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	ContainerName string    `json:"container_name,omitempty"`
}

// User is a login account
type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	Email              string    `json:"email,omitempty"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

// Config represents application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
	Security SecurityConfig `yaml:"security"`
	SMTP     SMTPConfig     `yaml:"smtp"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MonitorConfig contains reconciliation loop settings
type MonitorConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// SecurityConfig contains secrets used by the server
type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	SessionSecret string `yaml:"session_secret"`
}

// SMTPConfig contains the outbound mail account for email alerts
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}
