package config

import (
	"fmt"
	"os"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file
func Load(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads config from file or returns default config
func LoadOrDefault(path string) *models.Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &models.Config{}
		applyDefaults(cfg)
	}
	return cfg
}

func applyDefaults(cfg *models.Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/fleetwatch.db"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Monitor.IntervalSeconds == 0 {
		cfg.Monitor.IntervalSeconds = 300 // 5 minutes
	}

	if cfg.Monitor.TimeoutSeconds == 0 {
		cfg.Monitor.TimeoutSeconds = 30
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 20
	}

	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}

	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}

	// Secrets may come from the environment instead of the file
	if cfg.Security.EncryptionKey == "" {
		cfg.Security.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	}
	if cfg.Security.SessionSecret == "" {
		cfg.Security.SessionSecret = os.Getenv("SESSION_SECRET")
	}
}
