// Package config loads fieldsync settings from an optional YAML file and
// FIELDSYNC_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/roach88/fieldsync/internal/store"
)

// Config holds every runtime setting. CLI flags are applied on top by the
// caller.
type Config struct {
	// DataDir holds the local database file.
	DataDir string `yaml:"data_dir" env:"FIELDSYNC_DATA_DIR" env-default:".fieldsync" env-description:"directory of the local database"`

	// AppName names the database file inside DataDir.
	AppName string `yaml:"app_name" env:"FIELDSYNC_APP_NAME" env-default:"farmer-app-db" env-description:"local database name"`

	// Endpoint is the batch sync URL.
	Endpoint string `yaml:"endpoint" env:"FIELDSYNC_ENDPOINT" env-default:"http://localhost:5000/api/sync" env-description:"remote batch endpoint"`

	// SyncTimeout bounds one batch push.
	SyncTimeout time.Duration `yaml:"sync_timeout" env:"FIELDSYNC_SYNC_TIMEOUT" env-default:"30s" env-description:"bound on one batch push"`

	// ProbeInterval is the connectivity probe period used by watch.
	ProbeInterval time.Duration `yaml:"probe_interval" env:"FIELDSYNC_PROBE_INTERVAL" env-default:"5s" env-description:"connectivity probe period"`

	// BusyTimeout bounds waits on another process's database lock.
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"FIELDSYNC_BUSY_TIMEOUT" env-default:"5s" env-description:"database lock wait"`

	// ListenAddr is where serve binds the development endpoint.
	ListenAddr string `yaml:"listen_addr" env:"FIELDSYNC_LISTEN_ADDR" env-default:":5000" env-description:"development server address"`
}

// Load reads path (YAML) if non-empty, then the environment.
// A missing file named explicitly is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read config from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync_timeout must be positive, got %s", c.SyncTimeout))
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("probe_interval must be positive, got %s", c.ProbeInterval))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("busy_timeout must not be negative, got %s", c.BusyTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DBPath returns the database file selected by DataDir and AppName.
func (c *Config) DBPath() string {
	return store.Path(c.DataDir, c.AppName)
}

// Usage describes every environment variable, for CLI help.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
