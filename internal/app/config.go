package app

import (
	"errors"
	"fmt"
	"time"
)

// Run modes.
const (
	ModeServe = "serve"
	ModeView  = "view"
	ModeWatch = "watch"
)

// DefaultListen is used when neither the flags nor the pipeline file name
// an address.
const DefaultListen = ":8080"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // hcl file or directory
	DBPath     string
	Listen     string
	Mode       string
	URL        string // server to mirror in watch mode
	Refresh    time.Duration

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeServe
	}
	switch cfg.Mode {
	case ModeServe, ModeView:
		if cfg.ConfigPath == "" {
			return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
		}
		if cfg.DBPath == "" {
			return nil, errors.New("DBPath is a required configuration field and cannot be empty")
		}
	case ModeWatch:
		if cfg.URL == "" {
			return nil, errors.New("URL is required in watch mode")
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Refresh < 0 {
		return nil, errors.New("refresh interval cannot be negative")
	}
	return &cfg, nil
}
