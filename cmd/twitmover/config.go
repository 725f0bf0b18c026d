package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fd0/twitmover/mover"
	"gopkg.in/yaml.v2"
)

// Config holds the settings which can be read from a config file.
type Config struct {
	WatchDir       string        `yaml:"watch_dir"`
	DestDir        string        `yaml:"dest_dir"`
	Prefix         string        `yaml:"prefix"`
	StabilityDelay time.Duration `yaml:"stability_delay"`
	Backend        string        `yaml:"backend"`

	Pushover struct {
		Token      string `yaml:"token"`
		Recipients string `yaml:"recipients"`
	} `yaml:"pushover"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	watchDir := "Downloads"
	if home, err := os.UserHomeDir(); err == nil {
		watchDir = filepath.Join(home, "Downloads")
	}

	return Config{
		WatchDir:       watchDir,
		DestDir:        "twit",
		Prefix:         "twit_",
		StabilityDelay: mover.DefaultStabilityDelay,
		Backend:        "notify",
	}
}

// LoadConfig reads filename and merges the values found there into cfg.
func LoadConfig(filename string, cfg *Config) error {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config failed: %w", err)
	}

	err = yaml.UnmarshalStrict(buf, cfg)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	return nil
}

// Validate checks cfg and returns the absolute watch and destination
// directories. A relative destination is placed inside the watch dir.
func (cfg Config) Validate() (watchDir, destDir string, err error) {
	if cfg.WatchDir == "" {
		return "", "", errors.New("watch dir is empty")
	}

	if cfg.Prefix == "" {
		return "", "", errors.New("prefix is empty")
	}

	if cfg.StabilityDelay < 0 {
		return "", "", fmt.Errorf("stability delay %v is negative", cfg.StabilityDelay)
	}

	switch cfg.Backend {
	case "notify", "fsnotify":
	default:
		return "", "", fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	watchDir, err = filepath.Abs(cfg.WatchDir)
	if err != nil {
		return "", "", fmt.Errorf("unable to find absolute dir: %w", err)
	}

	destDir = cfg.DestDir
	if destDir == "" {
		return "", "", errors.New("dest dir is empty")
	}

	if !filepath.IsAbs(destDir) {
		destDir = filepath.Join(watchDir, destDir)
	}

	return watchDir, filepath.Clean(destDir), nil
}
