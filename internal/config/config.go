package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the fields Finch needs to reach a Perch service and
// keep its local state.
type Config struct {
	ServiceURL   string
	DataDir      string
	PollInterval time.Duration
	SyncStep     time.Duration
	SyncMax      time.Duration
}

const (
	defaultConfigPath  = "~/.config/finch/config.toml"
	defaultDataDir     = "~/.local/share/finch"
	defaultServiceURL  = "127.0.0.1:8470"
	defaultPollSeconds = 300
	defaultStepSeconds = 1
	defaultMaxSeconds  = 300
)

// Load locates and parses the finch config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.DataDir = mustExpand(cfg.DataDir)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServiceURL  string `toml:"service_url"`
		DataDir     string `toml:"data_dir"`
		PollSeconds int    `toml:"poll_interval_seconds"`
		StepSeconds int    `toml:"sync_step_seconds"`
		MaxSeconds  int    `toml:"sync_max_seconds"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if url := strings.TrimSpace(raw.ServiceURL); url != "" {
		cfg.ServiceURL = url
	}
	if dir := strings.TrimSpace(raw.DataDir); dir != "" {
		cfg.DataDir = dir
	}
	if raw.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}
	if raw.StepSeconds > 0 {
		cfg.SyncStep = time.Duration(raw.StepSeconds) * time.Second
	}
	if raw.MaxSeconds > 0 {
		cfg.SyncMax = time.Duration(raw.MaxSeconds) * time.Second
	}
	cfg.DataDir = mustExpand(cfg.DataDir)

	return cfg, nil
}

// PhotoDir returns the directory holding cached profile photos.
func (c Config) PhotoDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir + "/photos")
	}
	return filepath.Join(c.DataDir, "photos")
}

func defaults() Config {
	return Config{
		ServiceURL:   defaultServiceURL,
		DataDir:      defaultDataDir,
		PollInterval: defaultPollSeconds * time.Second,
		SyncStep:     defaultStepSeconds * time.Second,
		SyncMax:      defaultMaxSeconds * time.Second,
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
