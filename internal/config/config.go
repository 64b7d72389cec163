package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines daemon configuration.
type Config struct {
	Data   DataConfig   `yaml:"data"`
	Remote RemoteConfig `yaml:"remote"`
	Log    LogConfig    `yaml:"log"`
}

type DataConfig struct {
	// Dir holds the flat store files (sessions.json, projects.json,
	// kv.json).
	Dir string `yaml:"dir"`
	// DBPath is the sqlite database location. Empty disables the
	// structured backend entirely.
	DBPath string `yaml:"db_path"`
}

type RemoteConfig struct {
	// URL is the cloud API base URL. Empty disables sync.
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// ExternalID identifies this account towards the backend.
	ExternalID string `yaml:"external_id"`
	// SyncInterval is how often settings sync runs; zero disables the
	// periodic pull.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Path routes logs to a rotating file; empty logs to stderr.
	Path string `yaml:"path"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".particle")

	cfg := Config{
		Data: DataConfig{
			Dir:    dataDir,
			DBPath: filepath.Join(dataDir, "particle.db"),
		},
		Remote: RemoteConfig{
			SyncInterval: 15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("PARTICLE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dir := os.Getenv("PARTICLE_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if dbPath, ok := os.LookupEnv("PARTICLE_DB_PATH"); ok {
		cfg.Data.DBPath = dbPath
	}
	if url := os.Getenv("PARTICLE_REMOTE_URL"); url != "" {
		cfg.Remote.URL = url
	}
	if token := os.Getenv("PARTICLE_REMOTE_TOKEN"); token != "" {
		cfg.Remote.Token = token
	}
	if id := os.Getenv("PARTICLE_EXTERNAL_ID"); id != "" {
		cfg.Remote.ExternalID = id
	}
	if intervalStr := os.Getenv("PARTICLE_SYNC_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			// Accept plain seconds too.
			secs, secErr := strconv.Atoi(intervalStr)
			if secErr != nil {
				return Config{}, fmt.Errorf("invalid PARTICLE_SYNC_INTERVAL: %w", err)
			}
			interval = time.Duration(secs) * time.Second
		}
		cfg.Remote.SyncInterval = interval
	}
	if level := os.Getenv("PARTICLE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("PARTICLE_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
