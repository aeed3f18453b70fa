// Package config provides configuration loading and structs for the matome server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Cluster   ClusterConfig   `yaml:"cluster"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the item database location. An empty path disables item storage.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // mock, onnx or openai
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	MaxChars   int    `yaml:"max_chars"`
	CacheSize  int    `yaml:"cache_size"`
	// Concurrency is the number of embedding calls in flight; 1 embeds items one at a time.
	Concurrency int          `yaml:"concurrency"`
	OpenAI      OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for OpenAI-compatible embedding endpoints.
type OpenAIConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
}

// FeedsConfig lists the feeds to fetch and how to fetch them.
type FeedsConfig struct {
	URLs []string `yaml:"urls"`
	// ListPath is an optional file with one feed URL per line. It is watched for changes
	// while the server runs and its URLs are added to URLs.
	ListPath       string `yaml:"list_path"`
	TTLSeconds     int    `yaml:"ttl_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	// RetentionHours removes stored items older than this after each fetch; 0 keeps everything.
	RetentionHours int `yaml:"retention_hours"`
}

// ClusterConfig holds clustering and titling settings.
type ClusterConfig struct {
	// Threshold is used when a request does not set one. nil means the built-in default.
	Threshold     *float64 `yaml:"threshold"`
	MaxTitleWords int      `yaml:"max_title_words"`
	Centroid      string   `yaml:"centroid"` // mean or sum
}

// ThresholdOrDefault returns the configured threshold, or def when unset.
func (c *ClusterConfig) ThresholdOrDefault(def float64) float64 {
	if c.Threshold != nil {
		return *c.Threshold
	}
	return def
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.Storage.DatabasePath != "" && cfg.Storage.DatabasePath != ":memory:" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Feeds.ListPath != "" {
		cfg.Feeds.ListPath = expandPath(cfg.Feeds.ListPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
