// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/mirror-pond/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Pond            PondConfig            `yaml:"pond"`
	Ocean           OceanConfig           `yaml:"ocean"`
	LLM             LLMConfig             `yaml:"llm"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	ConversationLog ConversationLogConfig `yaml:"conversation_log"`
}

// ServerConfig controls the listeners.
type ServerConfig struct {
	Port        string   `yaml:"port"`
	GRPCPort    string   `yaml:"grpc_port"` // empty disables the gRPC health server
	CORSOrigins []string `yaml:"cors_allowed_origins"`
}

// PondConfig controls identity and memory persistence.
type PondConfig struct {
	Mode           string `yaml:"mode"` // local or ocean
	MemoryBackend  string `yaml:"memory_backend"`
	MemoryFile     string `yaml:"memory_file"`
	MemoryDB       string `yaml:"memory_db"`
	IdentityFile   string `yaml:"identity_file"`
	IdentityStrict bool   `yaml:"identity_strict"`
}

// OceanConfig points at the remote relay and the depth aggregator.
type OceanConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	DepthEndpoint string        `yaml:"depth_endpoint"`
	DepthAPIKey   string        `yaml:"depth_api_key"`
	DepthTimeout  time.Duration `yaml:"depth_timeout"`
}

// LLMConfig selects the local model server.
type LLMConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds asks per traveler. Requests <= 0 disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// ConversationLogConfig controls the NDJSON conversation journal.
type ConversationLogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "7777",
			GRPCPort:    "7778",
			CORSOrigins: []string{"*"},
		},
		Pond: PondConfig{
			Mode:          "local",
			MemoryBackend: store.BackendJSON,
			MemoryFile:    "pond_memory.json",
			MemoryDB:      "pond_memory.db",
			IdentityFile:  "pond_identity.json",
		},
		Ocean: OceanConfig{
			Timeout:      40 * time.Second,
			DepthTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "http://127.0.0.1:8080/v1",
			Model:    "tobyworld-mirror",
			Timeout:  120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 30,
			Window:   time.Minute,
		},
		ConversationLog: ConversationLogConfig{
			Dir:       "./data/logs/conversations",
			QueueSize: 256,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by POND_CONFIG_FILE, and environment variables, in that order of
// precedence (environment wins).
func Load() (*Config, error) {
	cfg := Defaults()
	if path := getEnv("POND_CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.GRPCPort = getEnv("GRPC_PORT", c.Server.GRPCPort)
	c.Server.CORSOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.Server.CORSOrigins)

	c.Pond.Mode = strings.ToLower(getEnv("POND_MODE", c.Pond.Mode))
	c.Pond.MemoryBackend = strings.ToLower(getEnv("POND_MEMORY_BACKEND", c.Pond.MemoryBackend))
	c.Pond.MemoryFile = getEnv("POND_MEMORY_FILE", c.Pond.MemoryFile)
	c.Pond.MemoryDB = getEnv("POND_MEMORY_DB", c.Pond.MemoryDB)
	c.Pond.IdentityFile = getEnv("POND_IDENTITY_FILE", c.Pond.IdentityFile)
	c.Pond.IdentityStrict = getEnvBool("POND_IDENTITY_STRICT", c.Pond.IdentityStrict)

	c.Ocean.Endpoint = getEnv("OCEAN_ENDPOINT", c.Ocean.Endpoint)
	c.Ocean.APIKey = getEnv("OCEAN_API_KEY", c.Ocean.APIKey)
	c.Ocean.Timeout = getEnvDuration("OCEAN_TIMEOUT", c.Ocean.Timeout)
	c.Ocean.DepthEndpoint = getEnv("OCEAN_DEPTH_ENDPOINT", c.Ocean.DepthEndpoint)
	c.Ocean.DepthAPIKey = getEnv("OCEAN_DEPTH_API_KEY", c.Ocean.DepthAPIKey)
	if c.Ocean.DepthAPIKey == "" {
		c.Ocean.DepthAPIKey = c.Ocean.APIKey
	}
	c.Ocean.DepthTimeout = getEnvDuration("OCEAN_DEPTH_TIMEOUT", c.Ocean.DepthTimeout)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.RateLimit.Requests = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	c.ConversationLog.QueueSize = getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.Pond.Mode != "local" && c.Pond.Mode != "ocean" {
		errs = append(errs, fmt.Errorf("POND_MODE must be local or ocean, got %q", c.Pond.Mode))
	}
	switch c.Pond.MemoryBackend {
	case store.BackendJSON:
		if c.Pond.MemoryFile == "" {
			errs = append(errs, errors.New("POND_MEMORY_FILE cannot be empty"))
		}
	case store.BackendSQLite:
		if c.Pond.MemoryDB == "" {
			errs = append(errs, errors.New("POND_MEMORY_DB cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("POND_MEMORY_BACKEND must be json or sqlite, got %q", c.Pond.MemoryBackend))
	}
	if c.Pond.IdentityFile == "" {
		errs = append(errs, errors.New("POND_IDENTITY_FILE cannot be empty"))
	}
	switch c.LLM.Provider {
	case "openai", "ollama", "none", "":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be openai, ollama or none, got %q", c.LLM.Provider))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_DIR cannot be empty"))
	}
	if c.ConversationLog.QueueSize <= 0 {
		errs = append(errs, errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0"))
	}
	return errors.Join(errs...)
}

// GRPCEnabled reports whether the gRPC health server should run.
func (c *Config) GRPCEnabled() bool {
	return c.Server.GRPCPort != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
