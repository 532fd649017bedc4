// Package config loads service configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM/embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
)

// DefaultPersona is the system instruction sent with every generation call.
// Condensed from the product's "witty companion" persona.
const DefaultPersona = "You are Quip, a witty and entertaining conversational AI. " +
	"Mix clever, good-natured humor into genuinely helpful answers. Tease like " +
	"a friend, never cruelly; drop the jokes entirely for serious topics."

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (conversation + turn + user store)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Vector memory store (chromem). Empty path keeps it in memory.
	MemoryPath string `yaml:"memory_path"`

	// Generation
	LLMProvider Provider `yaml:"llm_provider"`
	LLMModel    string   `yaml:"llm_model"`
	Persona     string   `yaml:"persona"`

	// Embedding
	EmbedProvider  Provider `yaml:"embed_provider"`
	EmbedModel     string   `yaml:"embed_model"`
	EmbedDimension int      `yaml:"embed_dimension"`

	// Provider credentials / endpoints
	OllamaHost   string `yaml:"ollama_host"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	GoogleAPIKey string `yaml:"google_api_key"`

	// Turn pipeline
	LongTermMemory bool          `yaml:"long_term_memory"`
	RecentWindow   int           `yaml:"recent_window"`
	TopK           int           `yaml:"top_k"`
	RetryAfter     time.Duration `yaml:"retry_after"`

	// HTTP server
	ServerPort string `yaml:"server_port"`
	JWTSecret  string `yaml:"jwt_secret"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables, then applies the
// YAML overlay named by QUIP_CONFIG if set. Environment wins for secrets.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "quip"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		MemoryPath: getEnv("QUIP_MEMORY_PATH", ""),

		LLMProvider: Provider(getEnv("QUIP_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:    getEnv("QUIP_LLM_MODEL", "llama3.2"),
		Persona:     getEnv("QUIP_PERSONA", DefaultPersona),

		EmbedProvider:  Provider(getEnv("QUIP_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("QUIP_EMBED_MODEL", "nomic-embed-text"),
		EmbedDimension: getEnvInt("QUIP_EMBED_DIMENSION", 768),

		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),

		LongTermMemory: getEnv("QUIP_LONG_TERM_MEMORY", "true") == "true",
		RecentWindow:   getEnvInt("QUIP_RECENT_WINDOW", 20),
		TopK:           getEnvInt("QUIP_TOP_K", 3),
		RetryAfter:     getEnvDuration("QUIP_RETRY_AFTER", 2*time.Second),

		ServerPort: getEnv("QUIP_SERVER_PORT", "8080"),
		JWTSecret:  getEnv("QUIP_JWT_SECRET", ""),

		LogFile:  getEnv("QUIP_LOG_FILE", "/tmp/quip.log"),
		LogLevel: parseLogLevel(getEnv("QUIP_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("QUIP_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	return cfg, nil
}

// applyFile overlays values from a YAML file onto the config.
// Zero values in the file leave the corresponding field untouched.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	merge(&c.SurrealDBURL, overlay.SurrealDBURL)
	merge(&c.SurrealDBNamespace, overlay.SurrealDBNamespace)
	merge(&c.SurrealDBDatabase, overlay.SurrealDBDatabase)
	merge(&c.SurrealDBUser, overlay.SurrealDBUser)
	merge(&c.SurrealDBPass, overlay.SurrealDBPass)
	merge(&c.SurrealDBAuthLevel, overlay.SurrealDBAuthLevel)
	merge(&c.MemoryPath, overlay.MemoryPath)
	merge(&c.LLMProvider, overlay.LLMProvider)
	merge(&c.LLMModel, overlay.LLMModel)
	merge(&c.Persona, overlay.Persona)
	merge(&c.EmbedProvider, overlay.EmbedProvider)
	merge(&c.EmbedModel, overlay.EmbedModel)
	merge(&c.EmbedDimension, overlay.EmbedDimension)
	merge(&c.OllamaHost, overlay.OllamaHost)
	merge(&c.OpenAIAPIKey, overlay.OpenAIAPIKey)
	merge(&c.GoogleAPIKey, overlay.GoogleAPIKey)
	merge(&c.RecentWindow, overlay.RecentWindow)
	merge(&c.TopK, overlay.TopK)
	merge(&c.RetryAfter, overlay.RetryAfter)
	merge(&c.ServerPort, overlay.ServerPort)
	merge(&c.JWTSecret, overlay.JWTSecret)
	merge(&c.LogFile, overlay.LogFile)

	return nil
}

func merge[T comparable](dst *T, src T) {
	var zero T
	if src != zero {
		*dst = src
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
