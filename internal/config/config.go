// Package config loads tasktalk settings from defaults, a YAML file and
// TASKTALK_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Chat      ChatConfig
	Reasoning ReasoningConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Titler    TitlerConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Addr string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type ChatConfig struct {
	HistoryLimit    int
	MaxOperations   int
	ResolverTimeout time.Duration
	StoreTimeout    time.Duration
}

type ReasoningConfig struct {
	Provider string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type GeminiConfig struct {
	Model  string
	APIKey string
}

type TitlerConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: "127.0.0.1:4100"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info", Format: "text"},
		Chat: ChatConfig{
			HistoryLimit:    50,
			MaxOperations:   5,
			ResolverTimeout: 30 * time.Second,
			StoreTimeout:    5 * time.Second,
		},
		Reasoning: ReasoningConfig{Provider: "ollama"},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
		Titler: TitlerConfig{Enabled: true, PollInterval: 2 * time.Second},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/tasktalk/config.yaml and environment variables.
//
// Environment variables (TASKTALK_*) override file values. Secrets (the JWT
// secret and provider API keys) are read from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c Config) Validate() error {
	var errs []error
	switch c.Reasoning.Provider {
	case "ollama", "rules":
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("reasoning.provider is openai but TASKTALK_OPENAI_API_KEY is not set"))
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("reasoning.provider is gemini but TASKTALK_GEMINI_API_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reasoning.provider %q (want ollama, openai, gemini or rules)", c.Reasoning.Provider))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q (want text or json)", c.Log.Format))
	}
	if c.Chat.HistoryLimit <= 0 || c.Chat.MaxOperations <= 0 {
		errs = append(errs, errors.New("chat.history_limit and chat.max_operations must be positive"))
	}
	if c.Chat.ResolverTimeout <= 0 || c.Chat.StoreTimeout <= 0 {
		errs = append(errs, errors.New("chat timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "tasktalk-data"
		}
	}
	return filepath.Join(dir, "tasktalk")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "tasktalk", "config.yaml")
}

// Path returns the location of the config file.
func Path() string { return configFilePath() }
