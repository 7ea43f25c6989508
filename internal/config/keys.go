package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.addr", typ: kString, env: "TASKTALK_SERVER_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Server.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Addr },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TASKTALK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "TASKTALK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "TASKTALK_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "chat.history_limit", typ: kInt, env: "TASKTALK_CHAT_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Chat.HistoryLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.HistoryLimit },
	},
	{
		key: "chat.max_operations", typ: kInt, env: "TASKTALK_CHAT_MAX_OPERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxOperations = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxOperations },
	},
	{
		key: "chat.resolver_timeout", typ: kDuration, env: "TASKTALK_CHAT_RESOLVER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Chat.ResolverTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Chat.ResolverTimeout },
	},
	{
		key: "chat.store_timeout", typ: kDuration, env: "TASKTALK_CHAT_STORE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Chat.StoreTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Chat.StoreTimeout },
	},
	{
		key: "reasoning.provider", typ: kString, env: "TASKTALK_REASONING_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.Provider },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TASKTALK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "TASKTALK_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openai.base_url", typ: kString, env: "TASKTALK_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "TASKTALK_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.api_key", typ: kString, env: "TASKTALK_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "TASKTALK_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "TASKTALK_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "titler.enabled", typ: kBool, env: "TASKTALK_TITLER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Titler.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Titler.Enabled },
	},
	{
		key: "titler.poll_interval", typ: kDuration, env: "TASKTALK_TITLER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Titler.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Titler.PollInterval },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "TASKTALK_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
}

// parse converts raw into the Go type of the key.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = fmt.Errorf("duration must be positive")
		}
		return d, err
	}
	return raw, nil
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
