package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SOULFORGE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SOULFORGE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.extract_model", typ: kString, env: "SOULFORGE_OLLAMA_EXTRACT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ExtractModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ExtractModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SOULFORGE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "interview.idle_timeout", typ: kString, env: "SOULFORGE_INTERVIEW_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Interview.IdleTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Interview.IdleTimeout },
	},
	{
		key: "interview.sweep_interval", typ: kString, env: "SOULFORGE_INTERVIEW_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Interview.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Interview.SweepInterval },
	},
	{
		key: "interview.default_template", typ: kString, env: "SOULFORGE_INTERVIEW_DEFAULT_TEMPLATE",
		apply:   func(cfg *Config, v any) { cfg.Interview.DefaultTemplate = v.(string) },
		extract: func(cfg Config) any { return cfg.Interview.DefaultTemplate },
	},
	{
		key: "log.level", typ: kString, env: "SOULFORGE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
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
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
