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
	kBool
	kFloat
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names the secret in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "data.dir", typ: kString, env: "SHORTLIST_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Data.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.Dir },
	},
	{
		key: "data.inputs", typ: kString, env: "SHORTLIST_DATA_INPUTS",
		apply:   func(cfg *Config, v any) { cfg.Data.Inputs = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.Inputs },
	},
	{
		key: "profile.path", typ: kString, env: "SHORTLIST_PROFILE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Profile.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Path },
	},
	{
		key: "profile.llm_path", typ: kString, env: "SHORTLIST_PROFILE_LLM_PATH",
		apply:   func(cfg *Config, v any) { cfg.Profile.LLMPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.LLMPath },
	},
	{
		key: "crawl.concurrency", typ: kInt, env: "SHORTLIST_CRAWL_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Crawl.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawl.Concurrency },
	},
	{
		key: "crawl.retries", typ: kInt, env: "SHORTLIST_CRAWL_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Crawl.Retries = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawl.Retries },
	},
	{
		key: "crawl.timeout", typ: kString, env: "SHORTLIST_CRAWL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Crawl.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawl.Timeout },
	},
	{
		key: "crawl.backoff_cap", typ: kString, env: "SHORTLIST_CRAWL_BACKOFF_CAP",
		apply:   func(cfg *Config, v any) { cfg.Crawl.BackoffCap = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawl.BackoffCap },
	},
	{
		key: "crawl.batch_size", typ: kInt, env: "SHORTLIST_CRAWL_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Crawl.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawl.BatchSize },
	},
	{
		key: "crawl.user_agent", typ: kString, env: "SHORTLIST_CRAWL_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Crawl.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawl.UserAgent },
	},
	{
		key: "crawl.max_bytes", typ: kInt, env: "SHORTLIST_CRAWL_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Crawl.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawl.MaxBytes },
	},
	{
		key: "ledger.backend", typ: kString, env: "SHORTLIST_LEDGER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Ledger.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Ledger.Backend },
	},
	{
		key: "server.port", typ: kInt, env: "SHORTLIST_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SHORTLIST_SERVER_API_TOKEN",
		secret: true, account: "server_api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SHORTLIST_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SHORTLIST_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.rescore_model", typ: kString, env: "SHORTLIST_OLLAMA_RESCORE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.RescoreModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.RescoreModel },
	},
	{
		key: "gemini.api_key", typ: kString, env: "SHORTLIST_GEMINI_API_KEY",
		secret: true, account: "gemini_api_key",
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "SHORTLIST_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "sources.query", typ: kString, env: "SHORTLIST_SOURCES_QUERY",
		apply:   func(cfg *Config, v any) { cfg.Sources.Query = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.Query },
	},
	{
		key: "sources.limit", typ: kInt, env: "SHORTLIST_SOURCES_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Sources.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Sources.Limit },
	},
	{
		key: "sources.feeds_path", typ: kString, env: "SHORTLIST_SOURCES_FEEDS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Sources.FeedsPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.FeedsPath },
	},
	{
		key: "sources.google_cx", typ: kString, env: "SHORTLIST_GOOGLE_CX",
		apply:   func(cfg *Config, v any) { cfg.Sources.GoogleCX = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.GoogleCX },
	},
	{
		key: "sources.google_api_key", typ: kString, env: "SHORTLIST_GOOGLE_API_KEY",
		secret: true, account: "google_api_key",
		apply:   func(cfg *Config, v any) { cfg.Sources.GoogleAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.GoogleAPIKey },
	},
	{
		key: "sources.youtube_channel", typ: kString, env: "SHORTLIST_YOUTUBE_CHANNEL",
		apply:   func(cfg *Config, v any) { cfg.Sources.YouTubeChannel = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.YouTubeChannel },
	},
	{
		key: "sources.youtube_api_key", typ: kString, env: "SHORTLIST_YOUTUBE_API_KEY",
		secret: true, account: "youtube_api_key",
		apply:   func(cfg *Config, v any) { cfg.Sources.YouTubeAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.YouTubeAPIKey },
	},
	{
		key: "log.level", typ: kString, env: "SHORTLIST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets fills secrets still empty after the environment from the
// secret store. Lookup failures leave the secret empty.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
