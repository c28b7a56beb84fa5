package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent mnemo configuration stored as config.toml.
// The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	OpenAI      OpenAIConfig      `toml:"openai"`
	Search      SearchConfig      `toml:"search"`
	Memory      MemoryConfig      `toml:"memory"`
	Bot         BotConfig         `toml:"bot"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// DatabaseConfig holds Postgres pool settings.
type DatabaseConfig struct {
	URL             string `toml:"url,omitempty"`
	MinConns        int    `toml:"min_conns,omitempty"`
	MaxConns        int    `toml:"max_conns,omitempty"`
	MaxConnIdleTime string `toml:"max_conn_idle_time,omitempty"`
}

// RedisConfig holds cache backend settings. When URL is empty the
// in-process cache is used instead.
type RedisConfig struct {
	URL string `toml:"url,omitempty"`
}

// OpenAIConfig holds embedding and chat provider settings.
type OpenAIConfig struct {
	APIKey         string `toml:"api_key,omitempty"`
	EmbeddingModel string `toml:"embedding_model,omitempty"`
	ChatModel      string `toml:"chat_model,omitempty"`
}

// SearchConfig holds hybrid search fusion settings.
type SearchConfig struct {
	SemanticWeight  float64 `toml:"semantic_weight,omitempty"`
	TemporalDecay   float64 `toml:"temporal_decay,omitempty"`
	DiversityWeight float64 `toml:"diversity_weight,omitempty"`
}

// MemoryConfig holds context builder settings.
type MemoryConfig struct {
	RecentLimit   int  `toml:"recent_limit,omitempty"`
	RelevantLimit int  `toml:"relevant_limit,omitempty"`
	RecentHours   int  `toml:"recent_hours,omitempty"`
	CacheBundles  bool `toml:"cache_bundles,omitempty"`
}

// BotConfig holds Slack connection settings.
type BotConfig struct {
	BotToken string `toml:"bot_token,omitempty"`
	AppToken string `toml:"app_token,omitempty"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds interaction event publishing settings.
// Provider is "nop" or "kafka".
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// IngestConfig holds embedding worker pool settings.
type IngestConfig struct {
	Workers   int `toml:"workers,omitempty"`
	QueueSize int `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.Itoa(*get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value %q: %w", v, err)
			}
			*get(c) = n
			return nil
		},
	}
}

func floatKey(get func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*get(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid float value %q: %w", v, err)
			}
			*get(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"database.url": {
		get: func(c *Config) string { return c.Database.URL },
		set: func(c *Config, v string) error { c.Database.URL = v; return nil },
	},
	"database.min_conns": intKey(func(c *Config) *int { return &c.Database.MinConns }),
	"database.max_conns": intKey(func(c *Config) *int { return &c.Database.MaxConns }),
	"database.max_conn_idle_time": {
		get: func(c *Config) string { return c.Database.MaxConnIdleTime },
		set: func(c *Config, v string) error { c.Database.MaxConnIdleTime = v; return nil },
	},
	"redis.url": {
		get: func(c *Config) string { return c.Redis.URL },
		set: func(c *Config, v string) error { c.Redis.URL = v; return nil },
	},
	"openai.api_key": {
		get: func(c *Config) string { return c.OpenAI.APIKey },
		set: func(c *Config, v string) error { c.OpenAI.APIKey = v; return nil },
	},
	"openai.embedding_model": {
		get: func(c *Config) string { return c.OpenAI.EmbeddingModel },
		set: func(c *Config, v string) error { c.OpenAI.EmbeddingModel = v; return nil },
	},
	"openai.chat_model": {
		get: func(c *Config) string { return c.OpenAI.ChatModel },
		set: func(c *Config, v string) error { c.OpenAI.ChatModel = v; return nil },
	},
	"search.semantic_weight":  floatKey(func(c *Config) *float64 { return &c.Search.SemanticWeight }),
	"search.temporal_decay":   floatKey(func(c *Config) *float64 { return &c.Search.TemporalDecay }),
	"search.diversity_weight": floatKey(func(c *Config) *float64 { return &c.Search.DiversityWeight }),
	"memory.recent_limit":     intKey(func(c *Config) *int { return &c.Memory.RecentLimit }),
	"memory.relevant_limit":   intKey(func(c *Config) *int { return &c.Memory.RelevantLimit }),
	"memory.recent_hours":     intKey(func(c *Config) *int { return &c.Memory.RecentHours }),
	"memory.cache_bundles": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.CacheBundles) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.cache_bundles: %w", err)
			}
			c.Memory.CacheBundles = b
			return nil
		},
	},
	"bot.bot_token": {
		get: func(c *Config) string { return c.Bot.BotToken },
		set: func(c *Config, v string) error { c.Bot.BotToken = v; return nil },
	},
	"bot.app_token": {
		get: func(c *Config) string { return c.Bot.AppToken },
		set: func(c *Config, v string) error { c.Bot.AppToken = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"ingest.workers":    intKey(func(c *Config) *int { return &c.Ingest.Workers }),
	"ingest.queue_size": intKey(func(c *Config) *int { return &c.Ingest.QueueSize }),
}
