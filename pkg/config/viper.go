package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via directory resolution), and binds environment variables
// with the MNEMO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via cobra)
//  2. Environment variables (MNEMO_DATABASE_URL, MNEMO_BOT_BOT_TOKEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := resolveTarget(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MNEMO_DATABASE_URL, MNEMO_REDIS_ADDR, etc.
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Database
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.max_conn_idle_time", d.Database.MaxConnIdleTime)

	// Redis
	v.SetDefault("redis.url", d.Redis.URL)

	// OpenAI
	v.SetDefault("openai.api_key", d.OpenAI.APIKey)
	v.SetDefault("openai.embedding_model", d.OpenAI.EmbeddingModel)
	v.SetDefault("openai.chat_model", d.OpenAI.ChatModel)

	// Search
	v.SetDefault("search.semantic_weight", d.Search.SemanticWeight)
	v.SetDefault("search.temporal_decay", d.Search.TemporalDecay)
	v.SetDefault("search.diversity_weight", d.Search.DiversityWeight)

	// Memory
	v.SetDefault("memory.recent_limit", d.Memory.RecentLimit)
	v.SetDefault("memory.relevant_limit", d.Memory.RelevantLimit)
	v.SetDefault("memory.recent_hours", d.Memory.RecentHours)
	v.SetDefault("memory.cache_bundles", d.Memory.CacheBundles)

	// Bot
	v.SetDefault("bot.bot_token", d.Bot.BotToken)
	v.SetDefault("bot.app_token", d.Bot.AppToken)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Ingest
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.queue_size", d.Ingest.QueueSize)
}

// FromViper materializes a Config from a viper instance, applying defaults
// to any fields left zero-valued.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MinConns:        v.GetInt("database.min_conns"),
			MaxConns:        v.GetInt("database.max_conns"),
			MaxConnIdleTime: v.GetString("database.max_conn_idle_time"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         v.GetString("openai.api_key"),
			EmbeddingModel: v.GetString("openai.embedding_model"),
			ChatModel:      v.GetString("openai.chat_model"),
		},
		Search: SearchConfig{
			SemanticWeight:  v.GetFloat64("search.semantic_weight"),
			TemporalDecay:   v.GetFloat64("search.temporal_decay"),
			DiversityWeight: v.GetFloat64("search.diversity_weight"),
		},
		Memory: MemoryConfig{
			RecentLimit:   v.GetInt("memory.recent_limit"),
			RelevantLimit: v.GetInt("memory.relevant_limit"),
			RecentHours:   v.GetInt("memory.recent_hours"),
			CacheBundles:  v.GetBool("memory.cache_bundles"),
		},
		Bot: BotConfig{
			BotToken: v.GetString("bot.bot_token"),
			AppToken: v.GetString("bot.app_token"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetStringSlice("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
		Ingest: IngestConfig{
			Workers:   v.GetInt("ingest.workers"),
			QueueSize: v.GetInt("ingest.queue_size"),
		},
	}

	applyDefaults(cfg)

	return cfg
}
