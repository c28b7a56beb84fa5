package config

const (
	defaultDatabaseURL     = "postgres://localhost:5432/mnemo"
	defaultMinConns        = 2
	defaultMaxConns        = 10
	defaultMaxConnIdleTime = "5m"

	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o-mini"

	defaultSemanticWeight  = 0.7
	defaultTemporalDecay   = 0.1
	defaultDiversityWeight = 0.3

	defaultRecentLimit   = 20
	defaultRelevantLimit = 10
	defaultRecentHours   = 24

	defaultAPIListen = ":8090"

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "mnemo.interactions"

	defaultIngestWorkers   = 3
	defaultIngestQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Database: DatabaseConfig{
			URL:             defaultDatabaseURL,
			MinConns:        defaultMinConns,
			MaxConns:        defaultMaxConns,
			MaxConnIdleTime: defaultMaxConnIdleTime,
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: defaultEmbeddingModel,
			ChatModel:      defaultChatModel,
		},
		Search: SearchConfig{
			SemanticWeight:  defaultSemanticWeight,
			TemporalDecay:   defaultTemporalDecay,
			DiversityWeight: defaultDiversityWeight,
		},
		Memory: MemoryConfig{
			RecentLimit:   defaultRecentLimit,
			RelevantLimit: defaultRelevantLimit,
			RecentHours:   defaultRecentHours,
			CacheBundles:  true,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
	}
}
