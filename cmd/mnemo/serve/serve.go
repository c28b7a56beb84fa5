// Package servecmder provides the serve command running the bot and API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/api"
	"github.com/mnemohq/mnemo/bot"
	"github.com/mnemohq/mnemo/pkg/cache"
	memcache "github.com/mnemohq/mnemo/pkg/cache/memory"
	rediscache "github.com/mnemohq/mnemo/pkg/cache/redis"
	"github.com/mnemohq/mnemo/pkg/config"
	"github.com/mnemohq/mnemo/pkg/embeddings"
	"github.com/mnemohq/mnemo/pkg/embeddings/cached"
	openaiembed "github.com/mnemohq/mnemo/pkg/embeddings/openai"
	"github.com/mnemohq/mnemo/pkg/eventstream"
	"github.com/mnemohq/mnemo/pkg/eventstream/kafka"
	"github.com/mnemohq/mnemo/pkg/eventstream/nop"
	"github.com/mnemohq/mnemo/pkg/ingest"
	"github.com/mnemohq/mnemo/pkg/logger"
	"github.com/mnemohq/mnemo/pkg/memory"
	"github.com/mnemohq/mnemo/pkg/search"
	"github.com/mnemohq/mnemo/pkg/storage"
	"github.com/mnemohq/mnemo/pkg/storage/inmemory"
	"github.com/mnemohq/mnemo/pkg/storage/postgres"
)

type ServeCommander struct {
	inMemory bool
	noBot    bool
	debug    bool
	logger   *zap.Logger
}

const serveLongDesc string = `Run Mnemo services.

Runs the Slack bot and the HTTP API server together. Use --no-bot to run
just the API server (e.g. for local inspection against a shared database),
or --memory to run against an in-memory store without PostgreSQL.`

const serveShortDesc string = "Run the bot and API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			return cmder.run(config.FromViper(v))
		},
	}

	cmd.Flags().BoolVar(&cmder.inMemory, "memory", false, "Use an in-memory store instead of PostgreSQL")
	cmd.Flags().BoolVar(&cmder.noBot, "no-bot", false, "Run only the API server")

	return cmd
}

func (c *ServeCommander) run(cfg *config.Config) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var (
		store     storage.Driver
		summaries storage.SummaryStore
		profiles  storage.ProfileStore
		pool      api.PoolStatser
	)
	if c.inMemory {
		store = inmemory.NewDriver()
		summaries = inmemory.NewSummaryStore()
		profiles = inmemory.NewProfileStore()
	} else {
		pgPool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MinConns:        int32(cfg.Database.MinConns),
			MaxConns:        int32(cfg.Database.MaxConns),
			MaxConnIdleTime: parseDurationOr(cfg.Database.MaxConnIdleTime, postgres.DefaultMaxConnIdleTime),
		}, c.logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}

		pgStore, err := postgres.NewStore(ctx, pgPool, c.logger)
		if err != nil {
			return fmt.Errorf("creating store: %w", err)
		}
		if err := pgStore.InitDerivedSchema(ctx); err != nil {
			return err
		}

		store = pgStore
		summaries = postgres.NewSummaryStore(pgPool)
		profiles = postgres.NewProfileStore(pgPool)
		pool = pgPool
	}
	defer store.Close()

	// Cache
	var cch cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := rediscache.New(ctx, cfg.Redis.URL, c.logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		cch = redisCache
	} else {
		cch = memcache.New(memcache.Config{})
	}

	// Embeddings
	rawEmbedder, err := openaiembed.NewEmbedder(openaiembed.Config{
		APIKey: cfg.OpenAI.APIKey,
		Model:  cfg.OpenAI.EmbeddingModel,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	var embedder embeddings.Embedder = cached.New(rawEmbedder, cch, 0)
	defer embedder.Close()

	// Retrieval core
	tuning := search.DefaultTuning()
	engine := search.NewEngine(store, embedder, tuning, c.logger)
	builder := memory.NewBuilder(store, summaries, profiles, embedder, cch, c.logger)

	// Embedding workers
	ingestPool, err := ingest.NewPool(&ingest.Config{
		Store:      store,
		Embedder:   embedder,
		ModelTag:   cfg.OpenAI.EmbeddingModel,
		NumWorkers: uint(cfg.Ingest.Workers),
		QueueSize:  uint(cfg.Ingest.QueueSize),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}
	defer ingestPool.Close()

	// Event stream
	publisher, err := c.createPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	memoryOpts := memory.Options{
		RecentLimit:   cfg.Memory.RecentLimit,
		RelevantLimit: cfg.Memory.RelevantLimit,
		Hours:         cfg.Memory.RecentHours,
		UseCache:      cfg.Memory.CacheBundles,
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr:     cfg.API.Listen,
		SemanticWeight: cfg.Search.SemanticWeight,
		TemporalDecay:  cfg.Search.TemporalDecay,
		Memory:         memoryOpts,
	}, engine, builder, pool, c.logger)

	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if !c.noBot {
		slackBot, err := bot.New(bot.Config{
			BotToken:        cfg.Bot.BotToken,
			AppToken:        cfg.Bot.AppToken,
			ChatModel:       cfg.OpenAI.ChatModel,
			DiversityWeight: cfg.Search.DiversityWeight,
			Memory:          memoryOpts,
			Store:           store,
			Builder:         builder,
			Engine:          engine,
			Ingest:          ingestPool,
			Publisher:       publisher,
			Chat:            openaiapi.NewClient(cfg.OpenAI.APIKey),
			Logger:          c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating bot: %w", err)
		}

		go func() {
			if err := slackBot.Run(ctx); err != nil {
				errChan <- fmt.Errorf("bot error: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) createPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.Brokers,
			Topic:   cfg.EventStream.Topic,
		}, c.logger)
	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q", cfg.EventStream.Provider)
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
