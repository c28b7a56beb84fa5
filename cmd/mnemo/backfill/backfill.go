// Package backfillcmder provides the `mnemo backfill` CLI command.
package backfillcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/cache"
	memcache "github.com/mnemohq/mnemo/pkg/cache/memory"
	rediscache "github.com/mnemohq/mnemo/pkg/cache/redis"
	"github.com/mnemohq/mnemo/pkg/config"
	"github.com/mnemohq/mnemo/pkg/embeddings/cached"
	openaiembed "github.com/mnemohq/mnemo/pkg/embeddings/openai"
	"github.com/mnemohq/mnemo/pkg/ingest"
	"github.com/mnemohq/mnemo/pkg/logger"
	"github.com/mnemohq/mnemo/pkg/storage/postgres"
)

const backfillLongDesc string = `Embed stored messages that are missing embeddings.

Scans the message store for messages whose embedding has not been generated
(dropped embedding jobs, imports, provider outages) and embeds them in
batches through the configured provider.

Examples:
  mnemo backfill
  mnemo backfill --batch 200`

const backfillShortDesc string = "Embed messages with missing embeddings"

type backfillCommander struct {
	batchSize int
	debug     bool
	logger    *zap.Logger
}

// NewBackfillCmd creates the backfill cobra command.
func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			return cmder.run(cmd.Context(), config.FromViper(v))
		},
	}

	cmd.Flags().IntVarP(&cmder.batchSize, "batch", "b", 100, "Messages per embedding batch")

	return cmd
}

func (c *backfillCommander) run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:      cfg.Database.URL,
		MinConns: int32(cfg.Database.MinConns),
		MaxConns: int32(cfg.Database.MaxConns),
	}, c.logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	store, err := postgres.NewStore(ctx, pool, c.logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	var cch cache.Cache
	if cfg.Redis.URL != "" {
		cch, err = rediscache.New(ctx, cfg.Redis.URL, c.logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
	} else {
		cch = memcache.New(memcache.Config{})
	}

	rawEmbedder, err := openaiembed.NewEmbedder(openaiembed.Config{
		APIKey: cfg.OpenAI.APIKey,
		Model:  cfg.OpenAI.EmbeddingModel,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	embedder := cached.New(rawEmbedder, cch, 0)
	defer embedder.Close()

	ingestPool, err := ingest.NewPool(&ingest.Config{
		Store:    store,
		Embedder: embedder,
		ModelTag: cfg.OpenAI.EmbeddingModel,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}
	defer ingestPool.Close()

	total, err := ingestPool.Backfill(ctx, c.batchSize)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Printf("Backfilled %d embeddings\n", total)
	return nil
}
