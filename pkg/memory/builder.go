package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/cache"
	"github.com/mnemohq/mnemo/pkg/embeddings"
	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

const (
	// DefaultRecentLimit is the recent-window message cap.
	DefaultRecentLimit = 20

	// DefaultRelevantLimit caps the relevant-history results.
	DefaultRelevantLimit = 10

	// DefaultHours is the recent-window size.
	DefaultHours = 24

	// RelevantSimilarityThreshold is the similarity floor for the
	// relevant-history path.
	RelevantSimilarityThreshold = 0.7

	// ThreadLimit caps thread-context fetches.
	ThreadLimit = 50

	// SummaryLimit caps the summaries attached to a bundle.
	SummaryLimit = 5

	// BundleTTL is the short cache TTL for assembled bundles.
	BundleTTL = 30 * time.Second
)

// Options control a single BuildContext call. Zero numeric fields take the
// defaults above.
type Options struct {
	RecentLimit      int
	RelevantLimit    int
	Hours            int
	ThreadTS         string
	IncludeSummaries bool
	IncludeProfiles  bool
	UseCache         bool
}

func (o Options) withDefaults() Options {
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.RelevantLimit <= 0 {
		o.RelevantLimit = DefaultRelevantLimit
	}
	if o.Hours <= 0 {
		o.Hours = DefaultHours
	}
	return o
}

// cacheKey hashes the full request shape so option changes never alias.
func (o Options) cacheKey(channelID, query string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d|%d|%s|%t|%t",
		channelID, query, o.RecentLimit, o.RelevantLimit, o.Hours,
		o.ThreadTS, o.IncludeSummaries, o.IncludeProfiles))
	return channelID + "/" + hex.EncodeToString(sum[:16])
}

// Builder orchestrates the retrieval calls behind a context bundle.
type Builder struct {
	store     storage.Driver
	summaries storage.SummaryStore
	profiles  storage.ProfileStore
	embedder  embeddings.Embedder
	cache     cache.Cache
	logger    *zap.Logger
}

// NewBuilder creates a context builder. summaries and profiles may be nil
// when the deployment runs without the out-of-band jobs; the corresponding
// bundle sections then stay empty.
func NewBuilder(
	store storage.Driver,
	summaries storage.SummaryStore,
	profiles storage.ProfileStore,
	embedder embeddings.Embedder,
	c cache.Cache,
	logger *zap.Logger,
) *Builder {
	return &Builder{
		store:     store,
		summaries: summaries,
		profiles:  profiles,
		embedder:  embedder,
		cache:     c,
		logger:    logger,
	}
}

// BuildContext assembles the context bundle for a channel. Context assembly
// is best-effort: any underlying failure yields the minimal empty bundle so
// response generation is degraded, never blocked.
func (b *Builder) BuildContext(ctx context.Context, channelID, query string, opts Options) *Bundle {
	opts = opts.withDefaults()

	if opts.UseCache && b.cache != nil {
		key := opts.cacheKey(channelID, query)
		if raw, err := b.cache.Get(ctx, cache.NamespaceContext, key); err == nil {
			var bundle Bundle
			if err := json.Unmarshal(raw, &bundle); err == nil {
				return &bundle
			}
		}

		bundle := b.build(ctx, channelID, query, opts)
		if raw, err := json.Marshal(bundle); err == nil {
			_ = b.cache.Set(ctx, cache.NamespaceContext, key, raw, BundleTTL)
		}
		return bundle
	}

	return b.build(ctx, channelID, query, opts)
}

func (b *Builder) build(ctx context.Context, channelID, query string, opts Options) *Bundle {
	recent, err := b.store.GetRecentMessages(ctx, channelID, opts.Hours, opts.RecentLimit)
	if err != nil {
		b.logger.Warn("context assembly failed, returning empty bundle",
			zap.String("channel", channelID),
			zap.Error(err),
		)
		return EmptyBundle()
	}

	total, err := b.store.CountByChannel(ctx, channelID)
	if err != nil {
		b.logger.Warn("context assembly failed, returning empty bundle",
			zap.String("channel", channelID),
			zap.Error(err),
		)
		return EmptyBundle()
	}

	bundle := EmptyBundle()
	bundle.RecentMessages = recent
	bundle.TotalMessages = total

	if query != "" {
		relevant, err := b.findRelevant(ctx, channelID, query, recent, opts)
		if err != nil {
			b.logger.Warn("context assembly failed, returning empty bundle",
				zap.String("channel", channelID),
				zap.Error(err),
			)
			return EmptyBundle()
		}
		bundle.RelevantMessages = relevant
	}

	if opts.ThreadTS != "" {
		thread, err := b.store.FindThread(ctx, channelID, opts.ThreadTS, ThreadLimit)
		if err != nil {
			b.logger.Warn("context assembly failed, returning empty bundle",
				zap.String("channel", channelID),
				zap.Error(err),
			)
			return EmptyBundle()
		}
		bundle.ThreadContext = thread
	}

	if opts.IncludeSummaries && b.summaries != nil {
		summaries, err := b.summaries.FindByChannel(ctx, channelID, SummaryLimit)
		if err != nil {
			b.logger.Warn("context assembly failed, returning empty bundle",
				zap.String("channel", channelID),
				zap.Error(err),
			)
			return EmptyBundle()
		}
		bundle.Summaries = summaries
	}

	if opts.IncludeProfiles && b.profiles != nil {
		bundle.Profiles = b.resolveProfiles(ctx, recent)
	}

	return bundle
}

// findRelevant embeds the query, fetches twice the requested neighbors, and
// keeps the first RelevantLimit hits not already present in the recent set.
func (b *Builder) findRelevant(ctx context.Context, channelID, query string, recent []message.Message, opts Options) ([]message.ScoredMessage, error) {
	result, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := b.store.FindSimilar(ctx, pgvector.NewVector(result.Vector), channelID,
		opts.RelevantLimit*2, RelevantSimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("finding similar messages: %w", err)
	}

	recentKeys := make(map[string]struct{}, len(recent))
	for i := range recent {
		recentKeys[recent[i].Key()] = struct{}{}
	}

	relevant := make([]message.ScoredMessage, 0, opts.RelevantLimit)
	for _, sm := range candidates {
		if _, seen := recentKeys[sm.Key()]; seen {
			continue
		}
		relevant = append(relevant, sm)
		if len(relevant) == opts.RelevantLimit {
			break
		}
	}

	return relevant, nil
}

// resolveProfiles looks up one profile per distinct author in the recent
// set. Missing profiles are not an error; lookup failures only drop the
// profile section.
func (b *Builder) resolveProfiles(ctx context.Context, recent []message.Message) map[string]*message.UserProfile {
	profiles := make(map[string]*message.UserProfile)
	seen := make(map[string]struct{})
	for i := range recent {
		authorID := recent[i].AuthorID
		if authorID == "" {
			continue
		}
		if _, ok := seen[authorID]; ok {
			continue
		}
		seen[authorID] = struct{}{}

		profile, err := b.profiles.FindByUserID(ctx, authorID)
		if err != nil {
			var notFound storage.NotFoundError
			if !errors.As(err, &notFound) {
				b.logger.Debug("profile lookup failed",
					zap.String("user", authorID),
					zap.Error(err),
				)
			}
			continue
		}
		profiles[authorID] = profile
	}

	if len(profiles) == 0 {
		return nil
	}

	return profiles
}
