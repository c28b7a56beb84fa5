// Package search implements the hybrid retrieval engine: keyword, semantic,
// and recency retrieval issued concurrently against the message store, fused
// into a single ranked result list, with an optional diversity re-ranking
// pass.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/embeddings"
	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// Option defaults. The fusion weights have no derivation beyond observed
// ranking quality; they are tunable configuration, not business logic.
const (
	DefaultLimit          = 20
	DefaultSemanticWeight = 0.7
	DefaultTemporalDecay  = 0.1
	DefaultMinScore       = 0.3
	DefaultRecentHours    = 168
)

// Tuning holds the secondary fusion constants, overridable via config.
type Tuning struct {
	// TemporalBoostFactor scales the recency decay contribution: a fused
	// score is multiplied by (1 + temporal*TemporalBoostFactor).
	TemporalBoostFactor float64

	// RecencyPresenceBoost multiplies candidates that also appear in the
	// plain recency scan.
	RecencyPresenceBoost float64

	// SemanticFloor is the similarity cutoff for the semantic path.
	SemanticFloor float64

	// DuplicateThreshold is the Jaccard similarity above which the rerank
	// pass treats two results as near-duplicates.
	DuplicateThreshold float64
}

// DefaultTuning returns the stock fusion constants.
func DefaultTuning() Tuning {
	return Tuning{
		TemporalBoostFactor:  0.2,
		RecencyPresenceBoost: 1.1,
		SemanticFloor:        0.5,
		DuplicateThreshold:   0.8,
	}
}

// Options control a single search call. Zero fields take the defaults above.
type Options struct {
	// ChannelID restricts the search scope. Empty searches all channels.
	ChannelID string

	// Limit caps the result count.
	Limit int

	// SemanticWeight in [0,1] weights the semantic path; the keyword path
	// gets 1 - SemanticWeight.
	SemanticWeight float64

	// TemporalDecay controls how fast the recency boost decays with age.
	TemporalDecay float64

	// MinScore filters out weakly matching candidates after fusion.
	MinScore float64

	// RecentHours is the window for the recency scan.
	RecentHours int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.SemanticWeight == 0 {
		o.SemanticWeight = DefaultSemanticWeight
	}
	if o.TemporalDecay == 0 {
		o.TemporalDecay = DefaultTemporalDecay
	}
	if o.MinScore == 0 {
		o.MinScore = DefaultMinScore
	}
	if o.RecentHours <= 0 {
		o.RecentHours = DefaultRecentHours
	}
	return o
}

// Engine fuses the three retrieval paths into one ranked list.
type Engine struct {
	store    storage.Driver
	embedder embeddings.Embedder
	tuning   Tuning
	logger   *zap.Logger

	// now is swappable for temporal-score tests.
	now func() time.Time
}

// NewEngine creates a hybrid search engine.
func NewEngine(store storage.Driver, embedder embeddings.Embedder, tuning Tuning, logger *zap.Logger) *Engine {
	if tuning == (Tuning{}) {
		tuning = DefaultTuning()
	}

	return &Engine{
		store:    store,
		embedder: embedder,
		tuning:   tuning,
		logger:   logger,
		now:      time.Now,
	}
}

// Search runs keyword, semantic, and recency retrieval concurrently, fuses
// the scores, and returns up to opts.Limit results ordered by combined score
// descending.
//
// A failure in any path fails the whole call: score fusion cannot proceed
// with a missing path undetected, so partial retrieval surfaces as an
// aggregate error rather than silently degrading ranking quality.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]message.ScoredMessage, error) {
	opts = opts.withDefaults()

	var (
		keywordResults  []message.ScoredMessage
		semanticResults []message.ScoredMessage
		recentMessages  []message.Message
		keywordErr      error
		semanticErr     error
		recentErr       error
	)

	// All three paths are awaited together; a failing path never leaves the
	// others hanging.
	done := make(chan struct{}, 3)

	go func() {
		defer func() { done <- struct{}{} }()
		keywordResults, keywordErr = e.store.SearchKeyword(ctx, opts.ChannelID, query, opts.Limit*2)
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		semanticResults, semanticErr = e.semanticSearch(ctx, query, opts)
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		recentMessages, recentErr = e.store.GetRecentMessages(ctx, opts.ChannelID, opts.RecentHours, opts.Limit)
	}()

	for range 3 {
		<-done
	}

	if err := errors.Join(keywordErr, semanticErr, recentErr); err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	fused := e.fuse(keywordResults, semanticResults, opts)
	e.applyTemporal(fused, opts)
	e.applyRecencyBoost(fused, recentMessages)

	results := make([]message.ScoredMessage, 0, len(fused))
	for _, sm := range fused {
		if sm.Scores.Combined >= opts.MinScore {
			results = append(results, *sm)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scores.Combined > results[j].Scores.Combined
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	e.logger.Debug("hybrid search completed",
		zap.String("channel", opts.ChannelID),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("fused", len(fused)),
		zap.Int("returned", len(results)),
	)

	return results, nil
}

// semanticSearch embeds the query and finds its nearest neighbors. A channel
// with no embedded messages simply yields no candidates.
func (e *Engine) semanticSearch(ctx context.Context, query string, opts Options) ([]message.ScoredMessage, error) {
	if query == "" {
		return nil, nil
	}

	result, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return e.store.FindSimilar(ctx, pgvector.NewVector(result.Vector), opts.ChannelID, opts.Limit*2, e.tuning.SemanticFloor)
}

// fuse builds the score map keyed by message identity. Keyword results
// contribute rank*(1-semanticWeight); semantic results add sim*semanticWeight
// to an existing entry or seed a new one. A message present in only one path
// gets 0 for the missing path's score. Pure and deterministic given inputs.
func (e *Engine) fuse(keyword, semantic []message.ScoredMessage, opts Options) map[string]*message.ScoredMessage {
	keywordWeight := 1 - opts.SemanticWeight

	fused := make(map[string]*message.ScoredMessage, len(keyword)+len(semantic))

	for _, sm := range keyword {
		entry := sm
		entry.Scores = message.Scores{
			Keyword:  sm.Scores.Keyword,
			Combined: sm.Scores.Keyword * keywordWeight,
		}
		fused[entry.Key()] = &entry
	}

	for _, sm := range semantic {
		if existing, ok := fused[sm.Key()]; ok {
			existing.Scores.Semantic = sm.Scores.Semantic
			existing.Scores.Combined += sm.Scores.Semantic * opts.SemanticWeight
			continue
		}
		entry := sm
		entry.Scores = message.Scores{
			Semantic: sm.Scores.Semantic,
			Combined: sm.Scores.Semantic * opts.SemanticWeight,
		}
		fused[entry.Key()] = &entry
	}

	return fused
}

// applyTemporal boosts every fused candidate by its recency decay:
// combined *= 1 + exp(-decay*ageHours/24) * boostFactor. Recency is a boost,
// never the primary signal.
func (e *Engine) applyTemporal(fused map[string]*message.ScoredMessage, opts Options) {
	now := e.now()
	for _, sm := range fused {
		ageHours := now.Sub(sm.CreatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		sm.Scores.Temporal = math.Exp(-opts.TemporalDecay * ageHours / 24)
		sm.Scores.Combined *= 1 + sm.Scores.Temporal*e.tuning.TemporalBoostFactor
	}
}

// applyRecencyBoost multiplies candidates that also appear in the plain
// recency scan: topical rank plus "currently being discussed" is reinforcing
// evidence. The scan itself never sources results.
func (e *Engine) applyRecencyBoost(fused map[string]*message.ScoredMessage, recent []message.Message) {
	if len(recent) == 0 {
		return
	}

	recentKeys := make(map[string]struct{}, len(recent))
	for i := range recent {
		recentKeys[recent[i].Key()] = struct{}{}
	}

	for key, sm := range fused {
		if _, ok := recentKeys[key]; ok {
			sm.Scores.Combined *= e.tuning.RecencyPresenceBoost
		}
	}
}
