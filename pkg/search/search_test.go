package search

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage/inmemory"
	testutils "github.com/mnemohq/mnemo/pkg/utils/test"
)

func TestSearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Search Suite")
}

var _ = Describe("Engine.Search", func() {
	var (
		ctx      context.Context
		driver   *inmemory.Driver
		embedder *testutils.MockEmbedder
		engine   *Engine
		now      time.Time
	)

	// seed stores a message with the given embedding at the given age.
	seed := func(channelID, ts, text string, embedding []float32, age time.Duration) {
		msg := testutils.NewMessage(channelID, ts, "U1", text)
		msg.CreatedAt = now.Add(-age)
		stored, err := driver.CreateMessage(ctx, msg)
		Expect(err).NotTo(HaveOccurred())

		if embedding != nil {
			err = driver.UpdateEmbedding(ctx, stored.ID, pgvector.NewVector(embedding), "test-model")
			Expect(err).NotTo(HaveOccurred())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

		driver = inmemory.NewDriver()
		driver.SetClock(func() time.Time { return now })

		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["deploy rollback"] = []float32{1, 0, 0}

		engine = NewEngine(driver, embedder, DefaultTuning(), zap.NewNop())
		engine.now = func() time.Time { return now }

		seed("C1", "1000.000100", "deploy rollback steps for the api", []float32{1, 0, 0}, time.Hour)
		seed("C1", "1000.000200", "lunch plans for friday", []float32{0, 1, 0}, 2*time.Hour)
		seed("C1", "0900.000100", "old deploy rollback discussion", []float32{0.9, 0.1, 0}, 90*24*time.Hour)
		seed("C2", "1000.000300", "deploy rollback steps for the api", []float32{1, 0, 0}, time.Hour)
	})

	It("returns only messages from the requested channel", func() {
		results, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).NotTo(BeEmpty())
		for _, sm := range results {
			Expect(sm.ChannelID).To(Equal("C1"))
		}
	})

	It("orders results by combined score descending", func() {
		results, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).NotTo(HaveOccurred())
		for i := 1; i < len(results); i++ {
			Expect(results[i-1].Scores.Combined).To(BeNumerically(">=", results[i].Scores.Combined))
		}
	})

	It("ranks the recent on-topic message above the stale one", func() {
		results, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(len(results)).To(BeNumerically(">=", 2))
		Expect(results[0].Timestamp).To(Equal("1000.000100"))
	})

	It("is deterministic for identical inputs", func() {
		first, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).NotTo(HaveOccurred())

		second, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(HaveLen(len(first)))
		for i := range first {
			Expect(second[i].Key()).To(Equal(first[i].Key()))
			Expect(second[i].Scores.Combined).To(Equal(first[i].Scores.Combined))
		}
	})

	It("never grows the result set when MinScore rises", func() {
		loose, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1", MinScore: 0.1})
		Expect(err).NotTo(HaveOccurred())

		strict, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1", MinScore: 0.6})
		Expect(err).NotTo(HaveOccurred())

		Expect(len(strict)).To(BeNumerically("<=", len(loose)))
		for _, sm := range strict {
			Expect(sm.Scores.Combined).To(BeNumerically(">=", 0.6))
		}
	})

	It("caps results at the limit", func() {
		results, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1", Limit: 1, MinScore: 0.01})
		Expect(err).NotTo(HaveOccurred())
		Expect(len(results)).To(BeNumerically("<=", 1))
	})

	It("fails the whole call when the semantic path fails", func() {
		embedder.FailOn = "deploy rollback"

		_, err := engine.Search(ctx, "deploy rollback", Options{ChannelID: "C1"})
		Expect(err).To(HaveOccurred())
	})

	It("searches across all channels when no channel is given", func() {
		results, err := engine.Search(ctx, "deploy rollback", Options{})
		Expect(err).NotTo(HaveOccurred())

		channels := map[string]bool{}
		for _, sm := range results {
			channels[sm.ChannelID] = true
		}
		Expect(channels).To(HaveKey("C1"))
		Expect(channels).To(HaveKey("C2"))
	})
})

var _ = Describe("score fusion", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = NewEngine(inmemory.NewDriver(), testutils.NewMockEmbedder(), DefaultTuning(), zap.NewNop())
	})

	scored := func(channelID, ts string, kw, sem float64) message.ScoredMessage {
		return message.ScoredMessage{
			Message: message.Message{ChannelID: channelID, Timestamp: ts},
			Scores:  message.Scores{Keyword: kw, Semantic: sem},
		}
	}

	It("weights both paths for a message present in both", func() {
		opts := Options{SemanticWeight: 0.7}
		fused := engine.fuse(
			[]message.ScoredMessage{scored("C1", "1", 0.8, 0)},
			[]message.ScoredMessage{scored("C1", "1", 0, 0.9)},
			opts,
		)

		Expect(fused).To(HaveLen(1))
		entry := fused["C1/1"]
		Expect(entry.Scores.Combined).To(BeNumerically("~", 0.8*0.3+0.9*0.7, 1e-9))
		Expect(entry.Scores.Keyword).To(Equal(0.8))
		Expect(entry.Scores.Semantic).To(Equal(0.9))
	})

	It("scores single-path messages with zero for the missing path", func() {
		opts := Options{SemanticWeight: 0.7}
		fused := engine.fuse(
			[]message.ScoredMessage{scored("C1", "1", 0.8, 0)},
			[]message.ScoredMessage{scored("C1", "2", 0, 0.9)},
			opts,
		)

		Expect(fused).To(HaveLen(2))
		Expect(fused["C1/1"].Scores.Semantic).To(BeZero())
		Expect(fused["C1/1"].Scores.Combined).To(BeNumerically("~", 0.8*0.3, 1e-9))
		Expect(fused["C1/2"].Scores.Keyword).To(BeZero())
		Expect(fused["C1/2"].Scores.Combined).To(BeNumerically("~", 0.9*0.7, 1e-9))
	})

	It("clamps future timestamps to age zero", func() {
		now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		engine.now = func() time.Time { return now }

		sm := scored("C1", "1", 0.5, 0)
		sm.CreatedAt = now.Add(time.Hour)
		fused := map[string]*message.ScoredMessage{"C1/1": &sm}

		engine.applyTemporal(fused, Options{TemporalDecay: 0.1})
		Expect(sm.Scores.Temporal).To(Equal(1.0))
	})
})

var _ = Describe("Engine.Rerank", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = NewEngine(inmemory.NewDriver(), testutils.NewMockEmbedder(), DefaultTuning(), zap.NewNop())
	})

	ranked := func(ts, author, text string, combined float64) message.ScoredMessage {
		return message.ScoredMessage{
			Message: message.Message{ChannelID: "C1", Timestamp: ts, AuthorID: author, Text: text},
			Scores:  message.Scores{Combined: combined},
		}
	}

	It("returns empty input unchanged", func() {
		Expect(engine.Rerank(nil, RerankOptions{})).To(BeEmpty())
	})

	It("discounts near-duplicates of higher-ranked results", func() {
		results := []message.ScoredMessage{
			ranked("1", "U1", "the deploy failed on friday", 0.9),
			ranked("2", "U2", "the deploy failed on friday", 0.85),
			ranked("3", "U3", "kafka consumer lag is rising", 0.5),
		}

		reranked := engine.Rerank(results, RerankOptions{DiversityWeight: 0.5})

		byKey := map[string]float64{}
		for _, sm := range reranked {
			byKey[sm.Key()] = sm.Scores.Combined
		}

		Expect(byKey["C1/1"]).To(Equal(0.9))
		Expect(byKey["C1/2"]).To(BeNumerically("<", 0.85))
		Expect(byKey["C1/3"]).To(Equal(0.5))
	})

	It("promotes distinct results above discounted duplicates", func() {
		results := []message.ScoredMessage{
			ranked("1", "U1", "the deploy failed on friday", 0.9),
			ranked("2", "U2", "the deploy failed on friday", 0.85),
			ranked("3", "U3", "kafka consumer lag is rising", 0.5),
		}

		reranked := engine.Rerank(results, RerankOptions{DiversityWeight: 0.5})
		Expect(reranked[0].Timestamp).To(Equal("1"))
		Expect(reranked[1].Timestamp).To(Equal("3"))
	})

	It("applies author boosts", func() {
		results := []message.ScoredMessage{
			ranked("1", "U1", "alpha bravo", 0.6),
			ranked("2", "U2", "charlie delta", 0.58),
		}

		reranked := engine.Rerank(results, RerankOptions{
			AuthorBoosts: map[string]float64{"U2": 1.2},
		})

		Expect(reranked[0].AuthorID).To(Equal("U2"))
		Expect(reranked[0].Scores.Combined).To(BeNumerically("~", 0.58*1.2, 1e-9))
	})

	It("does not mutate the input slice", func() {
		results := []message.ScoredMessage{
			ranked("1", "U1", "the deploy failed on friday", 0.9),
			ranked("2", "U2", "the deploy failed on friday", 0.85),
		}

		engine.Rerank(results, RerankOptions{DiversityWeight: 0.5})
		Expect(results[1].Scores.Combined).To(Equal(0.85))
	})
})
