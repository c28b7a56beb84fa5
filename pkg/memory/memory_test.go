package memory_test

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	memcache "github.com/mnemohq/mnemo/pkg/cache/memory"
	"github.com/mnemohq/mnemo/pkg/memory"
	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage/inmemory"
	testutils "github.com/mnemohq/mnemo/pkg/utils/test"
)

func TestMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Suite")
}

var _ = Describe("Builder.BuildContext", func() {
	var (
		ctx       context.Context
		driver    *inmemory.Driver
		summaries *inmemory.SummaryStore
		profiles  *inmemory.ProfileStore
		embedder  *testutils.MockEmbedder
		builder   *memory.Builder
		now       time.Time
	)

	seed := func(channelID, ts, author, text string, embedding []float32, age time.Duration) {
		msg := testutils.NewMessage(channelID, ts, author, text)
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
		summaries = inmemory.NewSummaryStore()
		profiles = inmemory.NewProfileStore()

		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["what happened during the deploy"] = []float32{1, 0, 0}

		builder = memory.NewBuilder(driver, summaries, profiles, embedder, nil, zap.NewNop())
	})

	It("returns recent messages and the channel total without a query", func() {
		seed("C1", "1000.000100", "U1", "the deploy is rolling", nil, time.Hour)
		seed("C1", "1000.000200", "U2", "ack, watching the dashboards", nil, 30*time.Minute)

		bundle := builder.BuildContext(ctx, "C1", "", memory.Options{})
		Expect(bundle.RecentMessages).To(HaveLen(2))
		Expect(bundle.TotalMessages).To(Equal(int64(2)))
		Expect(bundle.RelevantMessages).To(BeEmpty())
	})

	It("never calls the embedder without a query", func() {
		seed("C1", "1000.000100", "U1", "the deploy is rolling", nil, time.Hour)

		builder.BuildContext(ctx, "C1", "", memory.Options{})
		Expect(embedder.Calls).To(BeZero())
	})

	It("excludes recent messages from the relevant set", func() {
		// Recent and embedded: must appear in recent only.
		seed("C1", "1000.000100", "U1", "the deploy failed", []float32{1, 0, 0}, time.Hour)
		// Old and embedded: must appear in relevant.
		seed("C1", "0900.000100", "U2", "last month's deploy failed the same way", []float32{0.95, 0.05, 0}, 60*24*time.Hour)

		bundle := builder.BuildContext(ctx, "C1", "what happened during the deploy", memory.Options{})

		recentKeys := map[string]bool{}
		for i := range bundle.RecentMessages {
			recentKeys[bundle.RecentMessages[i].Key()] = true
		}
		Expect(recentKeys).To(HaveKey("C1/1000.000100"))

		Expect(bundle.RelevantMessages).NotTo(BeEmpty())
		for _, sm := range bundle.RelevantMessages {
			Expect(recentKeys).NotTo(HaveKey(sm.Key()))
		}
	})

	It("attaches thread context when a thread root is given", func() {
		seed("C1", "1000.000100", "U1", "thread root", nil, time.Hour)
		root := "1000.000100"
		reply := testutils.NewThreadedMessage("C1", "1000.000150", root, "U2", "thread reply")
		reply.CreatedAt = now.Add(-30 * time.Minute)
		_, err := driver.CreateMessage(ctx, reply)
		Expect(err).NotTo(HaveOccurred())

		bundle := builder.BuildContext(ctx, "C1", "", memory.Options{ThreadTS: root})
		Expect(bundle.ThreadContext).To(HaveLen(2))
	})

	It("attaches summaries and profiles when requested", func() {
		seed("C1", "1000.000100", "U1", "hello", nil, time.Hour)
		summaries.Add(message.ConversationSummary{
			ID: "s1", ChannelID: "C1", Summary: "talked about deploys",
			StartTS: "0900.000000", EndTS: "0950.000000",
		})
		profiles.Add(message.UserProfile{UserID: "U1", DisplayName: "Ada"})

		bundle := builder.BuildContext(ctx, "C1", "", memory.Options{
			IncludeSummaries: true,
			IncludeProfiles:  true,
		})
		Expect(bundle.Summaries).To(HaveLen(1))
		Expect(bundle.Profiles).To(HaveKey("U1"))
	})

	It("tolerates authors without profiles", func() {
		seed("C1", "1000.000100", "U1", "hello", nil, time.Hour)
		seed("C1", "1000.000200", "U9", "hi there", nil, time.Hour)
		profiles.Add(message.UserProfile{UserID: "U1", DisplayName: "Ada"})

		bundle := builder.BuildContext(ctx, "C1", "", memory.Options{IncludeProfiles: true})
		Expect(bundle.Profiles).To(HaveLen(1))
	})

	It("returns the empty bundle when the store fails", func() {
		failing := memory.NewBuilder(&testutils.FailingStore{}, summaries, profiles, embedder, nil, zap.NewNop())

		bundle := failing.BuildContext(ctx, "C1", "anything", memory.Options{})
		Expect(bundle).NotTo(BeNil())
		Expect(bundle.Empty()).To(BeTrue())
	})

	It("returns the empty bundle when query embedding fails", func() {
		seed("C1", "1000.000100", "U1", "hello", nil, time.Hour)
		embedder.FailAll = true

		bundle := builder.BuildContext(ctx, "C1", "anything", memory.Options{})
		Expect(bundle.Empty()).To(BeTrue())
	})

	Context("with bundle caching enabled", func() {
		BeforeEach(func() {
			builder = memory.NewBuilder(driver, summaries, profiles, embedder,
				memcache.New(memcache.Config{}), zap.NewNop())
		})

		It("serves a repeat build from cache", func() {
			seed("C1", "1000.000100", "U1", "hello", nil, time.Hour)

			first := builder.BuildContext(ctx, "C1", "", memory.Options{UseCache: true})
			Expect(first.RecentMessages).To(HaveLen(1))

			// A new message does not show up until the cached bundle expires.
			seed("C1", "1000.000200", "U2", "hi", nil, 30*time.Minute)
			second := builder.BuildContext(ctx, "C1", "", memory.Options{UseCache: true})
			Expect(second.RecentMessages).To(HaveLen(1))
		})

		It("keys the cache by options", func() {
			seed("C1", "1000.000100", "U1", "hello", nil, time.Hour)

			builder.BuildContext(ctx, "C1", "", memory.Options{UseCache: true})
			narrower := builder.BuildContext(ctx, "C1", "", memory.Options{UseCache: true, Hours: 1, RecentLimit: 5})
			Expect(narrower.RecentMessages).To(HaveLen(1))
		})
	})
})

var _ = Describe("FormatContext", func() {
	It("renders an empty bundle to an empty string", func() {
		Expect(memory.FormatContext(memory.EmptyBundle())).To(Equal(""))
		Expect(memory.FormatContext(nil)).To(Equal(""))
	})

	It("renders sections in the fixed order", func() {
		bundle := &memory.Bundle{
			RecentMessages: []message.Message{
				{ChannelID: "C1", Timestamp: "2", AuthorID: "U1", Text: "recent text"},
			},
			RelevantMessages: []message.ScoredMessage{
				{Message: message.Message{ChannelID: "C1", Timestamp: "1", AuthorID: "U2", Text: "older text"}},
			},
			Summaries: []message.ConversationSummary{
				{ChannelID: "C1", Summary: "the digest", KeyTopics: []string{"deploys"}},
			},
			Profiles: map[string]*message.UserProfile{
				"U1": {UserID: "U1", DisplayName: "Ada"},
			},
		}

		text := memory.FormatContext(bundle)
		summariesIdx := strings.Index(text, "=== Conversation Summaries ===")
		profilesIdx := strings.Index(text, "=== User Profiles ===")
		relevantIdx := strings.Index(text, "=== Related Past Conversations ===")
		recentIdx := strings.Index(text, "=== Recent Conversation ===")

		Expect(summariesIdx).To(BeNumerically(">=", 0))
		Expect(profilesIdx).To(BeNumerically(">", summariesIdx))
		Expect(relevantIdx).To(BeNumerically(">", profilesIdx))
		Expect(recentIdx).To(BeNumerically(">", relevantIdx))
	})

	It("resolves author display names through profiles", func() {
		bundle := &memory.Bundle{
			RecentMessages: []message.Message{
				{ChannelID: "C1", Timestamp: "1", AuthorID: "U1", Text: "hello"},
				{ChannelID: "C1", Timestamp: "2", AuthorID: "U2", Text: "hi"},
			},
			Profiles: map[string]*message.UserProfile{
				"U1": {UserID: "U1", DisplayName: "Ada"},
			},
		}

		text := memory.FormatContext(bundle)
		Expect(text).To(ContainSubstring("Ada: hello"))
		Expect(text).To(ContainSubstring("U2: hi"))
	})

	It("omits sections with no data", func() {
		bundle := &memory.Bundle{
			RecentMessages: []message.Message{
				{ChannelID: "C1", Timestamp: "1", AuthorID: "U1", Text: "hello"},
			},
		}

		text := memory.FormatContext(bundle)
		Expect(text).To(ContainSubstring("=== Recent Conversation ==="))
		Expect(text).NotTo(ContainSubstring("=== Conversation Summaries ==="))
		Expect(text).NotTo(ContainSubstring("=== Thread Context ==="))
	})
})

var _ = Describe("AnalyzeConversation", func() {
	It("marks an empty set as NoData with zeroed stats", func() {
		stats := memory.AnalyzeConversation(nil)
		Expect(stats.NoData).To(BeTrue())
		Expect(stats.MessageCount).To(BeZero())
		Expect(stats.AverageLength).To(BeZero())
	})

	It("computes counts and average length", func() {
		stats := memory.AnalyzeConversation([]message.Message{
			{AuthorID: "U1", Text: "abcd"},
			{AuthorID: "U2", Text: "ab"},
			{AuthorID: "U1", Text: "abcdef"},
		})

		Expect(stats.NoData).To(BeFalse())
		Expect(stats.MessageCount).To(Equal(3))
		Expect(stats.UniqueAuthors).To(Equal(2))
		Expect(stats.AverageLength).To(BeNumerically("~", 4.0, 1e-9))
	})
})
