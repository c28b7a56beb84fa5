package cached_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memcache "github.com/mnemohq/mnemo/pkg/cache/memory"
	"github.com/mnemohq/mnemo/pkg/embeddings/cached"
	testutils "github.com/mnemohq/mnemo/pkg/utils/test"
)

func TestCached(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cached Embedder Suite")
}

var _ = Describe("Embedder", func() {
	var (
		ctx      context.Context
		inner    *testutils.MockEmbedder
		embedder *cached.Embedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		inner = testutils.NewMockEmbedder()
		inner.Embeddings["hello world"] = []float32{0.5, 0.25, 1}
		embedder = cached.New(inner, memcache.New(memcache.Config{}), 0)
	})

	Describe("Embed", func() {
		It("computes on first call and serves repeats from cache", func() {
			first, err := embedder.Embed(ctx, "hello world")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Vector).To(Equal([]float32{0.5, 0.25, 1}))
			Expect(inner.Calls).To(Equal(1))

			second, err := embedder.Embed(ctx, "hello world")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Vector).To(Equal(first.Vector))
			Expect(inner.Calls).To(Equal(1))
		})

		It("treats whitespace and case variants as the same content", func() {
			_, err := embedder.Embed(ctx, "hello world")
			Expect(err).NotTo(HaveOccurred())

			_, err = embedder.Embed(ctx, "  Hello   WORLD ")
			Expect(err).NotTo(HaveOccurred())
			Expect(inner.Calls).To(Equal(1))
		})

		It("propagates provider failures", func() {
			inner.FailOn = "bad input"
			_, err := embedder.Embed(ctx, "bad input")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("EmbedBatch", func() {
		It("embeds only the uncached texts", func() {
			_, err := embedder.Embed(ctx, "hello world")
			Expect(err).NotTo(HaveOccurred())
			Expect(inner.Calls).To(Equal(1))

			results, err := embedder.EmbedBatch(ctx, []string{"hello world", "something new"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Vector).To(Equal([]float32{0.5, 0.25, 1}))
			Expect(inner.Calls).To(Equal(2))
		})

		It("returns results in input order", func() {
			inner.Embeddings["a"] = []float32{1, 0, 0}
			inner.Embeddings["b"] = []float32{0, 1, 0}

			results, err := embedder.EmbedBatch(ctx, []string{"a", "b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Vector).To(Equal([]float32{1, 0, 0}))
			Expect(results[1].Vector).To(Equal([]float32{0, 1, 0}))
		})

		It("caches batch results for later single lookups", func() {
			_, err := embedder.EmbedBatch(ctx, []string{"hello world"})
			Expect(err).NotTo(HaveOccurred())
			Expect(inner.Calls).To(Equal(1))

			_, err = embedder.Embed(ctx, "hello world")
			Expect(err).NotTo(HaveOccurred())
			Expect(inner.Calls).To(Equal(1))
		})

		It("handles an empty batch", func() {
			results, err := embedder.EmbedBatch(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("ContentHash", func() {
		It("is stable across whitespace and case", func() {
			Expect(cached.ContentHash("Hello  World")).To(Equal(cached.ContentHash("hello world")))
		})

		It("differs for different content", func() {
			Expect(cached.ContentHash("hello")).NotTo(Equal(cached.ContentHash("goodbye")))
		})
	})
})
