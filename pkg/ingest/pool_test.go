package ingest_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mnemohq/mnemo/pkg/ingest"
	"github.com/mnemohq/mnemo/pkg/storage"
	"github.com/mnemohq/mnemo/pkg/storage/inmemory"
	testutils "github.com/mnemohq/mnemo/pkg/utils/test"
	"go.uber.org/zap"
)

func TestIngest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ingest Suite")
}

var _ = Describe("Pool", func() {
	var (
		ctx      context.Context
		driver   *inmemory.Driver
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder()
	})

	newPool := func(queueSize uint) *ingest.Pool {
		pool, err := ingest.NewPool(&ingest.Config{
			Store:      driver,
			Embedder:   embedder,
			ModelTag:   "test-model",
			NumWorkers: 1,
			QueueSize:  queueSize,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return pool
	}

	It("requires a store and an embedder", func() {
		_, err := ingest.NewPool(&ingest.Config{Logger: zap.NewNop()})
		Expect(err).To(HaveOccurred())
	})

	It("embeds an enqueued message asynchronously", func() {
		pool := newPool(8)
		defer pool.Close()

		stored, err := driver.CreateMessage(ctx, testutils.NewMessage("C1", "1000.000100", "U1", "embed me"))
		Expect(err).NotTo(HaveOccurred())

		Expect(pool.Enqueue(ingest.Job{MessageID: stored.ID, Text: stored.Text})).To(BeTrue())

		Eventually(func() int {
			pending, err := driver.FindUnembedded(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			return len(pending)
		}, time.Second, 10*time.Millisecond).Should(BeZero())
	})

	It("records the model tag on the embedding", func() {
		pool := newPool(8)

		stored, err := driver.CreateMessage(ctx, testutils.NewMessage("C1", "1000.000100", "U1", "embed me"))
		Expect(err).NotTo(HaveOccurred())

		pool.Enqueue(ingest.Job{MessageID: stored.ID, Text: stored.Text})
		pool.Close()

		msgs, err := driver.FindByChannel(ctx, "C1", storage.Filter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].EmbeddingModel).To(Equal("test-model"))
	})

	It("skips jobs with empty text", func() {
		pool := newPool(8)

		Expect(pool.Enqueue(ingest.Job{MessageID: "m1", Text: ""})).To(BeTrue())
		pool.Close()
		Expect(embedder.Calls).To(BeZero())
	})

	Describe("Backfill", func() {
		It("embeds the whole backlog in batches", func() {
			for i, ts := range []string{"1000.000100", "1000.000200", "1000.000300"} {
				msg := testutils.NewMessage("C1", ts, "U1", "text")
				msg.CreatedAt = time.Now().Add(-time.Duration(i) * time.Minute)
				_, err := driver.CreateMessage(ctx, msg)
				Expect(err).NotTo(HaveOccurred())
			}

			pool := newPool(8)
			defer pool.Close()

			total, err := pool.Backfill(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(3))

			pending, err := driver.FindUnembedded(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})

		It("returns zero on an empty backlog", func() {
			pool := newPool(8)
			defer pool.Close()

			total, err := pool.Backfill(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})

		It("stops when the embedder fails", func() {
			_, err := driver.CreateMessage(ctx, testutils.NewMessage("C1", "1000.000100", "U1", "text"))
			Expect(err).NotTo(HaveOccurred())

			embedder.FailAll = true
			pool := newPool(8)
			defer pool.Close()

			_, err = pool.Backfill(ctx, 100)
			Expect(err).To(HaveOccurred())
		})
	})
})
