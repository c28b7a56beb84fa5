package eventstream_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mnemohq/mnemo/pkg/eventstream"
	"github.com/mnemohq/mnemo/pkg/eventstream/nop"
)

func TestEventStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EventStream Suite")
}

var _ = Describe("nop publisher", func() {
	var publisher *nop.Publisher

	BeforeEach(func() {
		publisher = nop.NewPublisher()
	})

	It("rejects nil events", func() {
		err := publisher.PublishInteraction(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("accepts well-formed events", func() {
		err := publisher.PublishInteraction(context.Background(), &eventstream.InteractionEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeInteraction,
			EventID:       "evt-1",
			EmittedAt:     time.Now().UTC(),
			ChannelID:     "C1",
			UserID:        "U1",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes cleanly", func() {
		Expect(publisher.Close()).To(Succeed())
	})
})
