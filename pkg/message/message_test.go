package message_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pgvector/pgvector-go"

	"github.com/mnemohq/mnemo/pkg/message"
)

func TestMessage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Message Suite")
}

var _ = Describe("Message", func() {
	Describe("Key", func() {
		It("joins channel and source timestamp", func() {
			m := message.Message{ChannelID: "C1", Timestamp: "1000.000100"}
			Expect(m.Key()).To(Equal("C1/1000.000100"))
		})

		It("differs across channels for the same timestamp", func() {
			a := message.Message{ChannelID: "C1", Timestamp: "1000.000100"}
			b := message.Message{ChannelID: "C2", Timestamp: "1000.000100"}
			Expect(a.Key()).NotTo(Equal(b.Key()))
		})
	})

	Describe("Embedded", func() {
		It("is false until an embedding is attached", func() {
			m := message.Message{}
			Expect(m.Embedded()).To(BeFalse())

			v := pgvector.NewVector([]float32{1, 0})
			m.Embedding = &v
			Expect(m.Embedded()).To(BeTrue())
		})
	})

	Describe("Age", func() {
		It("measures from CreatedAt", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			m := message.Message{CreatedAt: now.Add(-2 * time.Hour)}
			Expect(m.Age(now)).To(Equal(2 * time.Hour))
		})
	})

	Describe("Validate", func() {
		It("requires a channel id and a timestamp", func() {
			Expect((&message.Message{Timestamp: "1"}).Validate()).To(HaveOccurred())
			Expect((&message.Message{ChannelID: "C1"}).Validate()).To(HaveOccurred())
			Expect((&message.Message{ChannelID: "C1", Timestamp: "1"}).Validate()).To(Succeed())
		})
	})
})

var _ = Describe("UserProfile", func() {
	Describe("Display", func() {
		It("returns the display name when set", func() {
			p := &message.UserProfile{UserID: "U1", DisplayName: "Ada"}
			Expect(p.Display()).To(Equal("Ada"))
		})

		It("returns empty for nil or unnamed profiles", func() {
			var p *message.UserProfile
			Expect(p.Display()).To(Equal(""))
			Expect((&message.UserProfile{UserID: "U1"}).Display()).To(Equal(""))
		})
	})
})
