package bot

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mnemohq/mnemo/pkg/memory"
	"github.com/mnemohq/mnemo/pkg/message"
)

func TestBot(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bot Suite")
}

var _ = Describe("stripMention", func() {
	It("removes the bot mention and trims whitespace", func() {
		Expect(stripMention("<@UBOT> what broke?", "UBOT")).To(Equal("what broke?"))
	})

	It("leaves other mentions intact", func() {
		Expect(stripMention("<@UBOT> ask <@U1>", "UBOT")).To(Equal("ask <@U1>"))
	})

	It("handles text without a mention", func() {
		Expect(stripMention("plain question", "UBOT")).To(Equal("plain question"))
	})
})

var _ = Describe("contextOptions", func() {
	It("carries the configured assembly options into every mention", func() {
		b := &Bot{memoryOpts: memory.Options{
			RecentLimit:   7,
			RelevantLimit: 3,
			Hours:         48,
			UseCache:      true,
		}}

		opts := b.contextOptions("123.456")
		Expect(opts.RecentLimit).To(Equal(7))
		Expect(opts.RelevantLimit).To(Equal(3))
		Expect(opts.Hours).To(Equal(48))
		Expect(opts.UseCache).To(BeTrue())
		Expect(opts.ThreadTS).To(Equal("123.456"))
		Expect(opts.IncludeSummaries).To(BeTrue())
		Expect(opts.IncludeProfiles).To(BeTrue())
	})
})

var _ = Describe("formatSearchResults", func() {
	It("reports empty result sets", func() {
		Expect(formatSearchResults("deploy", nil)).To(ContainSubstring("No results"))
	})

	It("lists results with scores", func() {
		results := []message.ScoredMessage{
			{
				Message: message.Message{ChannelID: "C1", Timestamp: "1", AuthorID: "U1", Text: "the deploy failed"},
				Scores:  message.Scores{Combined: 0.92},
			},
		}

		text := formatSearchResults("deploy", results)
		Expect(text).To(ContainSubstring("U1"))
		Expect(text).To(ContainSubstring("the deploy failed"))
		Expect(text).To(ContainSubstring("0.92"))
	})
})
