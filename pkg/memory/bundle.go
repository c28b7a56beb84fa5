// Package memory assembles the retrieval context for a response: recent
// messages, semantically relevant history, thread context, summaries, and
// user profiles, bundled per request and rendered into prompt text.
package memory

import (
	"github.com/mnemohq/mnemo/pkg/message"
)

// Bundle is the context builder's output. It is ephemeral, rebuilt per
// request, and may be cached briefly keyed by (channel, query, options).
type Bundle struct {
	// RecentMessages is the recent channel window, ordered by source
	// timestamp ascending.
	RecentMessages []message.Message `json:"recent_messages"`

	// RelevantMessages are the semantically relevant older messages,
	// ordered by score descending and deduplicated against RecentMessages.
	RelevantMessages []message.ScoredMessage `json:"relevant_messages"`

	// ThreadContext holds the thread's messages when a thread root was
	// requested.
	ThreadContext []message.Message `json:"thread_context,omitempty"`

	// Summaries are the most recent channel digests, newest first.
	Summaries []message.ConversationSummary `json:"summaries,omitempty"`

	// Profiles maps author id to profile for authors in RecentMessages.
	Profiles map[string]*message.UserProfile `json:"profiles,omitempty"`

	// TotalMessages is the channel's total stored message count, a
	// context-richness signal for downstream consumers.
	TotalMessages int64 `json:"total_messages"`
}

// EmptyBundle returns the minimal bundle used when context assembly fails:
// response generation proceeds degraded rather than blocked.
func EmptyBundle() *Bundle {
	return &Bundle{
		RecentMessages:   []message.Message{},
		RelevantMessages: []message.ScoredMessage{},
	}
}

// Empty reports whether the bundle carries no context at all.
func (b *Bundle) Empty() bool {
	return len(b.RecentMessages) == 0 &&
		len(b.RelevantMessages) == 0 &&
		len(b.ThreadContext) == 0 &&
		len(b.Summaries) == 0 &&
		len(b.Profiles) == 0
}
