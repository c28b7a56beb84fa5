// Package message defines the core data model for the mnemo memory system:
// stored channel messages, per-retrieval scoring decorations, and the derived
// summary/profile records produced by out-of-band jobs.
package message

import (
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimensions is the fixed dimensionality of message embeddings.
const EmbeddingDimensions = 1536

// Message is a single stored channel message. A message is immutable once its
// embedding has been attached; the embedding itself is populated
// asynchronously after ingestion and is nil until then.
type Message struct {
	// ID is a ULID assigned at ingestion.
	ID string `json:"id"`

	// ChannelID is the channel the message was posted in.
	ChannelID string `json:"channel_id"`

	// AuthorID is the posting user's id.
	AuthorID string `json:"author_id"`

	// Text is the raw message text.
	Text string `json:"text"`

	// Timestamp is the source timestamp, unique per channel. Together with
	// ChannelID it forms the message identity used for idempotent ingestion.
	Timestamp string `json:"timestamp"`

	// ThreadTS is the thread-root timestamp when the message belongs to a
	// thread, nil otherwise.
	ThreadTS *string `json:"thread_ts,omitempty"`

	// ParentID optionally references the message this one replies to.
	ParentID *string `json:"parent_id,omitempty"`

	// Context carries free-form metadata attached at ingestion.
	Context map[string]string `json:"context,omitempty"`

	// Embedding is the vector representation of Text. Nil until the async
	// embedding worker has processed the message.
	Embedding *pgvector.Vector `json:"-"`

	// EmbeddingModel tags which model produced the embedding.
	EmbeddingModel string `json:"embedding_model,omitempty"`

	// Archived marks messages moved to cold storage after the retention
	// window. Archived messages remain queryable through the union view.
	Archived bool `json:"archived,omitempty"`

	// CreatedAt is the ingestion time.
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the message identity used for dedup and score fusion:
// (channel, source timestamp) is unique by construction.
func (m *Message) Key() string {
	return m.ChannelID + "/" + m.Timestamp
}

// Embedded reports whether the embedding has been populated.
func (m *Message) Embedded() bool {
	return m.Embedding != nil
}

// Age returns how old the message is relative to now, based on CreatedAt.
func (m *Message) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// Scores holds the per-path retrieval scores for a message within a single
// hybrid-search call.
type Scores struct {
	// Keyword is the normalized full-text rank in [0,1].
	Keyword float64 `json:"keyword"`

	// Semantic is the cosine similarity in [0,1].
	Semantic float64 `json:"semantic"`

	// Temporal is the recency decay factor in (0,1].
	Temporal float64 `json:"temporal"`

	// Combined is the fused ranking score.
	Combined float64 `json:"combined"`
}

// ScoredMessage decorates a Message with retrieval scores. It is ephemeral
// and only exists within a retrieval call.
type ScoredMessage struct {
	Message
	Scores Scores `json:"scores"`
}

// ConversationSummary is a periodic digest of a channel window, produced by
// the out-of-band summarizer job. Read-only to the retrieval core.
type ConversationSummary struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	Summary        string    `json:"summary"`
	KeyTopics      []string  `json:"key_topics"`
	Participants   []string  `json:"participants"`
	Mood           string    `json:"mood,omitempty"`
	NotableMoments []string  `json:"notable_moments,omitempty"`
	StartTS        string    `json:"start_ts"`
	EndTS          string    `json:"end_ts"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserProfile is derived personality/interest data per user, produced by the
// out-of-band profiling job. Read-only to the retrieval core.
type UserProfile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Personality string    `json:"personality,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	LastActive  time.Time `json:"last_active"`
}

// Display returns the best available display name for the profile's user.
func (p *UserProfile) Display() string {
	if p == nil || p.DisplayName == "" {
		return ""
	}
	return p.DisplayName
}

// Validate checks the fields required for ingestion.
func (m *Message) Validate() error {
	if m.ChannelID == "" {
		return fmt.Errorf("message missing channel id")
	}
	if m.Timestamp == "" {
		return fmt.Errorf("message missing source timestamp")
	}
	return nil
}
