package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInteraction is emitted after the bot replies to a user.
	EventTypeInteraction = "mnemo.interaction"
)

// RetrievalMeta captures what the retrieval core contributed to a reply.
type RetrievalMeta struct {
	RecentMessages   int   `json:"recent_messages"`
	RelevantMessages int   `json:"relevant_messages"`
	Summaries        int   `json:"summaries"`
	TotalMessages    int64 `json:"total_messages"`
	ContextChars     int   `json:"context_chars"`
}

// InteractionEvent is a transport-neutral payload describing one completed
// bot interaction.
type InteractionEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	ChannelID     string        `json:"channel_id"`
	UserID        string        `json:"user_id"`
	Query         string        `json:"query"`
	ResponseChars int           `json:"response_chars"`
	Retrieval     RetrievalMeta `json:"retrieval"`
}
