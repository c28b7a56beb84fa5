// Package storage defines the interfaces for persisting and retrieving
// channel messages, conversation summaries, and user profiles. Backends live
// in subpackages (postgres for deployments, inmemory for tests and local
// runs).
package storage

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/mnemohq/mnemo/pkg/message"
)

// Filter narrows FindByChannel scans.
type Filter struct {
	// AfterTS restricts results to messages with a source timestamp
	// strictly greater than this value. Empty means no lower bound.
	AfterTS string

	// AuthorID restricts results to a single author. Empty means any.
	AuthorID string

	// Limit caps the result count. Zero means the backend default.
	Limit int
}

// Driver is the message store contract. Implementations must make
// CreateMessage idempotent on the (channel, timestamp) unique key: inserting
// a duplicate is a successful no-op that returns the already-stored message.
type Driver interface {
	// CreateMessage persists a message. On a (channel, timestamp) conflict
	// the existing message is returned and no write occurs.
	CreateMessage(ctx context.Context, msg *message.Message) (*message.Message, error)

	// GetRecentMessages returns up to limit messages for the channel posted
	// within the past hours, ordered by source timestamp ascending.
	GetRecentMessages(ctx context.Context, channelID string, hours, limit int) ([]message.Message, error)

	// SearchKeyword runs a ranked full-text search over message text,
	// optionally scoped to a channel. Rank scores are normalized to [0,1].
	SearchKeyword(ctx context.Context, channelID, query string, limit int) ([]message.ScoredMessage, error)

	// FindSimilar returns the nearest neighbors of the embedding by cosine
	// similarity over messages with non-null embeddings, optionally scoped
	// to a channel. Results below threshold are excluded.
	FindSimilar(ctx context.Context, embedding pgvector.Vector, channelID string, limit int, threshold float64) ([]message.ScoredMessage, error)

	// FindThread returns up to limit messages sharing the thread root
	// timestamp, ordered by source timestamp ascending.
	FindThread(ctx context.Context, channelID, threadTS string, limit int) ([]message.Message, error)

	// FindByChannel returns messages for a channel matching the filter,
	// ordered by source timestamp ascending.
	FindByChannel(ctx context.Context, channelID string, filter Filter) ([]message.Message, error)

	// CountByChannel returns the total stored message count for a channel,
	// archived messages included.
	CountByChannel(ctx context.Context, channelID string) (int64, error)

	// UpdateEmbedding attaches an embedding to a stored message. This is the
	// only permitted mutation of a message.
	UpdateEmbedding(ctx context.Context, id string, embedding pgvector.Vector, modelTag string) error

	// FindUnembedded returns up to limit messages whose embedding has not
	// been populated yet, oldest first. Used by the backfill worker.
	FindUnembedded(ctx context.Context, limit int) ([]message.Message, error)

	// Close releases backend resources.
	Close() error
}

// SummaryStore reads conversation summaries written by the out-of-band
// summarizer job.
type SummaryStore interface {
	// FindByChannel returns the most recent summaries for a channel,
	// newest first.
	FindByChannel(ctx context.Context, channelID string, limit int) ([]message.ConversationSummary, error)
}

// ProfileStore reads user profiles written by the out-of-band profiling job.
type ProfileStore interface {
	// FindByUserID returns the profile for a user, or NotFoundError when
	// none exists.
	FindByUserID(ctx context.Context, userID string) (*message.UserProfile, error)
}

// Archiver is implemented by backends that support moving messages past the
// retention window into cold storage. Archived messages remain visible to
// queries through the backend's union view.
type Archiver interface {
	// ArchiveOlderThan moves messages created more than retentionDays ago
	// to the archive and returns the number of messages moved.
	ArchiveOlderThan(ctx context.Context, retentionDays int) (int64, error)
}
