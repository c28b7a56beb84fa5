package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// schema creates the message tables and their retrieval indexes: the unique
// (channel_id, ts) ingestion key, the cosine HNSW index for vector search,
// the GIN index for full-text search, and the (channel_id, created_at)
// composite for windowed scans. Archived messages live in a parallel table
// and remain queryable through the messages_all union view.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	channel_id      TEXT NOT NULL,
	author_id       TEXT NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	ts              TEXT NOT NULL,
	thread_ts       TEXT,
	parent_id       TEXT,
	context         JSONB,
	embedding       vector(1536),
	embedding_model TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (channel_id, ts)
);

CREATE TABLE IF NOT EXISTS messages_archive (LIKE messages INCLUDING ALL);

CREATE INDEX IF NOT EXISTS messages_channel_created_idx
	ON messages (channel_id, created_at);
CREATE INDEX IF NOT EXISTS messages_fts_idx
	ON messages USING GIN (to_tsvector('english', body));
CREATE INDEX IF NOT EXISTS messages_embedding_idx
	ON messages USING hnsw (embedding vector_cosine_ops);

CREATE OR REPLACE VIEW messages_all AS
	SELECT m.*, false AS archived FROM messages m
	UNION ALL
	SELECT a.*, true AS archived FROM messages_archive a;
`

const messageColumns = `id, channel_id, author_id, body, ts, thread_ts,
	parent_id, context, embedding, COALESCE(embedding_model, '') AS embedding_model, archived, created_at`

// Store implements storage.Driver and storage.Archiver on PostgreSQL. The
// derived summary and profile tables are read through SummaryStore and
// ProfileStore, which share the same pool.
type Store struct {
	pool   *Pool
	logger *zap.Logger
}

// NewStore creates a PostgreSQL store on an established pool and runs schema
// migration.
func NewStore(ctx context.Context, pool *Pool, logger *zap.Logger) (*Store, error) {
	if _, err := pool.pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool, for health checks and
// metrics exposure.
func (s *Store) Pool() *Pool {
	return s.pool
}

// CreateMessage persists a message. The unique (channel_id, ts) constraint
// absorbs duplicate delivery: a conflicting insert is a no-op that returns
// the already-stored message.
func (s *Store) CreateMessage(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tag, err := s.pool.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, author_id, body, ts, thread_ts, parent_id, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel_id, ts) DO NOTHING
	`, msg.ID, msg.ChannelID, msg.AuthorID, msg.Text, msg.Timestamp,
		msg.ThreadTS, msg.ParentID, msg.Context, createdAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return s.findByIdentity(ctx, msg.ChannelID, msg.Timestamp)
	}

	stored := *msg
	stored.CreatedAt = createdAt
	return &stored, nil
}

func (s *Store) findByIdentity(ctx context.Context, channelID, ts string) (*message.Message, error) {
	row := s.pool.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages_all
		WHERE channel_id = $1 AND ts = $2
	`, channelID, ts)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NotFoundError{Kind: "message", ID: channelID + "/" + ts}
		}
		return nil, err
	}

	return msg, nil
}

// GetRecentMessages returns up to limit messages in the past hours for the
// channel, ordered by source timestamp ascending.
func (s *Store) GetRecentMessages(ctx context.Context, channelID string, hours, limit int) ([]message.Message, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`
			FROM messages_all
			WHERE channel_id = $1 AND created_at > now() - make_interval(hours => $2)
			ORDER BY ts DESC
			LIMIT $3
		) recent ORDER BY ts ASC
	`, channelID, hours, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// SearchKeyword runs ranked full-text search. The rank uses ts_rank_cd with
// normalization flag 32 (rank/(rank+1)), which keeps scores in [0,1].
func (s *Store) SearchKeyword(ctx context.Context, channelID, query string, limit int) ([]message.ScoredMessage, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+`,
			ts_rank_cd(to_tsvector('english', body), websearch_to_tsquery('english', $1), 32) AS rank
		FROM messages_all
		WHERE to_tsvector('english', body) @@ websearch_to_tsquery('english', $1)
			AND ($2 = '' OR channel_id = $2)
		ORDER BY rank DESC
		LIMIT $3
	`, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []message.ScoredMessage
	for rows.Next() {
		msg, rank, err := scanScoredMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, message.ScoredMessage{
			Message: *msg,
			Scores:  message.Scores{Keyword: rank},
		})
	}

	return results, rows.Err()
}

// FindSimilar returns cosine nearest neighbors over embedded messages at or
// above the similarity threshold.
func (s *Store) FindSimilar(ctx context.Context, embedding pgvector.Vector, channelID string, limit int, threshold float64) ([]message.ScoredMessage, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+`,
			1 - (embedding <=> $1) AS similarity
		FROM messages_all
		WHERE embedding IS NOT NULL
			AND ($2 = '' OR channel_id = $2)
			AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`, embedding, channelID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []message.ScoredMessage
	for rows.Next() {
		msg, similarity, err := scanScoredMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, message.ScoredMessage{
			Message: *msg,
			Scores:  message.Scores{Semantic: similarity},
		})
	}

	return results, rows.Err()
}

// FindThread returns the thread root and its replies, ascending by ts.
func (s *Store) FindThread(ctx context.Context, channelID, threadTS string, limit int) ([]message.Message, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages_all
		WHERE channel_id = $1 AND (ts = $2 OR thread_ts = $2)
		ORDER BY ts ASC
		LIMIT $3
	`, channelID, threadTS, limit)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// FindByChannel returns messages matching the filter, ascending by ts.
func (s *Store) FindByChannel(ctx context.Context, channelID string, filter storage.Filter) ([]message.Message, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages_all
		WHERE channel_id = $1
			AND ($2 = '' OR ts > $2)
			AND ($3 = '' OR author_id = $3)
		ORDER BY ts ASC
		LIMIT $4
	`, channelID, filter.AfterTS, filter.AuthorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountByChannel counts all stored messages for a channel, archive included.
func (s *Store) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	var count int64
	err := s.pool.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages_all WHERE channel_id = $1`, channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting channel messages: %w", err)
	}

	return count, nil
}

// UpdateEmbedding attaches an embedding to a stored message.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding pgvector.Vector, modelTag string) error {
	tag, err := s.pool.pool.Exec(ctx, `
		UPDATE messages SET embedding = $2, embedding_model = $3 WHERE id = $1
	`, id, embedding, modelTag)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return storage.NotFoundError{Kind: "message", ID: id}
	}

	return nil
}

// FindUnembedded returns live messages with no embedding, oldest first.
// Archived messages are never backfilled.
func (s *Store) FindUnembedded(ctx context.Context, limit int) ([]message.Message, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages_all
		WHERE embedding IS NULL AND NOT archived
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unembedded messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ArchiveOlderThan moves messages past the retention window into the
// archive table within one transaction.
func (s *Store) ArchiveOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	tx, err := s.pool.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		WITH moved AS (
			DELETE FROM messages
			WHERE created_at < now() - make_interval(days => $1)
			RETURNING *
		)
		INSERT INTO messages_archive SELECT * FROM moved
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("archiving messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing archive transaction: %w", err)
	}

	moved := tag.RowsAffected()
	if moved > 0 {
		s.logger.Info("archived messages past retention window",
			zap.Int64("count", moved),
			zap.Int("retention_days", retentionDays),
		)
	}

	return moved, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanMessage(row pgx.Row) (*message.Message, error) {
	var m message.Message
	err := row.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Text, &m.Timestamp,
		&m.ThreadTS, &m.ParentID, &m.Context, &m.Embedding, &m.EmbeddingModel,
		&m.Archived, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func scanScoredMessage(row pgx.Row) (*message.Message, float64, error) {
	var (
		m     message.Message
		score float64
	)
	err := row.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Text, &m.Timestamp,
		&m.ThreadTS, &m.ParentID, &m.Context, &m.Embedding, &m.EmbeddingModel,
		&m.Archived, &m.CreatedAt, &score)
	if err != nil {
		return nil, 0, err
	}

	return &m, score, nil
}

func collectMessages(rows pgx.Rows) ([]message.Message, error) {
	var msgs []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, *m)
	}

	return msgs, rows.Err()
}
