package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// derivedSchema creates the tables owned by the out-of-band summarizer and
// profiler jobs. The retrieval core only reads them; creating them here
// keeps fresh deployments queryable before the jobs first run.
const derivedSchema = `
CREATE TABLE IF NOT EXISTS conversation_summaries (
	id              TEXT PRIMARY KEY,
	channel_id      TEXT NOT NULL,
	summary         TEXT NOT NULL,
	key_topics      TEXT[] NOT NULL DEFAULT '{}',
	participants    TEXT[] NOT NULL DEFAULT '{}',
	mood            TEXT,
	notable_moments TEXT[] NOT NULL DEFAULT '{}',
	start_ts        TEXT NOT NULL,
	end_ts          TEXT NOT NULL,
	message_count   INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS summaries_channel_end_idx
	ON conversation_summaries (channel_id, end_ts DESC);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	personality  TEXT,
	interests    TEXT[] NOT NULL DEFAULT '{}',
	last_active  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InitDerivedSchema creates the summary and profile tables.
func (s *Store) InitDerivedSchema(ctx context.Context) error {
	if _, err := s.pool.pool.Exec(ctx, derivedSchema); err != nil {
		return fmt.Errorf("creating derived schema: %w", err)
	}

	return nil
}

// SummaryStore implements storage.SummaryStore over the summarizer's table.
type SummaryStore struct {
	pool *Pool
}

// NewSummaryStore creates a summary reader on an established pool.
func NewSummaryStore(pool *Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

// FindByChannel returns the most recent summaries for a channel, newest
// first.
func (s *SummaryStore) FindByChannel(ctx context.Context, channelID string, limit int) ([]message.ConversationSummary, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT id, channel_id, summary, key_topics, participants,
			COALESCE(mood, ''), notable_moments, start_ts, end_ts,
			message_count, created_at
		FROM conversation_summaries
		WHERE channel_id = $1
		ORDER BY end_ts DESC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying summaries: %w", err)
	}
	defer rows.Close()

	var summaries []message.ConversationSummary
	for rows.Next() {
		var sum message.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.ChannelID, &sum.Summary,
			&sum.KeyTopics, &sum.Participants, &sum.Mood, &sum.NotableMoments,
			&sum.StartTS, &sum.EndTS, &sum.MessageCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// ProfileStore implements storage.ProfileStore over the profiler's table.
type ProfileStore struct {
	pool *Pool
}

// NewProfileStore creates a profile reader on an established pool.
func NewProfileStore(pool *Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// FindByUserID returns the profile for a user, or storage.NotFoundError.
func (s *ProfileStore) FindByUserID(ctx context.Context, userID string) (*message.UserProfile, error) {
	var p message.UserProfile
	err := s.pool.pool.QueryRow(ctx, `
		SELECT user_id, display_name, COALESCE(personality, ''), interests, last_active
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.DisplayName, &p.Personality, &p.Interests, &p.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NotFoundError{Kind: "profile", ID: userID}
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	return &p, nil
}
