package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// SummaryStore is an in-memory storage.SummaryStore. The retrieval core only
// reads summaries; Add exists for tests and local seeding.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries []message.ConversationSummary
}

// NewSummaryStore creates an empty in-memory summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{}
}

// Add appends a summary.
func (s *SummaryStore) Add(summary message.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
}

// FindByChannel returns the most recent summaries for a channel, newest
// first.
func (s *SummaryStore) FindByChannel(_ context.Context, channelID string, limit int) ([]message.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []message.ConversationSummary
	for _, sum := range s.summaries {
		if sum.ChannelID == channelID {
			matched = append(matched, sum)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].EndTS > matched[j].EndTS
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// ProfileStore is an in-memory storage.ProfileStore. Add exists for tests
// and local seeding.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]message.UserProfile
}

// NewProfileStore creates an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]message.UserProfile)}
}

// Add stores a profile keyed by user id.
func (s *ProfileStore) Add(profile message.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
}

// FindByUserID returns the profile for a user, or storage.NotFoundError.
func (s *ProfileStore) FindByUserID(_ context.Context, userID string) (*message.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "profile", ID: userID}
	}

	copied := p
	return &copied, nil
}
