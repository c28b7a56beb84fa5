// Package inmemory provides map-backed implementations of the storage
// interfaces. It powers tests and cache-less local runs; keyword search is
// token-overlap scoring and vector search is a brute-force cosine scan.
package inmemory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pgvector/pgvector-go"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// Driver implements storage.Driver with a mutex-guarded map keyed by message
// identity.
type Driver struct {
	mu sync.RWMutex

	// messages maps message.Key() to the stored message.
	messages map[string]*message.Message

	// byID maps message id to identity key for UpdateEmbedding.
	byID map[string]string

	// now is swappable for recency-window tests.
	now func() time.Time
}

// NewDriver creates an empty in-memory message store.
func NewDriver() *Driver {
	return &Driver{
		messages: make(map[string]*message.Message),
		byID:     make(map[string]string),
		now:      time.Now,
	}
}

// SetClock overrides the driver's time source. Test hook.
func (d *Driver) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// CreateMessage persists a message. Inserting a duplicate (channel,
// timestamp) identity is a no-op returning the stored message.
func (d *Driver) CreateMessage(_ context.Context, msg *message.Message) (*message.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := msg.Key()
	if existing, ok := d.messages[key]; ok {
		copied := *existing
		return &copied, nil
	}

	stored := *msg
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = d.now()
	}
	d.messages[key] = &stored
	d.byID[stored.ID] = key

	copied := stored
	return &copied, nil
}

// GetRecentMessages returns up to limit messages in the past hours for the
// channel, ordered by source timestamp ascending.
func (d *Driver) GetRecentMessages(_ context.Context, channelID string, hours, limit int) ([]message.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cutoff := d.now().Add(-time.Duration(hours) * time.Hour)

	var matched []message.Message
	for _, m := range d.messages {
		if channelID != "" && m.ChannelID != channelID {
			continue
		}
		if m.CreatedAt.Before(cutoff) {
			continue
		}
		matched = append(matched, *m)
	}

	sortByTimestamp(matched)
	if len(matched) > limit {
		// Keep the newest limit messages, still ascending.
		matched = matched[len(matched)-limit:]
	}

	return matched, nil
}

// SearchKeyword scores messages by query-token overlap: the rank is the
// fraction of query tokens present in the message, normalized to [0,1].
func (d *Driver) SearchKeyword(_ context.Context, channelID, query string, limit int) ([]message.ScoredMessage, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []message.ScoredMessage
	for _, m := range d.messages {
		if channelID != "" && m.ChannelID != channelID {
			continue
		}

		msgTokens := tokenize(m.Text)
		matched := 0
		for t := range queryTokens {
			if _, ok := msgTokens[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		rank := float64(matched) / float64(len(queryTokens))
		results = append(results, message.ScoredMessage{
			Message: *m,
			Scores:  message.Scores{Keyword: rank},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scores.Keyword != results[j].Scores.Keyword {
			return results[i].Scores.Keyword > results[j].Scores.Keyword
		}
		return results[i].Timestamp > results[j].Timestamp
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// FindSimilar runs a brute-force cosine scan over embedded messages.
func (d *Driver) FindSimilar(_ context.Context, embedding pgvector.Vector, channelID string, limit int, threshold float64) ([]message.ScoredMessage, error) {
	query := embedding.Slice()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []message.ScoredMessage
	for _, m := range d.messages {
		if channelID != "" && m.ChannelID != channelID {
			continue
		}
		if !m.Embedded() {
			continue
		}

		sim := cosineSimilarity(query, m.Embedding.Slice())
		if sim < threshold {
			continue
		}

		results = append(results, message.ScoredMessage{
			Message: *m,
			Scores:  message.Scores{Semantic: sim},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scores.Semantic > results[j].Scores.Semantic
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// FindThread returns messages sharing the thread root, ascending by
// timestamp. The thread root itself (timestamp == threadTS) is included.
func (d *Driver) FindThread(_ context.Context, channelID, threadTS string, limit int) ([]message.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []message.Message
	for _, m := range d.messages {
		if m.ChannelID != channelID {
			continue
		}
		inThread := m.Timestamp == threadTS ||
			(m.ThreadTS != nil && *m.ThreadTS == threadTS)
		if !inThread {
			continue
		}
		matched = append(matched, *m)
	}

	sortByTimestamp(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// FindByChannel returns messages for a channel matching the filter,
// ascending by timestamp.
func (d *Driver) FindByChannel(_ context.Context, channelID string, filter storage.Filter) ([]message.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []message.Message
	for _, m := range d.messages {
		if m.ChannelID != channelID {
			continue
		}
		if filter.AfterTS != "" && m.Timestamp <= filter.AfterTS {
			continue
		}
		if filter.AuthorID != "" && m.AuthorID != filter.AuthorID {
			continue
		}
		matched = append(matched, *m)
	}

	sortByTimestamp(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// CountByChannel returns the total stored message count for a channel.
func (d *Driver) CountByChannel(_ context.Context, channelID string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var count int64
	for _, m := range d.messages {
		if m.ChannelID == channelID {
			count++
		}
	}

	return count, nil
}

// UpdateEmbedding attaches an embedding to a stored message.
func (d *Driver) UpdateEmbedding(_ context.Context, id string, embedding pgvector.Vector, modelTag string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := d.byID[id]
	if !ok {
		return storage.NotFoundError{Kind: "message", ID: id}
	}

	m := d.messages[key]
	m.Embedding = &embedding
	m.EmbeddingModel = modelTag

	return nil
}

// FindUnembedded returns messages with no embedding yet, oldest first.
func (d *Driver) FindUnembedded(_ context.Context, limit int) ([]message.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []message.Message
	for _, m := range d.messages {
		if m.Embedded() {
			continue
		}
		matched = append(matched, *m)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// Close is a no-op for the in-memory backend.
func (d *Driver) Close() error {
	return nil
}

func sortByTimestamp(msgs []message.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

func tokenize(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	return set
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
