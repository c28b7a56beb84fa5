package testutils

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// ErrStoreDown is returned by every FailingStore method.
var ErrStoreDown = errors.New("store unavailable")

// FailingStore is a storage.Driver whose every method fails. Used to verify
// graceful degradation in callers that must never propagate store errors.
type FailingStore struct{}

var _ storage.Driver = (*FailingStore)(nil)

func (s *FailingStore) CreateMessage(context.Context, *message.Message) (*message.Message, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) GetRecentMessages(context.Context, string, int, int) ([]message.Message, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) SearchKeyword(context.Context, string, string, int) ([]message.ScoredMessage, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) FindSimilar(context.Context, pgvector.Vector, string, int, float64) ([]message.ScoredMessage, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) FindThread(context.Context, string, string, int) ([]message.Message, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) FindByChannel(context.Context, string, storage.Filter) ([]message.Message, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) CountByChannel(context.Context, string) (int64, error) {
	return 0, ErrStoreDown
}

func (s *FailingStore) UpdateEmbedding(context.Context, string, pgvector.Vector, string) error {
	return ErrStoreDown
}

func (s *FailingStore) FindUnembedded(context.Context, int) ([]message.Message, error) {
	return nil, ErrStoreDown
}

func (s *FailingStore) Close() error {
	return nil
}
