// Package eventstream separates interaction side effects from the retrieval
// path. Retrieval and context building stay query-only; the bot publishes an
// interaction event after each reply and downstream consumers (cost
// tracking, analytics) process them independently.
package eventstream

import "context"

// Publisher publishes interaction events to an event stream backend.
type Publisher interface {
	PublishInteraction(ctx context.Context, event *InteractionEvent) error
	Close() error
}
