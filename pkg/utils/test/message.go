package testutils

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemohq/mnemo/pkg/message"
)

// NewMessage builds a valid message for tests.
func NewMessage(channelID, ts, authorID, text string) *message.Message {
	return &message.Message{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Text:      text,
		Timestamp: ts,
		CreatedAt: time.Now().UTC(),
	}
}

// NewThreadedMessage builds a valid threaded message for tests.
func NewThreadedMessage(channelID, ts, threadTS, authorID, text string) *message.Message {
	msg := NewMessage(channelID, ts, authorID, text)
	msg.ThreadTS = &threadTS

	return msg
}
