package memory

import "github.com/mnemohq/mnemo/pkg/message"

// Stats summarizes conversation activity over a message set.
type Stats struct {
	// MessageCount is the number of messages analyzed.
	MessageCount int `json:"message_count"`

	// UniqueAuthors is the number of distinct authors.
	UniqueAuthors int `json:"unique_authors"`

	// AverageLength is the mean message text length in runes.
	AverageLength float64 `json:"average_length"`

	// NoData marks an empty input set. When true, the numeric fields are
	// zero rather than undefined.
	NoData bool `json:"no_data,omitempty"`
}

// AnalyzeConversation computes activity stats over a message set. An empty
// set returns zeroed stats with NoData set; average length is never NaN.
func AnalyzeConversation(msgs []message.Message) Stats {
	if len(msgs) == 0 {
		return Stats{NoData: true}
	}

	authors := make(map[string]struct{}, len(msgs))
	totalLength := 0
	for i := range msgs {
		authors[msgs[i].AuthorID] = struct{}{}
		totalLength += len([]rune(msgs[i].Text))
	}

	return Stats{
		MessageCount:  len(msgs),
		UniqueAuthors: len(authors),
		AverageLength: float64(totalLength) / float64(len(msgs)),
	}
}
