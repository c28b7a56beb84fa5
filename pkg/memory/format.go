package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mnemohq/mnemo/pkg/message"
)

// Section headings, rendered in this fixed order. Sections with no
// underlying data are omitted entirely.
const (
	headingSummaries = "=== Conversation Summaries ==="
	headingProfiles  = "=== User Profiles ==="
	headingThread    = "=== Thread Context ==="
	headingRelevant  = "=== Related Past Conversations ==="
	headingRecent    = "=== Recent Conversation ==="
)

// FormatContext renders a bundle into flattened prompt text: summaries,
// then user profiles, thread context, relevant history, and finally the
// recent conversation. An empty bundle renders to an empty string.
func FormatContext(bundle *Bundle) string {
	if bundle == nil || bundle.Empty() {
		return ""
	}

	var sections []string

	if len(bundle.Summaries) > 0 {
		sections = append(sections, formatSummaries(bundle.Summaries))
	}
	if len(bundle.Profiles) > 0 {
		sections = append(sections, formatProfiles(bundle.Profiles))
	}
	if len(bundle.ThreadContext) > 0 {
		sections = append(sections, formatMessages(headingThread, bundle.ThreadContext, bundle.Profiles))
	}
	if len(bundle.RelevantMessages) > 0 {
		sections = append(sections, formatScored(bundle.RelevantMessages, bundle.Profiles))
	}
	if len(bundle.RecentMessages) > 0 {
		sections = append(sections, formatMessages(headingRecent, bundle.RecentMessages, bundle.Profiles))
	}

	return strings.Join(sections, "\n\n")
}

func formatSummaries(summaries []message.ConversationSummary) string {
	var sb strings.Builder
	sb.WriteString(headingSummaries)
	for _, s := range summaries {
		sb.WriteString("\n- ")
		sb.WriteString(s.Summary)
		if len(s.KeyTopics) > 0 {
			sb.WriteString(" (topics: ")
			sb.WriteString(strings.Join(s.KeyTopics, ", "))
			sb.WriteString(")")
		}
	}

	return sb.String()
}

func formatProfiles(profiles map[string]*message.UserProfile) string {
	// Stable iteration keeps formatting deterministic for caching and tests.
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(headingProfiles)
	for _, id := range ids {
		p := profiles[id]
		sb.WriteString(fmt.Sprintf("\n- %s", displayName(id, profiles)))
		if p.Personality != "" {
			sb.WriteString(": " + p.Personality)
		}
		if len(p.Interests) > 0 {
			sb.WriteString(" (interests: " + strings.Join(p.Interests, ", ") + ")")
		}
	}

	return sb.String()
}

func formatMessages(heading string, msgs []message.Message, profiles map[string]*message.UserProfile) string {
	var sb strings.Builder
	sb.WriteString(heading)
	for i := range msgs {
		sb.WriteString(fmt.Sprintf("\n%s: %s", displayName(msgs[i].AuthorID, profiles), msgs[i].Text))
	}

	return sb.String()
}

func formatScored(msgs []message.ScoredMessage, profiles map[string]*message.UserProfile) string {
	var sb strings.Builder
	sb.WriteString(headingRelevant)
	for i := range msgs {
		sb.WriteString(fmt.Sprintf("\n%s: %s", displayName(msgs[i].AuthorID, profiles), msgs[i].Text))
	}

	return sb.String()
}

// displayName resolves an author through the profile map, falling back to
// the raw author id.
func displayName(authorID string, profiles map[string]*message.UserProfile) string {
	if p, ok := profiles[authorID]; ok {
		if name := p.Display(); name != "" {
			return name
		}
	}

	return authorID
}
