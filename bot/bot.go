// Package bot wires the retrieval core to Slack. It stays thin: persist
// incoming messages, enqueue them for embedding, and answer mentions with a
// context-grounded chat completion. Retrieval failures degrade the reply,
// they never block it.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/eventstream"
	"github.com/mnemohq/mnemo/pkg/ingest"
	"github.com/mnemohq/mnemo/pkg/memory"
	"github.com/mnemohq/mnemo/pkg/message"
	"github.com/mnemohq/mnemo/pkg/search"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// searchCommand triggers an explicit search instead of a chat reply.
const searchCommand = "!search"

// searchFailureReply is sent when an explicit search cannot be served.
// Explicit commands fail loudly; only ambient context degrades silently.
const searchFailureReply = "Sorry, I couldn't search the channel history just now. " +
	"Please try again in a moment."

// Config holds bot construction dependencies.
type Config struct {
	BotToken string
	AppToken string

	ChatModel string

	// DiversityWeight tunes the rerank pass on explicit search results.
	DiversityWeight float64

	// Memory holds the deployment-wide context-assembly options applied to
	// every mention. Zero numeric limits fall back to the builder defaults.
	Memory memory.Options

	Store     storage.Driver
	Builder   *memory.Builder
	Engine    *search.Engine
	Ingest    *ingest.Pool
	Publisher eventstream.Publisher
	Chat      *openai.Client
	Logger    *zap.Logger
}

// Bot is the Slack Socket Mode event loop.
type Bot struct {
	api    *slack.Client
	socket *socketmode.Client

	chatModel       string
	botUserID       string
	diversityWeight float64
	memoryOpts      memory.Options

	store     storage.Driver
	builder   *memory.Builder
	engine    *search.Engine
	ingest    *ingest.Pool
	publisher eventstream.Publisher
	chat      *openai.Client
	logger    *zap.Logger
}

// New creates a bot and resolves its own user id so it can skip its replies
// during ingestion.
func New(cfg Config) (*Bot, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("bot and app tokens are required")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}

	model := cfg.ChatModel
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Bot{
		api:             api,
		socket:          socketmode.New(api),
		chatModel:       model,
		botUserID:       auth.UserID,
		diversityWeight: cfg.DiversityWeight,
		memoryOpts:      cfg.Memory,
		store:           cfg.Store,
		builder:         cfg.Builder,
		engine:          cfg.Engine,
		ingest:          cfg.Ingest,
		publisher:       cfg.Publisher,
		chat:            cfg.Chat,
		logger:          cfg.Logger,
	}, nil
}

// Run processes Socket Mode events until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		for evt := range b.socket.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				b.logger.Info("slack socket connected")

			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				b.socket.Ack(*evt.Request)
				b.handleEvent(ctx, apiEvent)
			}
		}
	}()

	return b.socket.RunContext(ctx)
}

func (b *Bot) handleEvent(ctx context.Context, evt slackevents.EventsAPIEvent) {
	switch inner := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		b.handleMessage(ctx, inner)

	case *slackevents.AppMentionEvent:
		b.handleMention(ctx, inner)
	}
}

// handleMessage persists a channel message and enqueues it for embedding.
// Bot messages and edits are skipped.
func (b *Bot) handleMessage(ctx context.Context, evt *slackevents.MessageEvent) {
	if evt.User == "" || evt.User == b.botUserID || evt.SubType != "" {
		return
	}
	if strings.HasPrefix(strings.TrimSpace(evt.Text), searchCommand) {
		b.handleSearchCommand(ctx, evt)
		return
	}

	msg := &message.Message{
		ID:        ulid.Make().String(),
		ChannelID: evt.Channel,
		AuthorID:  evt.User,
		Text:      evt.Text,
		Timestamp: evt.TimeStamp,
		CreatedAt: time.Now().UTC(),
	}
	if evt.ThreadTimeStamp != "" {
		threadTS := evt.ThreadTimeStamp
		msg.ThreadTS = &threadTS
	}

	stored, err := b.store.CreateMessage(ctx, msg)
	if err != nil {
		b.logger.Error("persisting message failed",
			zap.String("channel", evt.Channel),
			zap.Error(err),
		)
		return
	}

	b.ingest.Enqueue(ingest.Job{MessageID: stored.ID, Text: stored.Text})
}

// handleSearchCommand serves an explicit search request. Unlike ambient
// context assembly, a failed search is reported to the user.
func (b *Bot) handleSearchCommand(ctx context.Context, evt *slackevents.MessageEvent) {
	query := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(evt.Text), searchCommand))
	if query == "" {
		b.reply(evt.Channel, evt.TimeStamp, "Usage: `!search <query>`")
		return
	}

	results, err := b.engine.Search(ctx, query, search.Options{
		ChannelID: evt.Channel,
		Limit:     5,
	})
	if err != nil {
		b.logger.Error("search command failed",
			zap.String("channel", evt.Channel),
			zap.Error(err),
		)
		b.reply(evt.Channel, evt.TimeStamp, searchFailureReply)
		return
	}

	results = b.engine.Rerank(results, search.RerankOptions{
		DiversityWeight: b.diversityWeight,
		AuthorBoosts:    map[string]float64{evt.User: 1.05},
	})

	b.reply(evt.Channel, evt.TimeStamp, formatSearchResults(query, results))
}

// handleMention builds channel context and answers with a chat completion,
// threaded under the mention.
func (b *Bot) handleMention(ctx context.Context, evt *slackevents.AppMentionEvent) {
	query := stripMention(evt.Text, b.botUserID)

	bundle := b.builder.BuildContext(ctx, evt.Channel, query,
		b.contextOptions(evt.ThreadTimeStamp))

	response, err := b.complete(ctx, query, memory.FormatContext(bundle))
	if err != nil {
		b.logger.Error("chat completion failed",
			zap.String("channel", evt.Channel),
			zap.Error(err),
		)
		return
	}

	threadTS := evt.ThreadTimeStamp
	if threadTS == "" {
		threadTS = evt.TimeStamp
	}
	b.reply(evt.Channel, threadTS, response)

	b.publish(ctx, evt, query, response, bundle)
}

// contextOptions merges the deployment-wide assembly options with the
// per-mention fields.
func (b *Bot) contextOptions(threadTS string) memory.Options {
	opts := b.memoryOpts
	opts.ThreadTS = threadTS
	opts.IncludeSummaries = true
	opts.IncludeProfiles = true
	return opts
}

// complete generates the reply. The context block precedes the user query in
// a single system prompt so the model treats history as grounding, not
// instructions.
func (b *Bot) complete(ctx context.Context, query, contextBlock string) (string, error) {
	system := "You are a helpful assistant embedded in a Slack workspace. " +
		"Answer using the conversation context when it is relevant."
	if contextBlock != "" {
		system += "\n\n" + contextBlock
	}

	resp, err := b.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func (b *Bot) reply(channelID, threadTS, text string) {
	_, _, err := b.api.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.logger.Error("posting reply failed",
			zap.String("channel", channelID),
			zap.Error(err),
		)
	}
}

// publish emits the interaction event. Publish failures are logged by the
// publisher and ignored here; the reply already happened.
func (b *Bot) publish(ctx context.Context, evt *slackevents.AppMentionEvent, query, response string, bundle *memory.Bundle) {
	if b.publisher == nil {
		return
	}

	_ = b.publisher.PublishInteraction(ctx, &eventstream.InteractionEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeInteraction,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		ChannelID:     evt.Channel,
		UserID:        evt.User,
		Query:         query,
		ResponseChars: len(response),
		Retrieval: eventstream.RetrievalMeta{
			RecentMessages:   len(bundle.RecentMessages),
			RelevantMessages: len(bundle.RelevantMessages),
			Summaries:        len(bundle.Summaries),
			TotalMessages:    bundle.TotalMessages,
			ContextChars:     len(memory.FormatContext(bundle)),
		},
	})
}

// stripMention removes the leading bot mention from query text.
func stripMention(text, botUserID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}

// formatSearchResults renders search hits as a Slack message.
func formatSearchResults(query string, results []message.ScoredMessage) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top results for %q:\n", query)
	for i, sm := range results {
		fmt.Fprintf(&sb, "%d. <@%s>: %s (score %.2f)\n", i+1, sm.AuthorID, sm.Text, sm.Scores.Combined)
	}

	return sb.String()
}
