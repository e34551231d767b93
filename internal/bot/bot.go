// Package bot turns inbound chat activities into sales summary requests
// and builds the reply activities.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/locale"
	"github.com/salessupport/salesagent/pkg/models"
)

// Summarizer produces a sales summary. *orchestrator.Orchestrator satisfies it.
type Summarizer interface {
	Handle(ctx context.Context, req models.SummaryRequest) models.SummaryResult
}

// Tracer records detailed per-turn trace sessions and agent activity.
// *observability.Service satisfies it.
type Tracer interface {
	StartDetailedTrace(conversationID, userID, query string) string
	AddTracePhase(sessionID, name, description, status string, data any) bool
	CompleteDetailedTrace(sessionID, finalResponse string, success bool) bool
	UpdateAgentActivity(id, activity string) bool
}

// Transcript records chat turns. *transcript.Store satisfies it.
type Transcript interface {
	AppendTurn(ctx context.Context, activity models.Activity, conversationID string) models.TranscriptEntry
}

// Bot handles one chat turn at a time; it holds no per-conversation state.
type Bot struct {
	summarizer Summarizer
	tracer     Tracer
	transcript Transcript
	agentID    string
	texts      locale.Strings
	now        func() time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithStrings sets the reply language. Japanese is the default.
func WithStrings(s locale.Strings) Option {
	return func(b *Bot) { b.texts = s }
}

// New creates a bot. agentID is the observability registry id updated on
// every handled message.
func New(s Summarizer, tr Tracer, ts Transcript, agentID string, opts ...Option) *Bot {
	b := &Bot{
		summarizer: s,
		tracer:     tr,
		transcript: ts,
		agentID:    agentID,
		texts:      locale.For(locale.Default),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Turn handles one inbound activity and returns the replies to send.
// Unsupported activity types produce no replies.
func (b *Bot) Turn(ctx context.Context, in models.Activity) []models.Activity {
	switch in.Type {
	case models.ActivityMessage:
		return b.onMessage(ctx, in)
	case models.ActivityConversationUpdate:
		return b.onMembersAdded(in)
	default:
		log.Debug().Str("type", in.Type).Msg("Ignoring activity")
		return []models.Activity{}
	}
}

func (b *Bot) onMessage(ctx context.Context, in models.Activity) []models.Activity {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return []models.Activity{b.reply(in, b.texts.EmptyMessage)}
	}

	convID := in.Conversation.ID
	log.Info().Str("conversation", convID).Str("user", in.From.ID).Msg("Teams message received")

	b.transcript.AppendTurn(ctx, in, convID)
	b.tracer.UpdateAgentActivity(b.agentID, "メッセージ処理中")

	sessionID := b.tracer.StartDetailedTrace(convID, in.From.ID, text)
	b.tracer.AddTracePhase(sessionID, "メッセージ受信", "ユーザーメッセージを受信しました", models.TraceStatusSuccess,
		map[string]any{"length": len([]rune(text)), "channelId": in.ChannelID})
	b.tracer.AddTracePhase(sessionID, "AI エージェント処理", "営業サマリを生成しています", models.TraceStatusInfo, nil)

	res := b.summarizer.Handle(ctx, models.SummaryRequest{Query: text, ConversationID: convID})
	// Failure results carry no data sources.
	success := len(res.DataSources) > 0

	status := models.TraceStatusSuccess
	if !success {
		status = models.TraceStatusError
	}
	b.tracer.AddTracePhase(sessionID, "応答生成", "応答を生成しました", status, map[string]any{
		"processingTimeMs": res.ProcessingTimeMs,
		"llmProvider":      res.ProviderName,
	})
	b.tracer.CompleteDetailedTrace(sessionID, res.ResponseText, success)
	b.tracer.UpdateAgentActivity(b.agentID, "待機中")

	body := res.ResponseText + "\n\n---\n" + b.texts.Footer(res.ProcessingTimeMs, res.ProviderName)
	return []models.Activity{b.reply(in, body)}
}

func (b *Bot) onMembersAdded(in models.Activity) []models.Activity {
	replies := []models.Activity{}
	for _, m := range in.MembersAdded {
		if m.ID == in.Recipient.ID {
			continue
		}
		replies = append(replies, b.reply(in, b.texts.Welcome))
	}
	return replies
}

func (b *Bot) reply(in models.Activity, text string) models.Activity {
	ts := b.now().UTC()
	return models.Activity{
		Type:         models.ActivityMessage,
		Timestamp:    &ts,
		ChannelID:    in.ChannelID,
		ServiceURL:   in.ServiceURL,
		From:         in.Recipient,
		Recipient:    in.From,
		Conversation: in.Conversation,
		ReplyToID:    in.ID,
		Text:         text,
		TextFormat:   "markdown",
		Locale:       in.Locale,
	}
}
