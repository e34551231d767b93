// Package orchestrator runs one sales summary request end to end: it
// resolves the reporting window, drives the tool-calling agent, extracts
// the reply and records notifications, traces, metrics and the transcript.
//
// Handle never returns an error and never panics. Failures become a
// failure-flavored result and an error notification.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/llm"
	"github.com/salessupport/salesagent/internal/locale"
	"github.com/salessupport/salesagent/internal/telemetry"
	"github.com/salessupport/salesagent/internal/tools"
	"github.com/salessupport/salesagent/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultConversationID receives the assistant reply when a request does
// not name a conversation.
const DefaultConversationID = "sales-summary"

// AgentName is the display name used for transcript entries written by
// the orchestrator.
const AgentName = "営業支援エージェント"

// malformedPrefixes mark raw tool-call payloads some local models emit as text.
var malformedPrefixes = []string{"<|", "[TOOL_CALLS]", "<tool_call>", "<function", `{"tool_calls"`}

// Completer runs a tool-augmented completion. *llm.Agent satisfies it.
type Completer interface {
	Run(ctx context.Context, prompt string) (llm.Conversation, error)
	ProviderName() string
}

// Notifier publishes operation notifications. *notify.Broadcaster satisfies it.
type Notifier interface {
	Progress(operationID, message string, percent int) models.NotificationEvent
	Success(operationID, message string, payload any) models.NotificationEvent
	Error(operationID, message, detail string) models.NotificationEvent
}

// Recorder records request metrics and trace events.
// *observability.Service satisfies it.
type Recorder interface {
	RecordRequest(success bool, durationMs int64)
	RecordTrace(operation, status string, durationMs int64, extra map[string]string)
}

// Transcript records chat turns. *transcript.Store satisfies it.
type Transcript interface {
	AppendTurn(ctx context.Context, activity models.Activity, conversationID string) models.TranscriptEntry
}

// Orchestrator is the sales summary request pipeline. It is safe for
// concurrent use; each Handle call is independent.
type Orchestrator struct {
	completer  Completer
	notifier   Notifier
	recorder   Recorder
	transcript Transcript
	tracer     trace.Tracer
	texts      locale.Strings
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStrings sets the language of reply texts. Japanese is the default.
func WithStrings(s locale.Strings) Option {
	return func(o *Orchestrator) { o.texts = s }
}

// New creates an orchestrator from its collaborators.
func New(c Completer, n Notifier, r Recorder, t Transcript, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completer:  c,
		notifier:   n,
		recorder:   r,
		transcript: t,
		tracer:     otel.Tracer(telemetry.TracerName),
		texts:      locale.For(locale.Default),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle produces a sales summary for req.
func (o *Orchestrator) Handle(ctx context.Context, req models.SummaryRequest) models.SummaryResult {
	opID := uuid.New().String()
	start := o.now()
	provider := o.completer.ProviderName()

	ctx, span := o.tracer.Start(ctx, "salesagent.summary", trace.WithAttributes(
		attribute.String("salesagent.operation_id", opID),
		attribute.String("salesagent.llm_provider", provider),
	))
	defer span.End()

	from, to := ResolveWindow(req, start)
	log.Info().Str("operation", opID).Str("query", req.Query).Msg("Sales summary started")

	o.notifier.Progress(opID, "営業サマリの生成を開始しました", 0)
	o.recorder.RecordTrace("SalesSummary.Start", models.TraceStatusInfo, 0, map[string]string{
		"operationId": opID,
		"query":       req.Query,
		"startDate":   from.Format("2006-01-02"),
		"endDate":     to.Format("2006-01-02"),
	})

	prompt := AugmentQuery(req.Query, from, to)

	o.notifier.Progress(opID, "AI エージェントが Microsoft 365 のデータを収集しています", 25)
	conv, err := o.complete(ctx, prompt)

	o.notifier.Progress(opID, "収集した情報を分析しています", 75)
	if err != nil {
		return o.fail(ctx, span, opID, start, provider, err)
	}

	text := Extract(conv, o.texts)
	elapsed := o.now().Sub(start).Milliseconds()
	result := models.SummaryResult{
		ResponseText:     text,
		DataSources:      append([]string(nil), tools.DataSources...),
		ProcessingTimeMs: elapsed,
		ProviderName:     provider,
	}

	o.notifier.Success(opID, "営業サマリの生成が完了しました", result)
	o.recorder.RecordTrace("SalesSummary", models.TraceStatusSuccess, elapsed, map[string]string{
		"operationId": opID,
		"llmProvider": provider,
	})
	o.recorder.RecordRequest(true, elapsed)

	convID := req.ConversationID
	if convID == "" {
		convID = DefaultConversationID
	}
	replyAt := o.now().UTC()
	o.transcript.AppendTurn(ctx, models.Activity{
		Type:      models.ActivityMessage,
		Timestamp: &replyAt,
		From:      models.ChannelAccount{ID: "salesagent", Name: AgentName},
		Text:      text,
	}, convID)

	span.SetAttributes(attribute.String("salesagent.outcome", "success"))
	span.SetStatus(codes.Ok, "")
	log.Info().Str("operation", opID).Int64("elapsed_ms", elapsed).Msg("Sales summary complete")
	return result
}

// complete runs the completion and converts a panic into an error.
func (o *Orchestrator) complete(ctx context.Context, prompt string) (conv llm.Conversation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v", r)
		}
	}()
	return o.completer.Run(ctx, prompt)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, opID string, start time.Time, provider string, err error) models.SummaryResult {
	elapsed := o.now().Sub(start).Milliseconds()
	log.Error().Err(err).Str("operation", opID).Int64("elapsed_ms", elapsed).Msg("Sales summary failed")

	o.notifier.Error(opID, "営業サマリの生成に失敗しました", err.Error())
	o.recorder.RecordTrace("SalesSummary", models.TraceStatusError, elapsed, map[string]string{
		"operationId": opID,
		"error":       err.Error(),
	})
	o.recorder.RecordRequest(false, elapsed)

	span.RecordError(err)
	span.SetAttributes(attribute.String("salesagent.outcome", "failure"))
	span.SetStatus(codes.Error, err.Error())

	return models.SummaryResult{
		ResponseText:     o.texts.ErrorResult(err.Error()),
		DataSources:      []string{},
		ProcessingTimeMs: elapsed,
		ProviderName:     provider,
	}
}

// ResolveWindow returns the request's reporting window. Missing dates
// default to Monday and Sunday of the week containing now. Explicit dates
// pass through unchecked.
func ResolveWindow(req models.SummaryRequest, now time.Time) (from, to time.Time) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	diff := (7 + int(today.Weekday()-time.Monday)) % 7
	monday := today.AddDate(0, 0, -diff)

	from, to = monday, monday.AddDate(0, 0, 6)
	if req.StartDate != nil {
		from = *req.StartDate
	}
	if req.EndDate != nil {
		to = *req.EndDate
	}
	return from, to
}

// AugmentQuery appends the reporting window to the user's query.
func AugmentQuery(query string, from, to time.Time) string {
	return fmt.Sprintf("%s\n\n期間: %s ~ %s", query, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Extract returns the reply text of the final turn. Raw tool-call payloads
// are replaced by the apology text and a missing reply by the no-response
// text of s.
func Extract(conv llm.Conversation, s locale.Strings) string {
	last, ok := conv.Last()
	if !ok || last.Role != llm.RoleAssistant {
		return s.NoResponse
	}
	text := strings.TrimSpace(strings.Join(last.Texts(), "\n\n"))
	if text == "" {
		return s.NoResponse
	}
	if looksLikeToolCall(text) {
		log.Warn().Str("text", truncate(text, 120)).Msg("Model returned a raw tool call as text")
		return s.Apology
	}
	return text
}

func looksLikeToolCall(text string) bool {
	for _, p := range malformedPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return strings.Contains(text, `"name":`) || strings.Contains(text, `"arguments":`)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
