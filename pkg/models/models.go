package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ── Sales Summary ────────────────────────────────────────────

// SummaryRequest asks the agent for a sales activity summary.
// Dates are optional; the orchestrator defaults them to the current week.
// ConversationID names the transcript the reply is recorded in.
type SummaryRequest struct {
	Query          string     `json:"query"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
}

// UnmarshalJSON accepts startDate and endDate either as calendar dates
// (2025-03-10) or as RFC 3339 timestamps.
func (r *SummaryRequest) UnmarshalJSON(data []byte) error {
	type plain SummaryRequest
	aux := struct {
		*plain
		StartDate *string `json:"startDate,omitempty"`
		EndDate   *string `json:"endDate,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.StartDate != nil {
		if r.StartDate, err = ParseDate(*aux.StartDate); err != nil {
			return fmt.Errorf("startDate: %w", err)
		}
	}
	if aux.EndDate != nil {
		if r.EndDate, err = ParseDate(*aux.EndDate); err != nil {
			return fmt.Errorf("endDate: %w", err)
		}
	}
	return nil
}

// ParseDate reads a calendar date in local time or an RFC 3339 timestamp.
// An empty value yields nil.
func ParseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, time.Local); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", v)
	}
	return &t, nil
}

// SummaryResult is the orchestrator's answer for one request.
type SummaryResult struct {
	ResponseText     string   `json:"response"`
	DataSources      []string `json:"dataSources"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
	ProviderName     string   `json:"llmProvider"`
}

// ── Notifications ────────────────────────────────────────────

// NotificationKind describes what stage of an operation a notification reports.
type NotificationKind string

const (
	NotificationProgress NotificationKind = "progress"
	NotificationSuccess  NotificationKind = "success"
	NotificationError    NotificationKind = "error"
	NotificationWarning  NotificationKind = "warning"
	NotificationInfo     NotificationKind = "info"
)

// Severity is the display level of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationEvent is an immutable record of one notification.
type NotificationEvent struct {
	ID              string           `json:"id"`
	OperationID     string           `json:"operationId"`
	Kind            NotificationKind `json:"type"`
	Message         string           `json:"message"`
	ProgressPercent int              `json:"progressPercentage"`
	Timestamp       time.Time        `json:"timestamp"`
	Severity        Severity         `json:"severity"`
	Payload         any              `json:"data,omitempty"`
	ErrorDetail     string           `json:"errorDetails,omitempty"`
}

// ── Observability ────────────────────────────────────────────

// Trace status values used by the orchestrator.
const (
	TraceStatusInfo    = "info"
	TraceStatusSuccess = "success"
	TraceStatusWarning = "warning"
	TraceStatusError   = "error"
)

// TraceEvent is one entry in the recent-trace log.
type TraceEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	Operation  string            `json:"operation"`
	Status     string            `json:"status"`
	StatusIcon string            `json:"statusIcon"`
	DurationMs int64             `json:"durationMs"`
	Extra      map[string]string `json:"additionalData,omitempty"`
}

// MetricsSnapshot is derived on demand from the running request counters.
type MetricsSnapshot struct {
	TotalRequests       int64     `json:"totalRequests"`
	SuccessfulRequests  int64     `json:"successfulRequests"`
	FailedRequests      int64     `json:"failedRequests"`
	SuccessRate         float64   `json:"successRate"`
	AverageResponseTime float64   `json:"averageResponseTimeMs"`
	Uptime              string    `json:"uptime"`
	UptimeHours         float64   `json:"uptimeHours"`
	StartTime           time.Time `json:"startTime"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// AgentInfo describes an agent registered with the observability service.
type AgentInfo struct {
	ID                string    `json:"agentId"`
	Name              string    `json:"agentName"`
	Type              string    `json:"agentType"`
	Status            string    `json:"status"`
	Version           string    `json:"version"`
	RegisteredAt      time.Time `json:"registeredAt"`
	LastActiveAt      time.Time `json:"lastActiveAt"`
	LastActivity      string    `json:"lastActivity,omitempty"`
	TotalInteractions int64     `json:"totalInteractions"`
}

// TracePhase is one step within a detailed trace session.
type TracePhase struct {
	Name        string    `json:"phaseName"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Data        any       `json:"data,omitempty"`
}

// TraceSession records the phases of one chat turn end to end.
type TraceSession struct {
	SessionID      string       `json:"sessionId"`
	ConversationID string       `json:"conversationId"`
	UserID         string       `json:"userId"`
	UserQuery      string       `json:"userQuery"`
	StartTime      time.Time    `json:"startTime"`
	EndTime        *time.Time   `json:"endTime,omitempty"`
	DurationMs     *int64       `json:"durationMs,omitempty"`
	FinalResponse  string       `json:"finalResponse,omitempty"`
	Success        bool         `json:"success"`
	Phases         []TracePhase `json:"phases"`
}

// ── Transcript ───────────────────────────────────────────────

// TranscriptEntry is one chat turn of a conversation.
type TranscriptEntry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	ActivityType   string    `json:"activityType"`
	From           string    `json:"from"`
	Text           *string   `json:"text,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ChannelID      string    `json:"channelId,omitempty"`
}

// ConversationSummary aggregates the cached turns of one conversation.
type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	MessageCount   int       `json:"messageCount"`
	LastActivity   time.Time `json:"lastActivity"`
	Participants   []string  `json:"participants"`
}

// TranscriptStatistics summarises the transcript cache.
type TranscriptStatistics struct {
	TotalConversations             int     `json:"totalConversations"`
	TotalMessages                  int     `json:"totalMessages"`
	ActiveConversations            int     `json:"activeConversations"`
	AverageMessagesPerConversation float64 `json:"averageMessagesPerConversation"`
}

// ── Bot Framework Activity ───────────────────────────────────

// Activity types understood by the bot handler.
const (
	ActivityMessage            = "message"
	ActivityTyping             = "typing"
	ActivityConversationUpdate = "conversationUpdate"
)

// Activity is the subset of a Bot Framework activity the bot reads and writes.
type Activity struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Timestamp    *time.Time       `json:"timestamp,omitempty"`
	ServiceURL   string           `json:"serviceUrl,omitempty"`
	ChannelID    string           `json:"channelId,omitempty"`
	From         ChannelAccount   `json:"from"`
	Conversation Conversation     `json:"conversation"`
	Recipient    ChannelAccount   `json:"recipient"`
	Text         string           `json:"text,omitempty"`
	TextFormat   string           `json:"textFormat,omitempty"`
	Locale       string           `json:"locale,omitempty"`
	ReplyToID    string           `json:"replyToId,omitempty"`
	MembersAdded []ChannelAccount `json:"membersAdded,omitempty"`
}

// ChannelAccount is a user or bot in a channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation identifies the conversation an activity belongs to.
type Conversation struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}
