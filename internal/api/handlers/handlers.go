// Package handlers implements the HTTP handlers for the sales agent API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/bot"
	"github.com/salessupport/salesagent/internal/notify"
	"github.com/salessupport/salesagent/internal/observability"
	"github.com/salessupport/salesagent/internal/store"
	"github.com/salessupport/salesagent/internal/transcript"
	"github.com/salessupport/salesagent/pkg/models"
)

const (
	defaultCount = 50
	maxBodyBytes = 1 << 20
)

// Summarizer produces a sales summary. *orchestrator.Orchestrator satisfies it.
type Summarizer interface {
	Handle(ctx context.Context, req models.SummaryRequest) models.SummaryResult
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Summarizer    Summarizer
	Bot           *bot.Bot
	Observability *observability.Service
	Notifications *notify.Broadcaster
	Transcript    *transcript.Store
	Store         store.Store
	ServiceName   string
	Version       string
}

// ── Health & info ────────────────────────────────────────────

// Health reports liveness and whether the durable store answers.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	body := map[string]string{"service": h.ServiceName}
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			status = "degraded"
			body["store"] = err.Error()
		}
	}
	body["status"] = status
	respondJSON(w, http.StatusOK, body)
}

func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": h.ServiceName,
	})
}

// ── Sales summary & bot ──────────────────────────────────────

// SalesSummary runs the orchestrator for one request.
func (h *Handlers) SalesSummary(w http.ResponseWriter, r *http.Request) {
	var req models.SummaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	respondJSON(w, http.StatusOK, h.Summarizer.Handle(r.Context(), req))
}

// Messages accepts a chat activity and returns the reply activities.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	var in models.Activity
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid activity")
		return
	}
	if in.Type == "" {
		respondError(w, http.StatusBadRequest, "activity type is required")
		return
	}

	replies := h.Bot.Turn(r.Context(), in)
	log.Debug().Str("type", in.Type).Int("replies", len(replies)).Msg("Activity handled")
	respondJSON(w, http.StatusOK, replies)
}

// ── Observability ────────────────────────────────────────────

func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Observability.Snapshot())
}

func (h *Handlers) Traces(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Observability.RecentTraces(queryInt(r, "count", defaultCount)))
}

func (h *Handlers) Agents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Observability.ActiveAgents())
}

func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	if conv := r.URL.Query().Get("conversationId"); conv != "" {
		respondJSON(w, http.StatusOK, h.Observability.TracesByConversation(conv))
		return
	}
	respondJSON(w, http.StatusOK, h.Observability.AllDetailedTraces(queryInt(r, "count", defaultCount)))
}

func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	session, ok := h.Observability.DetailedTrace(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// ── Notifications ────────────────────────────────────────────

func (h *Handlers) NotificationHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Notifications.History(queryInt(r, "count", defaultCount)))
}

func (h *Handlers) OperationNotifications(w http.ResponseWriter, r *http.Request) {
	events := h.Notifications.HistoryForOperation(chi.URLParam(r, "operationId"))
	if events == nil {
		events = []models.NotificationEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// ── Transcript ───────────────────────────────────────────────

func (h *Handlers) Conversations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Transcript.AllConversationSummaries())
}

func (h *Handlers) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationId")
	limit := queryInt(r, "limit", transcript.DefaultHistoryLimit)
	respondJSON(w, http.StatusOK, h.Transcript.History(r.Context(), id, limit))
}

func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.Transcript.Delete(r.Context(), chi.URLParam(r, "conversationId"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) TranscriptStatistics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Transcript.Statistics())
}

// ── Helpers ──────────────────────────────────────────────────

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
