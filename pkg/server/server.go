// Package server composes the sales agent: durable store, real-time hub,
// observability, notifications, transcript, LLM agent, orchestrator, bot
// and HTTP API.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.Shutdown(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/api"
	"github.com/salessupport/salesagent/internal/api/handlers"
	"github.com/salessupport/salesagent/internal/api/middleware"
	"github.com/salessupport/salesagent/internal/bot"
	"github.com/salessupport/salesagent/internal/config"
	"github.com/salessupport/salesagent/internal/hub"
	"github.com/salessupport/salesagent/internal/llm"
	"github.com/salessupport/salesagent/internal/locale"
	"github.com/salessupport/salesagent/internal/notify"
	"github.com/salessupport/salesagent/internal/observability"
	"github.com/salessupport/salesagent/internal/orchestrator"
	"github.com/salessupport/salesagent/internal/retention"
	"github.com/salessupport/salesagent/internal/store"
	"github.com/salessupport/salesagent/internal/telemetry"
	"github.com/salessupport/salesagent/internal/tools"
	"github.com/salessupport/salesagent/internal/transcript"
)

// AgentID is the observability registry id of the sales agent.
const AgentID = "sales-support-agent"

// Server holds the initialized sales agent.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Orchestrator runs sales summaries; the CLI calls it directly.
	Orchestrator *orchestrator.Orchestrator

	Store  store.Store
	Hub    *hub.Hub
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	outbox            *hub.Outbox
	stopJanitor       func()
	shutdownTelemetry func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Server from an explicit configuration.
// Misconfiguration fails here, before any request is served.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("✅ LLM provider initialized")

	durable, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	h := hub.New()
	if cfg.Notify.WebhookURL != "" {
		h.AddSink(hub.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret,
			hub.WithTopics(cfg.Notify.WebhookTopics...)))
		log.Info().Str("url", cfg.Notify.WebhookURL).Msg("✅ Webhook sink registered")
	}
	outbox := hub.NewOutbox(h, cfg.Notify.QueueSize)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs := observability.New(outbox, observability.WithRegisterer(reg))
	obs.RegisterAgent(AgentID, orchestrator.AgentName, "SalesAgent", "Active")
	notes := notify.NewBroadcaster(outbox)

	ts, err := transcript.New(durable,
		transcript.WithCacheSize(cfg.Transcript.CacheSize),
		transcript.WithSummaryLimit(cfg.Transcript.SummaryLimit),
	)
	if err != nil {
		_ = outbox.Close(ctx)
		_ = durable.Close()
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("init transcript: %w", err)
	}

	stopJanitor, err := startJanitor(ctx, cfg.Transcript.Retention, ts)
	if err != nil {
		_ = outbox.Close(ctx)
		_ = durable.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	texts := locale.For(cfg.Locale.DefaultLanguage)
	registry := tools.NewRegistry(cfg.Tools, cfg.M365.Configured(), nil, tools.WithStrings(texts))
	if !cfg.M365.Configured() {
		log.Warn().Msg("⚠️ Microsoft 365 is not configured; tools will report it to the model")
	}
	agent := llm.NewAgent(provider, registry,
		llm.WithMaxTurns(cfg.LLM.MaxTurns),
		llm.WithTimeout(cfg.LLM.Timeout),
	)

	orch := orchestrator.New(agent, notes, obs, ts, orchestrator.WithStrings(texts))
	log.Info().Msg("✅ Orchestrator initialized")

	router := api.NewRouter(api.Deps{
		Handlers: &handlers.Handlers{
			Summarizer:    orch,
			Bot:           bot.New(orch, obs, ts, AgentID, bot.WithStrings(texts)),
			Observability: obs,
			Notifications: notes,
			Transcript:    ts,
			Store:         durable,
			ServiceName:   cfg.Telemetry.ServiceName,
			Version:       cfg.Version,
		},
		Hub:      h,
		Auth:     middleware.NewAPIKeyAuth(cfg.Auth.APIKeys),
		Gatherer: reg,
	})

	return &Server{
		Handler:           router,
		Orchestrator:      orch,
		Store:             durable,
		Hub:               h,
		Config:            cfg,
		Port:              cfg.Port,
		outbox:            outbox,
		stopJanitor:       stopJanitor,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// startJanitor launches the transcript retention sweep when a maximum age
// is configured. The returned func stops it.
func startJanitor(ctx context.Context, cfg config.RetentionConfig, ts *transcript.Store) (func(), error) {
	if cfg.MaxAge <= 0 {
		return func() {}, nil
	}

	opts := []retention.Option{retention.WithInterval(cfg.Interval)}
	if cfg.ArchiveDir != "" {
		archiver := retention.NewLocalFileArchiver(cfg.ArchiveDir, cfg.Compress)
		if err := archiver.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("init transcript archive: %w", err)
		}
		opts = append(opts, retention.WithArchiver(archiver))
	}

	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		retention.NewJanitor(ts, cfg.MaxAge, opts...).Start(janitorCtx)
	}()

	// stop returns once an in-flight cycle has finished, so the store is
	// never closed underneath it.
	return func() {
		cancel()
		<-done
	}, nil
}

// Shutdown stops the retention janitor, drains queued broadcasts, closes the store and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopJanitor()
	return errors.Join(
		s.outbox.Close(ctx),
		s.Store.Close(),
		s.shutdownTelemetry(ctx),
	)
}
