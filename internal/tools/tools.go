// Package tools defines the sales data-retrieval tools offered to the LLM
// and executes them against an MCP tool server.
//
// Tool execution never returns an error to the model loop. Missing
// configuration yields a fixed informational string and failures are
// reported as text so the model can tell the user what went wrong.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/config"
	"github.com/salessupport/salesagent/internal/locale"
)

// Tool names exposed to the model.
const (
	SearchSalesEmails    = "SearchSalesEmails"
	SearchSalesMeetings  = "SearchSalesMeetings"
	SearchSalesDocuments = "SearchSalesDocuments"
	SearchSalesMessages  = "SearchSalesMessages"
)

// DataSources lists the display names of the sources the tools cover.
var DataSources = []string{"Outlook", "Calendar", "SharePoint", "Teams"}

// Definition describes one tool to the model.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]any
}

type tool struct {
	Definition
	endpoint    string
	errorPrefix string
	defaults    map[string]string
}

// Caller invokes a named tool on an MCP server. *Client satisfies it.
type Caller interface {
	CallTool(ctx context.Context, endpoint, name string, args map[string]any) (string, error)
}

// Registry holds the sales tools and dispatches calls to them.
type Registry struct {
	tools      []*tool
	byName     map[string]*tool
	caller     Caller
	configured bool
	// notConfigured is returned by every tool when Microsoft 365 or the
	// tool endpoint is not configured.
	notConfigured string
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrings sets the language of the not-configured message.
// Japanese is the default.
func WithStrings(s locale.Strings) Option {
	return func(r *Registry) { r.notConfigured = s.NotConfigured }
}

// NewRegistry builds the four sales tools from cfg. m365Configured gates
// every tool; a tool also needs an endpoint (its own or cfg.ServerURL).
// caller may be nil to use an HTTP client built from cfg.
func NewRegistry(cfg config.ToolsConfig, m365Configured bool, caller Caller, opts ...Option) *Registry {
	if caller == nil {
		caller = NewClient(nil, cfg.APIKey, cfg.Timeout, cfg.MaxRetries)
	}

	pick := func(own string) string {
		if own != "" {
			return own
		}
		return cfg.ServerURL
	}

	r := &Registry{
		byName:        make(map[string]*tool),
		caller:        caller,
		configured:    m365Configured,
		notConfigured: locale.For(locale.Default).NotConfigured,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, t := range []*tool{
		{
			Definition: Definition{
				Name:        SearchSalesEmails,
				Description: "商談関連のメールを検索して取得します",
				Parameters: dateRangeSchema(
					"検索キーワード（例: 商談,提案,見積）",
				),
			},
			endpoint:    pick(cfg.Mail),
			errorPrefix: "❌ メール取得エラー",
			defaults:    map[string]string{"keywords": "商談,提案,見積,契約"},
		},
		{
			Definition: Definition{
				Name:        SearchSalesMeetings,
				Description: "商談関連のカレンダー予定を検索して取得します",
				Parameters: dateRangeSchema(
					"検索キーワード（例: 商談,打ち合わせ,ミーティング）",
				),
			},
			endpoint:    pick(cfg.Calendar),
			errorPrefix: "❌ カレンダー取得エラー",
			defaults:    map[string]string{"keywords": "商談,打ち合わせ,ミーティング,面談"},
		},
		{
			Definition: Definition{
				Name:        SearchSalesDocuments,
				Description: "SharePoint から商談関連ドキュメントを検索して取得します",
				Parameters: dateRangeSchema(
					"検索キーワード（例: 提案書,見積,契約書）",
				),
			},
			endpoint:    pick(cfg.SharePoint),
			errorPrefix: "❌ SharePoint ドキュメント取得エラー",
			defaults:    map[string]string{"keywords": "提案書,見積,見積もり,契約書,RFP"},
		},
		{
			Definition: Definition{
				Name:        SearchSalesMessages,
				Description: "Teams チャネルから商談関連メッセージを検索して取得します",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"teamId":    map[string]any{"type": "string", "description": "Teams ID（省略可）"},
						"channelId": map[string]any{"type": "string", "description": "チャネル ID（省略可）"},
						"keywords":  map[string]any{"type": "string", "description": "検索キーワード（例: 商談,進捗,提案）"},
					},
				},
			},
			endpoint:    pick(cfg.Teams),
			errorPrefix: "❌ Teams メッセージ取得エラー",
			defaults:    map[string]string{"keywords": "商談,進捗,提案,クライアント"},
		},
	} {
		r.tools = append(r.tools, t)
		r.byName[t.Name] = t
	}
	return r
}

func dateRangeSchema(keywordsDesc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"startDate": map[string]any{"type": "string", "description": "検索開始日 (yyyy-MM-dd)"},
			"endDate":   map[string]any{"type": "string", "description": "検索終了日 (yyyy-MM-dd)"},
			"keywords":  map[string]any{"type": "string", "description": keywordsDesc},
		},
		"required": []string{"startDate", "endDate"},
	}
}

// Definitions returns the tool definitions in a stable order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.Definition
	}
	return defs
}

// Call executes the named tool with JSON-encoded arguments and returns the
// text the model should see.
func (r *Registry) Call(ctx context.Context, name, arguments string) string {
	t, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("❌ 不明なツールです: %s", name)
	}
	if !r.configured || t.endpoint == "" {
		return r.notConfigured
	}

	args := map[string]any{}
	if s := strings.TrimSpace(arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return fmt.Sprintf("%s: invalid arguments: %v", t.errorPrefix, err)
		}
	}
	for k, v := range t.defaults {
		if cur, ok := args[k].(string); !ok || strings.TrimSpace(cur) == "" {
			args[k] = v
		}
	}

	start := time.Now()
	out, err := r.caller.CallTool(ctx, t.endpoint, t.Name, args)
	if err != nil {
		log.Error().Err(err).Str("tool", t.Name).Dur("elapsed", time.Since(start)).Msg("Tool call failed")
		return fmt.Sprintf("%s: %v", t.errorPrefix, err)
	}
	log.Debug().Str("tool", t.Name).Dur("elapsed", time.Since(start)).Int("bytes", len(out)).Msg("Tool call complete")
	return out
}
