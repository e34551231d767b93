package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/tools"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultMaxTurns is the maximum number of model and tool round trips.
const DefaultMaxTurns = 10

// SystemPrompt instructs the model how to build a sales summary.
const SystemPrompt = `あなたは営業支援エージェントです。
以下のツールを使用して、Microsoft 365 から商談関連情報を収集し、わかりやすくサマリを作成します。

【利用可能なツール】
1. SearchSalesEmails - Outlook メールから商談関連メールを検索
2. SearchSalesMeetings - Outlook カレンダーから商談予定を検索
3. SearchSalesDocuments - SharePoint から提案書・見積書などを検索
4. SearchSalesMessages - Teams チャネルから商談関連メッセージを検索

【重要な指示】
- ユーザーからの質問に基づいて、適切なツールを選択して情報を収集してください
- 複数のツールを組み合わせて、包括的な商談サマリを作成してください
- 日本語で丁寧に回答してください
- 収集した情報を整理して、読みやすい形式で提示してください
- データが見つからない場合は、その旨を明確に伝えてください`

// ToolSet is the set of tools the agent may call. *tools.Registry
// satisfies it.
type ToolSet interface {
	Definitions() []tools.Definition
	Call(ctx context.Context, name, arguments string) string
}

// Agent runs the tool-calling loop against a provider.
type Agent struct {
	provider     *Provider
	tools        ToolSet
	systemPrompt string
	maxTurns     int
	timeout      time.Duration
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithMaxTurns overrides DefaultMaxTurns.
func WithMaxTurns(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithTimeout bounds a whole Run. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) AgentOption {
	return func(a *Agent) { a.timeout = d }
}

// WithSystemPrompt replaces SystemPrompt.
func WithSystemPrompt(p string) AgentOption {
	return func(a *Agent) { a.systemPrompt = p }
}

// NewAgent creates an agent. ts may be nil for a tool-less agent.
func NewAgent(p *Provider, ts ToolSet, opts ...AgentOption) *Agent {
	a := &Agent{
		provider:     p,
		tools:        ts,
		systemPrompt: SystemPrompt,
		maxTurns:     DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProviderName returns the display name of the underlying provider.
func (a *Agent) ProviderName() string { return a.provider.Name() }

// Run sends prompt to the model and executes every tool call it requests
// until the model answers with text or the turn limit is reached. The
// returned conversation includes the system and user turns.
func (a *Agent) Run(ctx context.Context, prompt string) (Conversation, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var conv Conversation
	if a.systemPrompt != "" {
		conv.add(RoleSystem, TextPart{Text: a.systemPrompt})
	}
	conv.add(RoleUser, TextPart{Text: prompt})

	toolDefs := a.toolDefinitions()
	start := time.Now()

	for turn := 1; turn <= a.maxTurns; turn++ {
		msg, err := a.provider.complete(ctx, toMessages(conv), toolDefs)
		if err != nil {
			return conv, fmt.Errorf("completion failed (turn %d): %w", turn, err)
		}

		reply := fromMessage(msg)
		conv.Turns = append(conv.Turns, reply)

		calls := reply.ToolCalls()
		if len(calls) == 0 || a.tools == nil {
			log.Info().
				Str("provider", a.provider.Name()).
				Int("turns", turn).
				Dur("elapsed", time.Since(start)).
				Msg("Agent run complete")
			return conv, nil
		}

		for _, tc := range calls {
			out := a.tools.Call(ctx, tc.Name, tc.Arguments)
			conv.add(RoleTool, ToolResultPart{CallID: tc.ID, Name: tc.Name, Content: out})
		}

		log.Debug().
			Int("turn", turn).
			Int("tool_calls", len(calls)).
			Msg("Agent loop continuing")
	}

	log.Warn().Int("max_turns", a.maxTurns).Msg("Agent hit max turns")

	last := ""
	if t, ok := conv.Last(); ok {
		for _, p := range t.Parts {
			if r, ok := p.(ToolResultPart); ok {
				last = r.Content
			}
		}
	}
	conv.add(RoleAssistant, TextPart{Text: fmt.Sprintf("[最大ターン数 (%d) に達しました] %s", a.maxTurns, last)})
	return conv, nil
}

func (a *Agent) toolDefinitions() []openai.Tool {
	if a.tools == nil {
		return nil
	}
	defs := a.tools.Definitions()
	out := make([]openai.Tool, len(defs))
	for i, d := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return out
}

func toMessages(conv Conversation) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(conv.Turns))
	for _, t := range conv.Turns {
		switch t.Role {
		case RoleTool:
			for _, p := range t.Parts {
				if r, ok := p.(ToolResultPart); ok {
					msgs = append(msgs, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    r.Content,
						Name:       r.Name,
						ToolCallID: r.CallID,
					})
				}
			}
		default:
			m := openai.ChatCompletionMessage{Role: string(t.Role)}
			for _, p := range t.Parts {
				switch v := p.(type) {
				case TextPart:
					if m.Content != "" {
						m.Content += "\n\n"
					}
					m.Content += v.Text
				case ToolCallPart:
					m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
						ID:   v.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      v.Name,
							Arguments: v.Arguments,
						},
					})
				}
			}
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func fromMessage(m openai.ChatCompletionMessage) Turn {
	t := Turn{Role: RoleAssistant}
	if m.Content != "" {
		t.Parts = append(t.Parts, TextPart{Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		t.Parts = append(t.Parts, ToolCallPart{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return t
}
