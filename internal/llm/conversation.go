package llm

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part is one piece of a turn: TextPart, ToolCallPart or ToolResultPart.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

// ToolCallPart is a tool invocation requested by the model. Arguments is
// the raw JSON the model produced.
type ToolCallPart struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResultPart carries the output of one tool call back to the model.
type ToolResultPart struct {
	CallID  string
	Name    string
	Content string
}

func (TextPart) isPart()       {}
func (ToolCallPart) isPart()   {}
func (ToolResultPart) isPart() {}

// Turn is one message in a conversation.
type Turn struct {
	Role  Role
	Parts []Part
}

// Texts returns the text parts of the turn in order.
func (t Turn) Texts() []string {
	var out []string
	for _, p := range t.Parts {
		if tp, ok := p.(TextPart); ok {
			out = append(out, tp.Text)
		}
	}
	return out
}

// ToolCalls returns the tool call parts of the turn in order.
func (t Turn) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range t.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			out = append(out, tc)
		}
	}
	return out
}

// Conversation is the full exchange produced by one agent run.
type Conversation struct {
	Turns []Turn
}

// Last returns the final turn, if any.
func (c Conversation) Last() (Turn, bool) {
	if len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

func (c *Conversation) add(role Role, parts ...Part) {
	c.Turns = append(c.Turns, Turn{Role: role, Parts: parts})
}
