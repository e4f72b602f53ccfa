package request

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// PartType is the tag of a typed content part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartAudio      PartType = "audio"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a message's content when the content is not a bare
// string. Exactly the fields relevant to Type are meaningful; the rest are
// zero.
type Part struct {
	Type PartType `json:"type"`

	// Text carries PartText content.
	Text string `json:"text,omitempty"`

	// Image carries PartImage content: a URL or a data: URI.
	ImageURL string `json:"image_url,omitempty"`

	// Audio carries PartAudio content: base64-encoded payload and format.
	AudioData   string `json:"audio_data,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`

	// ToolCallID/ToolCallName/ToolCallArgs carry PartToolCall content.
	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolCallName string `json:"tool_call_name,omitempty"`
	ToolCallArgs string `json:"tool_call_args,omitempty"`

	// ToolResultID/ToolResultContent carry PartToolResult content.
	ToolResultID      string `json:"tool_result_id,omitempty"`
	ToolResultContent string `json:"tool_result_content,omitempty"`
}

// Content is a message's body: either plain text, or an ordered sequence of
// typed parts. Exactly one of Text or Parts is meaningful.
type Content struct {
	Text  string
	Parts []Part
}

// IsText reports whether this content is a bare string.
func (c Content) IsText() bool { return c.Parts == nil }

// TextContent is a convenience constructor for plain string content.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent is a convenience constructor for structured content.
func PartsContent(parts ...Part) Content { return Content{Parts: parts} }

func (c Content) wellFormed() bool {
	if c.Parts == nil {
		return true
	}
	if len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		switch p.Type {
		case PartText, PartImage, PartAudio, PartToolCall, PartToolResult:
		default:
			return false
		}
	}
	return true
}

// Message is a single entry in Request.Messages.
type Message struct {
	Role    Role
	Content Content
	// Name optionally disambiguates multiple participants with the same Role.
	Name string
}
