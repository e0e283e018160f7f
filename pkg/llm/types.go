package llm

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// Message is a single conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Request is a completion request sent to a provider.
type Request struct {
	// System is the system prompt. System-role entries in Messages are
	// folded into it before the request goes on the wire.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// MaxTokens limits the response token count. Zero uses the provider default.
	MaxTokens int

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
}

// Response is the completed assistant turn.
type Response struct {
	Text       string
	Model      string
	StopReason StopReason
	Usage      Usage
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToMessage converts the response into a history message.
func (r Response) ToMessage() Message {
	return NewMessage(RoleAssistant, r.Text)
}
