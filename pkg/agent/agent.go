// Package agent implements the conversational agents built on top of the LLM
// providers: a generic chat agent with rolling history, the Lean search agent
// that drives query translation and result analysis, and the blueprint agent
// that turns a theorem statement into a Lean blueprint draft.
package agent

import (
	"context"

	"github.com/hehepig166/blueprint-agent/pkg/llm"
)

const defaultMaxHistory = 40

// ChatAgent is a stateful conversation with a single provider. It keeps a
// rolling window of messages and replays it on every call so the model sees
// the conversation so far.
type ChatAgent struct {
	provider     llm.Provider
	id           string
	systemPrompt string
	maxHistory   int
	history      []llm.Message
}

// Option configures a ChatAgent.
type Option func(*ChatAgent)

// WithID sets the agent identifier used in logs.
func WithID(id string) Option {
	return func(a *ChatAgent) {
		a.id = id
	}
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) Option {
	return func(a *ChatAgent) {
		a.systemPrompt = prompt
	}
}

// WithMaxHistory caps how many messages the agent keeps. Zero or negative
// means unlimited.
func WithMaxHistory(n int) Option {
	return func(a *ChatAgent) {
		a.maxHistory = n
	}
}

// NewChatAgent builds an agent over the given provider.
func NewChatAgent(provider llm.Provider, opts ...Option) *ChatAgent {
	a := &ChatAgent{
		provider:   provider,
		id:         "chat-agent",
		maxHistory: defaultMaxHistory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent identifier.
func (a *ChatAgent) ID() string {
	return a.id
}

// Chat appends content as a user message, sends the full history to the
// provider and records the reply. The user message stays in history even when
// the call fails, so a retry resends it.
func (a *ChatAgent) Chat(ctx context.Context, content string) (string, error) {
	a.history = append(a.history, llm.NewMessage(llm.RoleUser, content))
	a.trimHistory()

	resp, err := a.provider.Complete(ctx, llm.Request{
		System:   a.systemPrompt,
		Messages: a.history,
	})
	if err != nil {
		return "", err
	}

	a.history = append(a.history, resp.ToMessage())
	a.trimHistory()
	return resp.Text, nil
}

// Generate runs a single-turn completion: only the prompt is sent, not the
// history. The exchange is still recorded so later Chat calls can refer back
// to it.
func (a *ChatAgent) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.provider.Complete(ctx, llm.Request{
		System:   a.systemPrompt,
		Messages: []llm.Message{llm.NewMessage(llm.RoleUser, prompt)},
	})
	if err != nil {
		return "", err
	}

	a.history = append(a.history,
		llm.NewMessage(llm.RoleUser, prompt),
		resp.ToMessage(),
	)
	a.trimHistory()
	return resp.Text, nil
}

// History returns a copy of the recorded conversation.
func (a *ChatAgent) History() []llm.Message {
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Reset drops the recorded conversation.
func (a *ChatAgent) Reset() {
	a.history = nil
}

// LastResponse returns the most recent assistant message, or "" if there is
// none yet.
func (a *ChatAgent) LastResponse() string {
	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].Role == llm.RoleAssistant {
			return a.history[i].Content
		}
	}
	return ""
}

func (a *ChatAgent) trimHistory() {
	if a.maxHistory <= 0 || len(a.history) <= a.maxHistory {
		return
	}
	a.history = a.history[len(a.history)-a.maxHistory:]
}
