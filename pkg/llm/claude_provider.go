package llm

import (
	"context"
	"fmt"

	corellm "github.com/MimeLyc/agent-core-go/pkg/llm"
)

// ClaudeProvider implements Provider for the Claude API, delegating the wire
// protocol and retry handling to the agent-core-go client.
type ClaudeProvider struct {
	inner corellm.LLMProvider
}

// NewClaudeProvider creates a new Claude API provider.
func NewClaudeProvider(cfg ProviderConfig) (*ClaudeProvider, error) {
	inner, err := corellm.NewLLMProvider(corellm.LLMProviderConfig{
		Type:           corellm.ProviderClaude,
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		TimeoutSeconds: cfg.TimeoutSeconds,
		MaxAttempts:    cfg.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("create claude provider: %w", err)
	}
	return &ClaudeProvider{inner: inner}, nil
}

// Name returns the provider name.
func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Complete sends the conversation to the Claude API and returns the reply.
func (p *ClaudeProvider) Complete(ctx context.Context, req Request) (Response, error) {
	system, conversation := splitSystem(req)

	coreReq := corellm.AgentRequest{
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, msg := range conversation {
		role := corellm.RoleUser
		if msg.Role == RoleAssistant {
			role = corellm.RoleAssistant
		}
		coreReq.Messages = append(coreReq.Messages, corellm.NewTextMessage(role, msg.Content))
	}

	resp, err := p.inner.Call(ctx, coreReq)
	if err != nil {
		return Response{}, &ProviderError{Provider: p.Name(), Err: err}
	}

	var stopReason StopReason
	switch resp.StopReason {
	case corellm.StopReasonMaxTokens:
		stopReason = StopMaxTokens
	default:
		stopReason = StopEndTurn
	}

	return Response{
		Text:       resp.GetText(),
		Model:      resp.Model,
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
