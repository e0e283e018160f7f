package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/agent-core-go/pkg/instructions"

	"github.com/hehepig166/blueprint-agent/pkg/llm"
)

// BlueprintRequest describes one blueprint generation run.
type BlueprintRequest struct {
	// Statement is the theorem to write a blueprint for. Required.
	Statement string
	// ReferenceURLs point at papers or notes containing the proof.
	ReferenceURLs []string
	// AdditionalContext is free-form material appended to the prompt.
	AdditionalContext string
	// ContextDir, when set, is scanned for project instruction files.
	ContextDir string
	// RefineRounds is how many refine passes to run. Values below one run a
	// single pass.
	RefineRounds int
}

// BlueprintAgent drives the blueprint pipeline: draft, refine, fix format.
// The whole pipeline runs inside one conversation so each pass can see the
// previous output.
type BlueprintAgent struct {
	*ChatAgent
}

// NewBlueprintAgent builds a blueprint agent over the given provider.
func NewBlueprintAgent(provider llm.Provider, opts ...Option) *BlueprintAgent {
	opts = append([]Option{WithID("blueprint-agent")}, opts...)
	return &BlueprintAgent{
		ChatAgent: NewChatAgent(provider, opts...),
	}
}

// Generate runs the full pipeline and returns the final blueprint body.
func (a *BlueprintAgent) Generate(ctx context.Context, req BlueprintRequest) (string, error) {
	if strings.TrimSpace(req.Statement) == "" {
		return "", errors.New("blueprint statement is empty")
	}

	draft, err := a.Chat(ctx, buildBlueprintPrompt(req))
	if err != nil {
		return "", fmt.Errorf("generate blueprint: %w", err)
	}
	if detail, incomplete := checkIncomplete(draft); incomplete {
		return "", fmt.Errorf("source check failed: %s", detail)
	}

	rounds := req.RefineRounds
	if rounds < 1 {
		rounds = 1
	}
	for round := 1; round <= rounds; round++ {
		if _, err := a.Chat(ctx, refineBlueprintPrompt); err != nil {
			return "", fmt.Errorf("refine blueprint (round %d): %w", round, err)
		}
		if _, err := a.Chat(ctx, refineFollowupPrompt); err != nil {
			return "", fmt.Errorf("refine blueprint (round %d): %w", round, err)
		}
	}

	final, err := a.Chat(ctx, fixFormatPrompt)
	if err != nil {
		return "", fmt.Errorf("fix blueprint format: %w", err)
	}
	return stripCheckSentinel(final), nil
}

func buildBlueprintPrompt(req BlueprintRequest) string {
	var b strings.Builder
	b.WriteString(generateBlueprintPrompt)
	b.WriteString("\n")
	fmt.Fprintf(&b, "\nTheorem statement:\n%s\n", req.Statement)

	if len(req.ReferenceURLs) > 0 {
		b.WriteString("\nReference URLs:")
		for _, u := range req.ReferenceURLs {
			fmt.Fprintf(&b, "\n- %s", u)
		}
		b.WriteString("\n")
	}
	if req.AdditionalContext != "" {
		fmt.Fprintf(&b, "\nAdditional context:\n%s\n", req.AdditionalContext)
	}
	if ins := loadProjectInstructions(req.ContextDir); ins != "" {
		fmt.Fprintf(&b, "\nProject instructions:\n%s\n", ins)
	}
	return b.String()
}

// loadProjectInstructions reads blueprint conventions from the context
// directory, if one was given.
func loadProjectInstructions(dir string) string {
	if dir == "" {
		return ""
	}
	result := instructions.Load(dir, instructions.LoadOptions{
		CandidateFiles: []string{"BLUEPRINT.md", "AGENT.md", "AGENTS.md"},
		MaxBytes:       instructions.DefaultMaxBytes,
	})
	return strings.TrimSpace(result.Content)
}

// checkIncomplete reports whether a draft starts with the incomplete
// sentinel, and extracts the model's explanation when it does.
func checkIncomplete(draft string) (string, bool) {
	trimmed := strings.TrimSpace(draft)
	if !strings.HasPrefix(trimmed, blueprintCheckIncomplete) {
		return "", false
	}
	detail := strings.TrimSpace(strings.TrimPrefix(trimmed, blueprintCheckIncomplete))
	if detail == "" {
		detail = "the provided sources do not contain a full proof"
	}
	return detail, true
}

func stripCheckSentinel(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, sentinel := range []string{blueprintCheckPassed, blueprintCheckIncomplete} {
		if strings.HasPrefix(trimmed, sentinel) {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, sentinel))
		}
	}
	return trimmed
}
