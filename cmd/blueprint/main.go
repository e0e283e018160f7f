package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hehepig166/blueprint-agent/internal/config"
	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/llm"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

// urlList collects repeated -url flags.
type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return errors.New("url must not be empty")
	}
	*u = append(*u, trimmed)
	return nil
}

func main() {
	var statement string
	var statementFile string
	var urls urlList
	var contextText string
	var contextDir string
	var refineRounds int
	var outPath string
	var showHistory bool
	flag.StringVar(&statement, "statement", "", "theorem statement to build the blueprint for")
	flag.StringVar(&statementFile, "statement-file", "", "file containing the theorem statement")
	flag.Var(&urls, "url", "reference URL with proof material (repeatable)")
	flag.StringVar(&contextText, "context", "", "additional context passed to the generator")
	flag.StringVar(&contextDir, "context-dir", "", "project directory whose instruction file is appended to the prompt")
	flag.IntVar(&refineRounds, "refine", 1, "number of refinement rounds")
	flag.StringVar(&outPath, "out", "", "write the blueprint to this file instead of stdout")
	flag.BoolVar(&showHistory, "show-history", false, "print the full chat transcript after generation")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if statementFile != "" {
		raw, err := os.ReadFile(statementFile)
		if err != nil {
			log.Fatalf("read statement file: %v", err)
		}
		statement = string(raw)
	}
	if strings.TrimSpace(statement) == "" {
		log.Fatalf("a theorem statement is required: pass -statement or -statement-file")
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("llm provider error: %v", err)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogJSON)
	blueprintAgent := agent.NewBlueprintAgent(provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := logger.Stage("generate-blueprint", "refine_rounds", refineRounds, "reference_urls", len(urls))
	blueprint, err := blueprintAgent.Generate(ctx, agent.BlueprintRequest{
		Statement:         statement,
		ReferenceURLs:     urls,
		AdditionalContext: contextText,
		ContextDir:        contextDir,
		RefineRounds:      refineRounds,
	})
	done(err)
	if err != nil {
		log.Fatalf("blueprint error: %v", err)
	}

	if showHistory {
		for _, msg := range blueprintAgent.History() {
			fmt.Fprintf(os.Stderr, "%s: %s\n%s\n", msg.Role, msg.Content, strings.Repeat("-", 100))
		}
	}

	if outPath == "" {
		fmt.Println(blueprint)
		return
	}
	if err := os.WriteFile(outPath, []byte(blueprint+"\n"), 0o644); err != nil {
		log.Fatalf("write blueprint: %v", err)
	}
	logger.Info("blueprint written", "path", outPath, "bytes", len(blueprint))
}
