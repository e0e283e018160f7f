package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/hehepig166/blueprint-agent/internal/config"
	"github.com/hehepig166/blueprint-agent/internal/service/session"
	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/llm"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4D96FF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

func main() {
	var logDir string
	var limit int
	var printConfig bool
	var outputFormat string
	flag.StringVar(&logDir, "log-dir", "", "directory for session and query logs (defaults to LOG_DIR)")
	flag.IntVar(&limit, "limit", 0, "maximum results per search (defaults to SEARCH_LIMIT)")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved configuration and exit")
	flag.StringVar(&outputFormat, "format", "text", "output format for -print-config: text or json")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if logDir != "" {
		cfg.LogDir = logDir
	}
	if limit > 0 {
		cfg.SearchLimit = limit
	}
	if printConfig {
		if outputFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cfg); err != nil {
				log.Fatalf("print config: %v", err)
			}
			return
		}
		fmt.Fprintf(os.Stdout, "log_dir=%s\nsearch_limit=%d\nlean_explore_base_url=%s\nllm_provider=%s\nmodel=%s\n",
			cfg.LogDir, cfg.SearchLimit, cfg.LeanExploreBaseURL, cfg.LLM.Type, cfg.LLM.Model)
		return
	}

	logger := logging.NewWithWriter(os.Stderr, cfg.LogJSON)

	fmt.Println(bannerStyle.Render("🚀 Initializing LeanSearchAgent..."))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("Provider: %s  Lean Explore: %s", cfg.LLM.Type, cfg.LeanExploreBaseURL)))

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("llm provider error: %v", err)
	}
	client, err := leanexplore.New(cfg.LeanExploreBaseURL, cfg.LeanExploreAPIKey)
	if err != nil {
		log.Fatalf("lean explore error: %v", err)
	}
	searchAgent := agent.NewLeanSearchAgent(provider, client)

	sess := session.New(session.Config{
		LogDir: cfg.LogDir,
		Limit:  cfg.SearchLimit,
		Logger: logger,
	}, searchAgent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(errorStyle.Render(fmt.Sprintf("session error: %v", err)))
		os.Exit(1)
	}
}
