package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hehepig166/blueprint-agent/internal/config"
	"github.com/hehepig166/blueprint-agent/internal/controller/searchapi"
	"github.com/hehepig166/blueprint-agent/pkg/agent"
	"github.com/hehepig166/blueprint-agent/pkg/allowlist"
	"github.com/hehepig166/blueprint-agent/pkg/leanexplore"
	"github.com/hehepig166/blueprint-agent/pkg/llm"
	"github.com/hehepig166/blueprint-agent/pkg/logging"
)

func main() {
	var printConfig bool
	var outputFormat string
	flag.BoolVar(&printConfig, "print-config", false, "print resolved configuration and exit")
	flag.StringVar(&outputFormat, "format", "text", "output format: text or json")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
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
		fmt.Fprintf(os.Stdout, "listen_addr=%s\nlean_explore_base_url=%s\nsearch_limit=%d\n",
			cfg.ListenAddr(), cfg.LeanExploreBaseURL, cfg.SearchLimit)
		return
	}

	ipAllowlist, err := allowlist.Parse(cfg.IPAllowlist)
	if err != nil {
		log.Fatalf("allowlist error: %v", err)
	}
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("llm provider error: %v", err)
	}
	client, err := leanexplore.New(cfg.LeanExploreBaseURL, cfg.LeanExploreAPIKey)
	if err != nil {
		log.Fatalf("lean explore error: %v", err)
	}

	logger := logging.New(cfg.LogJSON)

	// Each request drives its own agent so chat history stays per-request.
	factory := func() searchapi.SearchAgent {
		return agent.NewLeanSearchAgent(provider, client)
	}

	srv := searchapi.New(factory, ipAllowlist).
		WithLimit(cfg.SearchLimit).
		WithLogger(logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr(), "provider", string(cfg.LLM.Type))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
