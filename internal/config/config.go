package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hehepig166/blueprint-agent/pkg/llm"
)

// Config holds runtime configuration shared by the binaries.
type Config struct {
	ServerHost  string
	ServerPort  int
	IPAllowlist string

	LeanExploreBaseURL string
	LeanExploreAPIKey  string
	SearchLimit        int

	LogDir  string
	LogJSON bool

	// LLM provider settings consumed by pkg/llm.NewProvider.
	LLM llm.ProviderConfig
}

const (
	defaultServerHost       = "0.0.0.0"
	defaultServerPort       = 8000
	defaultLeanExploreBase  = "http://localhost:8000/api/v1"
	defaultSearchLimit      = 50
	defaultLogDir           = "logs"
	defaultProvider         = string(llm.ProviderOpenAI)
	defaultOpenAIModel      = "google/gemini-2.5-flash"
	defaultOpenAIBaseURL    = "https://openrouter.ai/api/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

// Load loads configuration from environment variables.
func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

// LoadFromEnv loads configuration from a getenv-like function.
func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		ServerHost:         getOrDefault(getenv, "SERVER_HOST", defaultServerHost),
		ServerPort:         getIntOrDefault(getenv, "SERVER_PORT", defaultServerPort),
		IPAllowlist:        getenv("IP_ALLOWLIST"),
		LeanExploreBaseURL: getOrDefault(getenv, "LEAN_EXPLORE_BASE_URL", defaultLeanExploreBase),
		LeanExploreAPIKey:  getenv("LEAN_EXPLORE_API_KEY"),
		SearchLimit:        getIntOrDefault(getenv, "SEARCH_LIMIT", defaultSearchLimit),
		LogDir:             getOrDefault(getenv, "LOG_DIR", defaultLogDir),
		LogJSON:            getBoolOrDefault(getenv, "LOG_JSON", false),
		LLM:                loadLLMConfig(getenv),
	}

	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return Config{}, fmt.Errorf("SERVER_PORT %d is out of range", cfg.ServerPort)
	}
	if cfg.SearchLimit < 1 {
		return Config{}, errors.New("SEARCH_LIMIT must be at least 1")
	}

	// The Lean Explore key is checked where the client is constructed, so
	// the blueprint binary runs without one.
	switch cfg.LLM.Type {
	case llm.ProviderGemini:
		if cfg.LLM.APIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	case llm.ProviderOpenAI:
		if cfg.LLM.APIKey == "" {
			return Config{}, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case llm.ProviderClaude:
		if cfg.LLM.APIKey == "" {
			return Config{}, errors.New("ANTHROPIC_API_KEY is required for the claude provider")
		}
		if cfg.LLM.Model == "" {
			return Config{}, errors.New("MODEL_NAME is required for the claude provider")
		}
	default:
		return Config{}, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLM.Type)
	}
	return cfg, nil
}

// ListenAddr returns the address the search server binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// loadLLMConfig selects the credential and endpoint variables matching the
// configured provider.
func loadLLMConfig(getenv func(string) string) llm.ProviderConfig {
	cfg := llm.ProviderConfig{
		Type:           llm.ProviderType(strings.ToLower(getOrDefault(getenv, "LLM_PROVIDER", defaultProvider))),
		Model:          getenv("MODEL_NAME"),
		MaxTokens:      getIntOrDefault(getenv, "LLM_MAX_TOKENS", 0),
		TimeoutSeconds: getIntOrDefault(getenv, "LLM_TIMEOUT_SECONDS", 0),
		MaxAttempts:    getIntOrDefault(getenv, "LLM_MAX_ATTEMPTS", 0),
	}
	switch cfg.Type {
	case llm.ProviderGemini:
		// Model and base URL defaults live in the provider.
		cfg.BaseURL = getenv("GEMINI_BASE_URL")
		cfg.APIKey = getenv("GEMINI_API_KEY")
	case llm.ProviderClaude:
		cfg.BaseURL = getOrDefault(getenv, "ANTHROPIC_BASE_URL", defaultAnthropicBaseURL)
		cfg.APIKey = getenv("ANTHROPIC_API_KEY")
	default:
		cfg.BaseURL = getOrDefault(getenv, "OPENAI_BASE_URL", defaultOpenAIBaseURL)
		cfg.APIKey = getenv("OPENAI_API_KEY")
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	}
	return cfg
}

func getOrDefault(getenv func(string) string, key, def string) string {
	val := getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getIntOrDefault(getenv func(string) string, key string, def int) int {
	val := getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getBoolOrDefault(getenv func(string) string, key string, def bool) bool {
	val := strings.ToLower(getenv(key))
	if val == "" {
		return def
	}
	return val == "true" || val == "1" || val == "yes"
}
