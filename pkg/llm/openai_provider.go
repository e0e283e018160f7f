package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenAIModel   = "google/gemini-2.5-flash"
	openaiChatPath       = "/chat/completions"
)

// OpenAIProvider implements Provider for OpenAI-compatible APIs.
// This supports OpenAI, OpenRouter, DeepSeek, and other compatible endpoints.
type OpenAIProvider struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
	Backoff     func(int) time.Duration
	Sleep       func(time.Duration)
}

// NewOpenAIProvider creates a new OpenAI-compatible API provider.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}

	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		BaseURL:     baseURL,
		APIKey:      cfg.APIKey,
		Model:       model,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
		MaxAttempts: maxAttempts,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends the conversation to the OpenAI-compatible API and returns the reply.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, status, err := p.complete(ctx, req)
	if err != nil {
		return Response{}, &ProviderError{Provider: p.Name(), Status: status, Err: err}
	}
	return resp, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req Request) (Response, int, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return Response{}, 0, errors.New("OpenAI API key is empty")
	}
	if strings.TrimSpace(p.Model) == "" {
		return Response{}, 0, errors.New("OpenAI API model is empty")
	}

	openaiReq := p.convertToOpenAIRequest(req)

	log.Printf("[openai-provider] calling API: model=%s max_tokens=%d messages=%d",
		openaiReq.Model, openaiReq.MaxTokens, len(openaiReq.Messages))

	payload, err := json.Marshal(openaiReq)
	if err != nil {
		return Response{}, 0, fmt.Errorf("marshal request: %w", err)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: p.Timeout}
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Printf("[openai-provider] API request attempt %d/%d", attempt, maxAttempts)
		respBody, status, err := p.doRequest(ctx, client, payload)
		log.Printf("[openai-provider] API response: status=%d body_size=%d err=%v", status, len(respBody), err)

		if err == nil && status < 400 {
			resp, parseErr := parseOpenAIResponse(respBody)
			if parseErr != nil {
				log.Printf("[openai-provider] ERROR: failed to parse response: %v", parseErr)
				lastErr = parseErr
				lastStatus = status
				if attempt < maxAttempts {
					backoffDuration := backoff(attempt)
					log.Printf("[openai-provider] retrying after parse error in %v", backoffDuration)
					sleep(backoffDuration)
					continue
				}
				return Response{}, status, parseErr
			}
			log.Printf("[openai-provider] parsed response: stop_reason=%s text_len=%d",
				resp.StopReason, len(resp.Text))
			return resp, status, nil
		}
		lastErr = wrapOpenAIAPIError(respBody, status, err)
		lastStatus = status
		log.Printf("[openai-provider] ERROR: attempt %d failed: %v", attempt, lastErr)
		if attempt == maxAttempts || !shouldRetry(status, err) {
			log.Printf("[openai-provider] giving up after %d attempts", attempt)
			return Response{}, status, lastErr
		}
		backoffDuration := backoff(attempt)
		log.Printf("[openai-provider] retrying in %v", backoffDuration)
		sleep(backoffDuration)
	}
	return Response{}, lastStatus, lastErr
}

// OpenAI request/response types

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// convertToOpenAIRequest converts a Request to the OpenAI wire format.
func (p *OpenAIProvider) convertToOpenAIRequest(req Request) openaiRequest {
	system, conversation := splitSystem(req)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.MaxTokens
	}

	messages := make([]openaiMessage, 0, len(conversation)+1)
	if system != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: system})
	}
	for _, msg := range conversation {
		messages = append(messages, openaiMessage{Role: string(msg.Role), Content: msg.Content})
	}

	return openaiRequest{
		Model:       p.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

func parseOpenAIResponse(body []byte) (Response, error) {
	if len(body) == 0 {
		return Response{}, errors.New("API returned empty response body")
	}

	var openaiResp openaiResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return Response{}, fmt.Errorf("parse response: %w (body: %s)", err, truncateForLog(string(body), 500))
	}

	if len(openaiResp.Choices) == 0 {
		return Response{}, errors.New("OpenAI response has no choices")
	}

	choice := openaiResp.Choices[0]

	var stopReason StopReason
	switch choice.FinishReason {
	case "length":
		stopReason = StopMaxTokens
	default:
		stopReason = StopEndTurn
	}

	return Response{
		Text:       choice.Message.Content,
		Model:      openaiResp.Model,
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  openaiResp.Usage.PromptTokens,
			OutputTokens: openaiResp.Usage.CompletionTokens,
		},
	}, nil
}

func (p *OpenAIProvider) doRequest(ctx context.Context, client *http.Client, payload []byte) ([]byte, int, error) {
	endpoint := buildOpenAIEndpoint(p.BaseURL)
	log.Printf("[openai-provider] POST %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}

	// OpenAI uses Bearer token authentication
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[openai-provider] HTTP request failed: %v", err)
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

// buildOpenAIEndpoint derives the chat completions URL. Bases that already
// end in /v1 (OpenRouter's does) or in the full path are not doubled.
func buildOpenAIEndpoint(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasSuffix(base, openaiChatPath):
		return base
	case strings.HasSuffix(base, "/v1"):
		return base + openaiChatPath
	default:
		return base + "/v1" + openaiChatPath
	}
}

func wrapOpenAIAPIError(body []byte, status int, err error) error {
	if err != nil {
		return err
	}
	if status == 0 {
		return errors.New("OpenAI API request failed")
	}

	// Try to parse error response
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return fmt.Errorf("OpenAI API error %d: %s - %s", status, errResp.Error.Type, errResp.Error.Message)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("OpenAI API error: %d %s", status, msg)
}
