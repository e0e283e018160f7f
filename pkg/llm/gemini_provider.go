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
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"
	geminiAPIVersion     = "v1beta"
)

// GeminiProvider implements Provider for the Gemini API.
type GeminiProvider struct {
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

// NewGeminiProvider creates a new Gemini API provider.
func NewGeminiProvider(cfg ProviderConfig) *GeminiProvider {
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
		baseURL = defaultGeminiBaseURL
	}

	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}

	return &GeminiProvider{
		BaseURL:     baseURL,
		APIKey:      cfg.APIKey,
		Model:       model,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
		MaxAttempts: maxAttempts,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete sends the conversation to the Gemini API and returns the reply.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, status, err := p.complete(ctx, req)
	if err != nil {
		return Response{}, &ProviderError{Provider: p.Name(), Status: status, Err: err}
	}
	return resp, nil
}

func (p *GeminiProvider) complete(ctx context.Context, req Request) (Response, int, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return Response{}, 0, errors.New("Gemini API key is empty")
	}
	if strings.TrimSpace(p.Model) == "" {
		return Response{}, 0, errors.New("Gemini API model is empty")
	}

	geminiReq := p.convertToGeminiRequest(req)

	log.Printf("[gemini-provider] calling API: model=%s max_tokens=%d messages=%d",
		p.Model, p.MaxTokens, len(req.Messages))

	payload, err := json.Marshal(geminiReq)
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
		log.Printf("[gemini-provider] API request attempt %d/%d", attempt, maxAttempts)
		respBody, status, err := p.doRequest(ctx, client, payload)
		log.Printf("[gemini-provider] API response: status=%d body_size=%d err=%v", status, len(respBody), err)

		if err == nil && status < 400 {
			resp, parseErr := parseGeminiResponse(respBody)
			if parseErr != nil {
				log.Printf("[gemini-provider] ERROR: failed to parse response: %v", parseErr)
				// Treat an unparseable body with 2xx status as retriable
				lastErr = parseErr
				lastStatus = status
				if attempt < maxAttempts {
					backoffDuration := backoff(attempt)
					log.Printf("[gemini-provider] retrying after parse error in %v", backoffDuration)
					sleep(backoffDuration)
					continue
				}
				return Response{}, status, parseErr
			}
			log.Printf("[gemini-provider] parsed response: stop_reason=%s text_len=%d",
				resp.StopReason, len(resp.Text))
			return resp, status, nil
		}
		lastErr = wrapGeminiAPIError(respBody, status, err)
		lastStatus = status
		log.Printf("[gemini-provider] ERROR: attempt %d failed: %v", attempt, lastErr)
		if attempt == maxAttempts || !shouldRetry(status, err) {
			log.Printf("[gemini-provider] giving up after %d attempts", attempt)
			return Response{}, status, lastErr
		}
		backoffDuration := backoff(attempt)
		log.Printf("[gemini-provider] retrying in %v", backoffDuration)
		sleep(backoffDuration)
	}
	return Response{}, lastStatus, lastErr
}

// Gemini request/response types

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// convertToGeminiRequest converts a Request to the Gemini wire format.
func (p *GeminiProvider) convertToGeminiRequest(req Request) geminiRequest {
	system, messages := splitSystem(req)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.MaxTokens
	}

	out := geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     req.Temperature,
		},
	}
	if system != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return out
}

func parseGeminiResponse(body []byte) (Response, error) {
	if len(body) == 0 {
		return Response{}, errors.New("API returned empty response body")
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return Response{}, fmt.Errorf("parse response: %w (body: %s)", err, truncateForLog(string(body), 500))
	}

	if len(geminiResp.Candidates) == 0 {
		return Response{}, errors.New("Gemini response has no candidates")
	}

	candidate := geminiResp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	var stopReason StopReason
	switch candidate.FinishReason {
	case "MAX_TOKENS":
		stopReason = StopMaxTokens
	default:
		stopReason = StopEndTurn
	}

	model := geminiResp.ModelVersion

	return Response{
		Text:       text,
		Model:      model,
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func (p *GeminiProvider) doRequest(ctx context.Context, client *http.Client, payload []byte) ([]byte, int, error) {
	endpoint, err := buildGeminiEndpoint(p.BaseURL, p.Model)
	if err != nil {
		return nil, 0, err
	}
	log.Printf("[gemini-provider] POST %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}

	// Gemini authenticates with the x-goog-api-key header
	req.Header.Set("x-goog-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[gemini-provider] HTTP request failed: %v", err)
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

func buildGeminiEndpoint(baseURL, model string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.Path = base.Path + fmt.Sprintf("/%s/models/%s:generateContent", geminiAPIVersion, model)
	return base.String(), nil
}

func wrapGeminiAPIError(body []byte, status int, err error) error {
	if err != nil {
		return err
	}
	if status == 0 {
		return errors.New("Gemini API request failed")
	}

	// Try to parse error response
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return fmt.Errorf("Gemini API error %d: %s - %s", status, errResp.Error.Status, errResp.Error.Message)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("Gemini API error: %d %s", status, msg)
}
