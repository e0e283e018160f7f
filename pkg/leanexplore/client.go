package leanexplore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8000/api/v1"

	// DefaultLimit is the result cap used when the caller passes limit <= 0.
	DefaultLimit = 50

	defaultMaxAttempts = 5
	defaultBackoffSec  = 2
)

// ErrMissingAPIKey is returned by New when no credential is configured.
// Clients are constructed at startup, so a missing key fails the process
// before any search runs.
var ErrMissingAPIKey = errors.New("lean explore API key is missing")

// Declaration identifies a Lean declaration.
type Declaration struct {
	LeanName string `json:"lean_name"`
}

// Candidate is one ranked search result from the Lean Explore API.
type Candidate struct {
	ID                   int         `json:"id,omitempty"`
	PrimaryDeclaration   Declaration `json:"primary_declaration"`
	SourceFile           string      `json:"source_file,omitempty"`
	RangeStartLine       int         `json:"range_start_line,omitempty"`
	DisplayStatementText string      `json:"display_statement_text,omitempty"`
	Docstring            string      `json:"docstring,omitempty"`
	InformalDescription  string      `json:"informal_description,omitempty"`
	Score                float64     `json:"score,omitempty"`
}

// Name returns the candidate's Lean name.
func (c Candidate) Name() string {
	return c.PrimaryDeclaration.LeanName
}

// SearchError reports a failed search call. It is recoverable: callers record
// it and keep going.
type SearchError struct {
	// Status is the last HTTP status, zero when the request never completed.
	Status int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("lean explore search: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("lean explore search: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// Client talks to the Lean Explore search API.
type Client struct {
	baseURL string
	apiKey  string

	HTTPClient  *http.Client
	MaxAttempts int
	Backoff     func(int) time.Duration
	Sleep       func(time.Duration)
}

// New creates a Lean Explore client. The API key is required.
func New(baseURL, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: defaultMaxAttempts,
	}, nil
}

// Search runs a query against the API and returns ranked candidates, capped
// to limit client-side (the API may return more than asked). The order is the
// API's ranking. An empty result list is a valid outcome.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &SearchError{Err: errors.New("search query is empty")}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	endpoint, err := c.buildSearchURL(query, limit)
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := c.Backoff
	if backoff == nil {
		backoff = searchDefaultBackoff
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	log.Printf("[leanexplore] GET %s", endpoint)

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, err := c.doRequest(ctx, client, endpoint)
		if err == nil && status < 300 {
			results, parseErr := parseSearchResponse(body)
			if parseErr != nil {
				return nil, &SearchError{Status: status, Err: parseErr}
			}
			if len(results) > limit {
				results = results[:limit]
			}
			log.Printf("[leanexplore] search returned %d results", len(results))
			return results, nil
		}
		lastErr = wrapSearchAPIError(body, status, err)
		lastStatus = status
		log.Printf("[leanexplore] ERROR: attempt %d/%d failed: %v", attempt, maxAttempts, lastErr)
		if attempt == maxAttempts || !shouldRetrySearch(status, err) {
			return nil, &SearchError{Status: status, Err: lastErr}
		}
		sleep(backoff(attempt))
	}
	return nil, &SearchError{Status: lastStatus, Err: lastErr}
}

func (c *Client) buildSearchURL(query string, limit int) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	base.Path = path.Join(base.Path, "search")
	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	base.RawQuery = values.Encode()
	return base.String(), nil
}

func (c *Client) doRequest(ctx context.Context, client *http.Client, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

func parseSearchResponse(body []byte) ([]Candidate, error) {
	var resp struct {
		Results []Candidate `json:"results"`
		Count   int         `json:"count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return resp.Results, nil
}

func wrapSearchAPIError(body []byte, status int, err error) error {
	if err != nil {
		return err
	}
	if status == 0 {
		return errors.New("search request failed")
	}

	var errResp struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		return fmt.Errorf("search API error %d: %s", status, errResp.Detail)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("search API error: %d %s", status, msg)
}

func shouldRetrySearch(status int, err error) bool {
	if err != nil {
		return true
	}
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	return status >= 500
}

func searchDefaultBackoff(attempt int) time.Duration {
	base := float64(defaultBackoffSec) * float64(time.Second)
	factor := math.Pow(2, float64(attempt-1))
	jitter := 0.5 + rand.Float64()
	return time.Duration(base * factor * jitter)
}
