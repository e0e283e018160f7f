package leanexplore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(baseURL, "test-key")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	client.Backoff = func(int) time.Duration { return 0 }
	client.Sleep = func(time.Duration) {}
	return client
}

func candidateList(n int) []Candidate {
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candidate{
			ID:                 i + 1,
			PrimaryDeclaration: Declaration{LeanName: fmt.Sprintf("Mathlib.Result%d", i+1)},
			SourceFile:         "Mathlib/Algebra/Group/Basic.lean",
			RangeStartLine:     100 + i,
			Score:              1.0 - float64(i)*0.05,
		})
	}
	return out
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("http://localhost:8000/api/v1", "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "commutativity of addition" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": candidateList(10),
			"count":   10,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "commutativity of addition", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("len(results) = %d, want 10", len(results))
	}
	if results[0].Name() != "Mathlib.Result1" {
		t.Errorf("first result = %q, want rank order preserved", results[0].Name())
	}
	if results[9].Name() != "Mathlib.Result10" {
		t.Errorf("last result = %q", results[9].Name())
	}
}

func TestSearchCapsResultsToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": candidateList(5),
			"count":   5,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "group homomorphism", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("len(results) = %d, want 3", len(results))
	}
}

func TestSearchEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []Candidate{}, "count": 0})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "nonexistent lemma", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestSearchServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "index unavailable"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	client.MaxAttempts = 2

	_, err := client.Search(context.Background(), "ring", 5)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("error %T is not a *SearchError", err)
	}
	if searchErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", searchErr.Status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSearchRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"results": candidateList(1), "count": 1})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "field extension", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1", len(results))
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSearchDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Search(context.Background(), "ring", 5)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestCandidateName(t *testing.T) {
	c := Candidate{PrimaryDeclaration: Declaration{LeanName: "Nat.add_comm"}}
	if c.Name() != "Nat.add_comm" {
		t.Errorf("Name() = %q", c.Name())
	}
	if (Candidate{}).Name() != "" {
		t.Errorf("empty candidate Name() = %q, want empty", (Candidate{}).Name())
	}
}
