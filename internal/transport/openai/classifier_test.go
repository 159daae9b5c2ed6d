package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
	"github.com/northquay/leadex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
	}
}

func testCanonical() record.Canonical {
	return record.Canonical{
		Record: record.Record{
			PlaceID:     "p1",
			Name:        "Thanh Long Asia Food GmbH",
			FullAddress: "Hauptstr. 5, 10827 Berlin",
			Website:     "https://thanhlong.de",
			Phone:       "030 1234567",
			Categories:  []string{"food_wholesaler"},
		},
	}
}

func TestClassifier_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		body := `{"is_horeca_distributor": true, "is_ethnic_asian": true, "likely_frozen_poultry": true, "priority_score": 9, "contact_recommendation": "Call them."}`
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse(body))
	}))
	defer server.Close()

	c := NewClassifier(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	cls, err := c.Classify(context.Background(), testCanonical())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !cls.IsDistributor || !cls.IsEthnicAsian || !cls.LikelyFrozenPoultry {
		t.Errorf("flags = %+v, want all true", cls)
	}
	if cls.PriorityScore != 9 {
		t.Errorf("PriorityScore = %d, want 9", cls.PriorityScore)
	}
	if cls.Recommendation != "Call them." {
		t.Errorf("Recommendation = %q", cls.Recommendation)
	}
}

func TestClassifier_MarkdownFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := "```json\n{\"is_horeca_distributor\": false, \"priority_score\": 3, \"contact_recommendation\": \"Skip.\"}\n```"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse(body))
	}))
	defer server.Close()

	c := NewClassifier(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"})

	cls, err := c.Classify(context.Background(), testCanonical())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.IsDistributor {
		t.Error("IsDistributor = true, want false")
	}
	if cls.PriorityScore != 3 {
		t.Errorf("PriorityScore = %d, want 3", cls.PriorityScore)
	}
}

func TestClassifier_ScoreClamped(t *testing.T) {
	parsed, err := parseClassification(`{"priority_score": 42, "contact_recommendation": "x"}`)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.PriorityScore != 10 {
		t.Errorf("PriorityScore = %d, want clamp to 10", parsed.PriorityScore)
	}

	parsed, err = parseClassification(`{"priority_score": 0}`)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.PriorityScore != 1 {
		t.Errorf("PriorityScore = %d, want clamp to 1", parsed.PriorityScore)
	}
}

func TestClassifier_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit reached", "type": "requests"}}`))
	}))
	defer server.Close()

	c := NewClassifier(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"})

	_, err := c.Classify(context.Background(), testCanonical())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestClassifier_QuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exhausted", "type": "insufficient_quota"}}`))
	}))
	defer server.Close()

	c := NewClassifier(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"})

	_, err := c.Classify(context.Background(), testCanonical())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestClassifier_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("I cannot classify this business."))
	}))
	defer server.Close()

	c := NewClassifier(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"})

	_, err := c.Classify(context.Background(), testCanonical())
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("err = %v, want ErrProviderError", err)
	}
}
