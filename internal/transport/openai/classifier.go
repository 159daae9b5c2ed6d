package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
	"github.com/northquay/leadex/internal/metrics"
)

// Classifier scores canonical listings for sales fit via an
// OpenAI-compatible chat completion API.
type Classifier struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// Config holds the classification provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Logger      *zap.Logger
}

// NewClassifier creates an OpenAI-compatible classifier.
func NewClassifier(cfg *Config) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Classifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}
}

// classificationJSON mirrors the JSON shape the model is asked to return.
type classificationJSON struct {
	IsHorecaDistributor bool   `json:"is_horeca_distributor"`
	IsEthnicAsian       bool   `json:"is_ethnic_asian"`
	LikelyFrozenPoultry bool   `json:"likely_frozen_poultry"`
	PriorityScore       int    `json:"priority_score"`
	Recommendation      string `json:"contact_recommendation"`
}

// Classify scores a single canonical listing.
func (c *Classifier) Classify(ctx context.Context, can record.Canonical) (record.Classification, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   500,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a B2B foodservice analyst. Always return valid JSON, no markdown.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(can),
			},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ClassifyRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return record.Classification{}, c.countAPIError(parseAPIError(err))
	}
	if len(resp.Choices) == 0 {
		metrics.ClassifyRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.ClassifyErrorsTotal.WithLabelValues(c.model, "empty_response").Inc()
		return record.Classification{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderError)
	}

	parsed, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.ClassifyRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.ClassifyErrorsTotal.WithLabelValues(c.model, "bad_json").Inc()
		return record.Classification{}, err
	}

	metrics.ClassifyRequestsTotal.WithLabelValues(c.model, "success").Inc()
	c.logger.Debug("classified listing",
		zap.String("ref", can.Ref()),
		zap.Int("priority", parsed.PriorityScore),
		zap.Duration("duration", duration))

	return record.Classification{
		IsDistributor:       parsed.IsHorecaDistributor,
		IsEthnicAsian:       parsed.IsEthnicAsian,
		LikelyFrozenPoultry: parsed.LikelyFrozenPoultry,
		PriorityScore:       parsed.PriorityScore,
		Recommendation:      parsed.Recommendation,
	}, nil
}

func buildPrompt(can record.Canonical) string {
	var b strings.Builder
	b.WriteString("Analyze this business and determine if it is a good fit for selling frozen crispy duck/chicken to Asian restaurants in the HORECA (Hotel/Restaurant/Catering) channel.\n\n")
	fmt.Fprintf(&b, "Company Name: %s\n", orNA(can.Name))
	fmt.Fprintf(&b, "Address: %s\n", orNA(can.FullAddress))
	fmt.Fprintf(&b, "Website: %s\n", orNA(can.Website))
	fmt.Fprintf(&b, "Phone: %s\n", orNA(can.Phone))
	fmt.Fprintf(&b, "Business Types: %s\n", orNA(strings.Join(can.Categories, ", ")))
	b.WriteString(`
Based on available information, classify:

1. is_horeca_distributor (true/false): Does this appear to supply restaurants/catering/foodservice?
2. is_ethnic_asian (true/false): Is this Vietnamese, Chinese, or pan-Asian food focused?
3. likely_frozen_poultry (true/false): Does it likely stock frozen poultry (duck/chicken)?
4. priority_score (1-10): Overall fit score (10 = perfect fit, 1 = unlikely fit)
5. contact_recommendation (text): Brief recommendation on contacting this company

Return ONLY valid JSON, no markdown:
{"is_horeca_distributor": bool, "is_ethnic_asian": bool, "likely_frozen_poultry": bool, "priority_score": int, "contact_recommendation": "text"}
`)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// parseClassification decodes the model output, tolerating markdown fences.
func parseClassification(content string) (classificationJSON, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed classificationJSON
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return classificationJSON{}, fmt.Errorf("decode classification: %w: %w", err, domain.ErrProviderError)
	}
	if parsed.PriorityScore < 1 {
		parsed.PriorityScore = 1
	}
	if parsed.PriorityScore > 10 {
		parsed.PriorityScore = 10
	}
	return parsed, nil
}

func (c *Classifier) countAPIError(err error) error {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		metrics.ClassifyErrorsTotal.WithLabelValues(c.model, "quota").Inc()
	case errors.Is(err, domain.ErrRateLimited):
		metrics.ClassifyErrorsTotal.WithLabelValues(c.model, "rate_limit").Inc()
	default:
		metrics.ClassifyErrorsTotal.WithLabelValues(c.model, "api_error").Inc()
	}
	return err
}

// parseAPIError extracts a human-readable error from the API response and
// maps rate-limit and quota failures to their sentinels so the caller can
// back off or stop classifying.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrap := domain.ErrProviderError
		switch {
		case apiErr.Type == "insufficient_quota":
			wrap = domain.ErrQuotaExceeded
		case apiErr.HTTPStatusCode == 429:
			wrap = domain.ErrRateLimited
		}
		return fmt.Errorf("classification API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		wrap := domain.ErrProviderError
		if reqErr.HTTPStatusCode == 429 {
			wrap = domain.ErrRateLimited
		}
		return fmt.Errorf("classification API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	return fmt.Errorf("classification request failed: %v: %w", err, domain.ErrProviderError)
}
