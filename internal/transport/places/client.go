// Package places implements the Google Places text search transport
// (Places API v1 places:searchText).
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
	"github.com/northquay/leadex/internal/metrics"
)

const defaultBaseURL = "https://places.googleapis.com/v1/places:searchText"

// fieldMask limits the response to the fields the pipeline consumes.
const fieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.websiteUri,places.internationalPhoneNumber,places.addressComponents," +
	"places.location,places.rating,places.userRatingCount,places.types,nextPageToken"

// Config holds places client settings.
type Config struct {
	APIKey            string
	BaseURL           string
	MaxPages          int
	RequestsPerSecond float64
	JitterMax         time.Duration
	Timeout           time.Duration
	Logger            *zap.Logger
}

// Client performs paginated text searches against the Places API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	maxPages   int
	jitterMax  time.Duration
	logger     *zap.Logger
}

// SearchRequest is one text query biased around a circle.
type SearchRequest struct {
	Query    string
	Lat      float64
	Lng      float64
	RadiusKm float64
	Country  string
}

// NewClient creates a places client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 3
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxPages:   maxPages,
		jitterMax:  cfg.JitterMax,
		logger:     logger,
	}
}

// Wire types of the Places API v1 searchText response.

type searchResponse struct {
	Places        []place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

type place struct {
	ID               string             `json:"id"`
	DisplayName      localizedText      `json:"displayName"`
	FormattedAddress string             `json:"formattedAddress"`
	WebsiteURI       string             `json:"websiteUri"`
	Phone            string             `json:"internationalPhoneNumber"`
	AddressComps     []addressComponent `json:"addressComponents"`
	Location         *latLng            `json:"location"`
	Rating           float64            `json:"rating"`
	UserRatingCount  int                `json:"userRatingCount"`
	Types            []string           `json:"types"`
}

type localizedText struct {
	Text string `json:"text"`
}

type addressComponent struct {
	LongText string   `json:"longText"`
	Types    []string `json:"types"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Search runs a text query and follows nextPageToken up to the page limit.
// Partial results collected before a mid-pagination failure are returned
// alongside the error.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]record.Record, error) {
	var results []record.Record
	pageToken := ""

	for page := 0; page < c.maxPages; page++ {
		if err := c.wait(ctx); err != nil {
			return results, err
		}

		resp, err := c.searchPage(ctx, req, pageToken)
		if err != nil {
			metrics.ScrapeRequestsTotal.WithLabelValues(req.Country, "error").Inc()
			return results, err
		}
		metrics.ScrapeRequestsTotal.WithLabelValues(req.Country, "success").Inc()

		for _, p := range resp.Places {
			results = append(results, parsePlace(p, req))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return results, nil
}

// wait blocks for the rate limit plus a random jitter slice.
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}
	if c.jitterMax > 0 {
		jitter := time.Duration(rand.Int63n(int64(c.jitterMax)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter):
		}
	}
	return nil
}

func (c *Client) searchPage(ctx context.Context, req SearchRequest, pageToken string) (*searchResponse, error) {
	payload := map[string]any{
		"textQuery": req.Query,
		"locationBias": map[string]any{
			"circle": map[string]any{
				"center": map[string]any{"latitude": req.Lat, "longitude": req.Lng},
				"radius": req.RadiusKm * 1000,
			},
		},
		"maxResultCount": 20,
	}
	if pageToken != "" {
		payload["pageToken"] = pageToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w: %w", err, domain.ErrProviderError)
	}
	defer httpResp.Body.Close()
	metrics.ScrapeRequestDuration.WithLabelValues(req.Country).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		wrap := domain.ErrProviderError
		if httpResp.StatusCode == http.StatusTooManyRequests {
			wrap = domain.ErrRateLimited
		}
		c.logger.Warn("places API error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("query", req.Query),
			zap.ByteString("body", respBody))
		return nil, fmt.Errorf("places API status %d: %w", httpResp.StatusCode, wrap)
	}

	var resp searchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &resp, nil
}

// parsePlace maps a wire place onto the pipeline record shape.
func parsePlace(p place, req SearchRequest) record.Record {
	street, city, postal := addressParts(p)

	r := record.Record{
		PlaceID:     p.ID,
		Name:        p.DisplayName.Text,
		Street:      street,
		City:        city,
		PostalCode:  postal,
		FullAddress: p.FormattedAddress,
		Phone:       p.Phone,
		Website:     p.WebsiteURI,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingCount,
		Categories:  p.Types,
		Country:     req.Country,
		Source:      "google_places_textsearch",
		SearchQuery: req.Query,
		ScrapedAt:   time.Now().UTC(),
	}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		r.Latitude = &lat
		r.Longitude = &lng
	}
	return r
}

// addressParts extracts street, city and postal code from the structured
// components, falling back to comma-splitting the formatted address.
func addressParts(p place) (street, city, postal string) {
	for _, comp := range p.AddressComps {
		for _, t := range comp.Types {
			switch t {
			case "route":
				street = comp.LongText
			case "locality":
				city = comp.LongText
			case "postal_code":
				postal = comp.LongText
			}
		}
	}

	if city == "" || postal == "" || street == "" {
		parts := strings.Split(p.FormattedAddress, ",")
		if street == "" && len(parts) > 0 {
			street = strings.TrimSpace(parts[0])
		}
		if city == "" && len(parts) > 1 {
			city = strings.TrimSpace(parts[1])
		}
		if postal == "" && len(parts) > 2 {
			postal = strings.TrimSpace(parts[2])
		}
	}
	return street, city, postal
}
