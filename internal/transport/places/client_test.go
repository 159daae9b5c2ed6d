package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func newTestClient(url string) *Client {
	return NewClient(&Config{
		APIKey:            "test-key",
		BaseURL:           url,
		MaxPages:          3,
		RequestsPerSecond: 1000,
		Timeout:           time.Second,
		Logger:            zap.NewNop(),
	})
}

func placePage(ids []string, nextToken string) map[string]any {
	places := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		places = append(places, map[string]any{
			"id":                       id,
			"displayName":              map[string]any{"text": "Thanh Long " + id},
			"formattedAddress":         "Hauptstr. 5, Berlin, 10827",
			"websiteUri":               "https://thanhlong.de",
			"internationalPhoneNumber": "+49 30 1234567",
			"addressComponents": []map[string]any{
				{"longText": "Hauptstrasse", "types": []string{"route"}},
				{"longText": "Berlin", "types": []string{"locality"}},
				{"longText": "10827", "types": []string{"postal_code"}},
			},
			"location":        map[string]any{"latitude": 52.48, "longitude": 13.35},
			"rating":          4.5,
			"userRatingCount": 120,
			"types":           []string{"food_wholesaler"},
		})
	}
	page := map[string]any{"places": places}
	if nextToken != "" {
		page["nextPageToken"] = nextToken
	}
	return page
}

func TestSearch_SinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Goog-Api-Key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("X-Goog-FieldMask"); got != fieldMask {
			t.Errorf("field mask header = %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["textQuery"] != "asia grosshandel" {
			t.Errorf("textQuery = %v", payload["textQuery"])
		}

		json.NewEncoder(w).Encode(placePage([]string{"p1", "p2"}, ""))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Search(context.Background(), SearchRequest{
		Query: "asia grosshandel", Lat: 52.52, Lng: 13.4, RadiusKm: 25, Country: "Germany",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	r := got[0]
	if r.PlaceID != "p1" || r.Name != "Thanh Long p1" {
		t.Errorf("record = %+v", r)
	}
	if r.City != "Berlin" || r.PostalCode != "10827" || r.Street != "Hauptstrasse" {
		t.Errorf("address = %q/%q/%q", r.Street, r.City, r.PostalCode)
	}
	if r.Latitude == nil || *r.Latitude != 52.48 {
		t.Errorf("Latitude = %v", r.Latitude)
	}
	if r.Country != "Germany" || r.SearchQuery != "asia grosshandel" {
		t.Errorf("provenance = %q/%q", r.Country, r.SearchQuery)
	}
}

func TestSearch_Pagination(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}

		switch calls {
		case 1:
			if _, ok := payload["pageToken"]; ok {
				t.Error("first page carried a pageToken")
			}
			json.NewEncoder(w).Encode(placePage([]string{"p1"}, "tok-2"))
		case 2:
			if payload["pageToken"] != "tok-2" {
				t.Errorf("pageToken = %v, want tok-2", payload["pageToken"])
			}
			json.NewEncoder(w).Encode(placePage([]string{"p2"}, ""))
		default:
			t.Errorf("unexpected call %d", calls)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Search(context.Background(), SearchRequest{Query: "q", RadiusKm: 10, Country: "Germany"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || calls != 2 {
		t.Errorf("records = %d, calls = %d, want 2/2", len(got), calls)
	}
}

func TestSearch_PageLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		// Always advertise another page.
		json.NewEncoder(w).Encode(placePage([]string{"p"}, "more"))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Search(context.Background(), SearchRequest{Query: "q", RadiusKm: 10, Country: "Germany"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want page cap 3", calls)
	}
	if len(got) != 3 {
		t.Errorf("records = %d, want 3", len(got))
	}
}

func TestSearch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Search(context.Background(), SearchRequest{Query: "q", RadiusKm: 10, Country: "Germany"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestSearch_PartialResultsOnMidPaginationError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(placePage([]string{"p1"}, "tok"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Search(context.Background(), SearchRequest{Query: "q", RadiusKm: 10, Country: "Germany"})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("err = %v, want ErrProviderError", err)
	}
	if len(got) != 1 {
		t.Errorf("partial records = %d, want 1", len(got))
	}
}

func TestAddressParts_Fallback(t *testing.T) {
	p := place{FormattedAddress: "Calle Mayor 3, Madrid, 28013"}
	street, city, postal := addressParts(p)
	if street != "Calle Mayor 3" || city != "Madrid" || postal != "28013" {
		t.Errorf("parts = %q/%q/%q", street, city, postal)
	}
}
