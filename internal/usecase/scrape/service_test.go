package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
)

// fakeSearcher returns canned results per query text.
type fakeSearcher struct {
	results map[string][]record.Record
	errs    map[string]error
	calls   []Query
}

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]record.Record, error) {
	f.calls = append(f.calls, q)
	if err := f.errs[q.Text]; err != nil {
		return f.results[q.Text], err
	}
	return f.results[q.Text], nil
}

type fakeSeen struct {
	seen map[string]bool
}

func (f *fakeSeen) Mark(_ context.Context, placeID string) (bool, error) {
	if f.seen[placeID] {
		return false, nil
	}
	f.seen[placeID] = true
	return true, nil
}

func rec(id, name string) record.Record {
	return record.Record{PlaceID: id, Name: name, City: "Berlin"}
}

func testPlan() []CountryPlan {
	return []CountryPlan{
		{
			Name:    "Germany",
			Queries: []string{"q1", "q2"},
			Locations: []Location{
				{Name: "Berlin", Lat: 52.52, Lng: 13.4, RadiusKm: 25},
				{Name: "Hamburg", Lat: 53.55, Lng: 9.99, RadiusKm: 25},
			},
		},
	}
}

func TestRun_WalksFullPlan(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]record.Record{
			"q1": {rec("a", "A")},
			"q2": {rec("b", "B")},
		},
	}
	s, err := New(searcher, nil, testPlan(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 locations x 2 queries
	if len(searcher.calls) != 4 {
		t.Errorf("calls = %d, want 4", len(searcher.calls))
	}
	// Same place IDs repeat per location but are kept once per run.
	if len(got) != 2 {
		t.Errorf("listings = %d, want 2", len(got))
	}
	for _, q := range searcher.calls {
		if q.Country != "Germany" {
			t.Errorf("query country = %q", q.Country)
		}
	}
}

func TestRun_SeenWindowSkips(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]record.Record{"q1": {rec("a", "A"), rec("b", "B")}},
	}
	seen := &fakeSeen{seen: map[string]bool{"a": true}}

	plan := []CountryPlan{{
		Name:      "Germany",
		Queries:   []string{"q1"},
		Locations: []Location{{Name: "Berlin", RadiusKm: 25}},
	}}
	s, err := New(searcher, seen, plan, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || got[0].PlaceID != "b" {
		t.Errorf("listings = %+v, want only b", got)
	}
}

func TestRun_NoIDAlwaysKept(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]record.Record{
			"q1": {{Name: "No ID 1", City: "Berlin"}, {Name: "No ID 2", City: "Berlin"}},
		},
	}
	plan := []CountryPlan{{
		Name:      "Germany",
		Queries:   []string{"q1"},
		Locations: []Location{{Name: "Berlin", RadiusKm: 25}},
	}}
	s, err := New(searcher, &fakeSeen{seen: map[string]bool{}}, plan, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("listings = %d, want 2", len(got))
	}
}

func TestRun_RateLimitAbortsWithPartials(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]record.Record{"q1": {rec("a", "A")}},
		errs:    map[string]error{"q2": fmt.Errorf("status 429: %w", domain.ErrRateLimited)},
	}
	s, err := New(searcher, nil, testPlan(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(context.Background())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(got) != 1 {
		t.Errorf("partials = %d, want 1", len(got))
	}
	// Aborted on the first q2, never reached the second location.
	if len(searcher.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(searcher.calls))
	}
}

func TestRun_ProviderErrorSkipsQuery(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]record.Record{"q1": {rec("a", "A")}},
		errs:    map[string]error{"q2": fmt.Errorf("status 500: %w", domain.ErrProviderError)},
	}
	s, err := New(searcher, nil, testPlan(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(searcher.calls) != 4 {
		t.Errorf("calls = %d, want all 4 despite failures", len(searcher.calls))
	}
	if len(got) != 1 {
		t.Errorf("listings = %d, want 1", len(got))
	}
}

func TestRun_ContextCancel(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]record.Record{}}
	s, err := New(searcher, nil, testPlan(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
