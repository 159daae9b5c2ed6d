package dedupe

import (
	"reflect"
	"testing"

	"github.com/northquay/leadex/internal/domain/record"
)

func mergeTest(t *testing.T, records []record.Record) record.Canonical {
	t.Helper()
	keys := make([]record.Key, len(records))
	for i := range records {
		keys[i] = record.Normalize(records[i])
	}
	members := make([]int, len(records))
	for i := range members {
		members[i] = i
	}
	return merge(records, keys, members)
}

func TestMerge_IdentifierFirstNonEmpty(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "No ID Here"},
		{PlaceID: "P2", Name: "Second"},
		{PlaceID: "P3", Name: "Third"},
	})
	if c.PlaceID != "P2" {
		t.Fatalf("place id = %q, want P2", c.PlaceID)
	}
	if !reflect.DeepEqual(c.AltPlaceIDs, []string{"P3"}) {
		t.Fatalf("alt ids = %v, want [P3]", c.AltPlaceIDs)
	}
}

func TestMerge_LongestCleanestName(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "Thanh Long"},
		{Name: "Thanh Long Asia Food GmbH"},
		{Name: "Thanh Long Asia"},
	})
	if c.Name != "Thanh Long Asia Food GmbH" {
		t.Fatalf("name = %q", c.Name)
	}

	// Equal length: fewer punctuation marks wins.
	c = mergeTest(t, []record.Record{
		{Name: "Asia-Markt-Berlin"},
		{Name: "Asia Markt Berlin"},
	})
	if c.Name != "Asia Markt Berlin" {
		t.Fatalf("name = %q", c.Name)
	}
}

func TestMerge_AddressFromMostEstablished(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "A", Street: "Old Street 1", PostalCode: "10115", Rating: 4.0, ReviewCount: 10},
		{Name: "A", Street: "Main Street 2", PostalCode: "10117", Rating: 4.5, ReviewCount: 200},
	})
	if c.Street != "Main Street 2" || c.PostalCode != "10117" {
		t.Fatalf("address = %q / %q", c.Street, c.PostalCode)
	}
}

func TestMerge_AddressTieFallsBackToFirst(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "A", Street: "First Street"},
		{Name: "A", Street: "Second Street"},
	})
	if c.Street != "First Street" {
		t.Fatalf("street = %q", c.Street)
	}
}

func TestMerge_ContactsNeverDropped(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "A", Phone: "030 111111", Website: "a-imports.de", Rating: 5, ReviewCount: 100},
		{Name: "A", Phone: "030 222222", Website: "https://www.a-imports.de"},
		{Name: "A", Phone: "(030) 111 111"},
	})
	if c.Phone != "030 111111" {
		t.Fatalf("primary phone = %q", c.Phone)
	}
	// 030 222222 is distinct and must survive; (030) 111 111 normalizes to
	// the primary and is folded away.
	if !reflect.DeepEqual(c.SecondaryPhones, []string{"030 222222"}) {
		t.Fatalf("secondary phones = %v", c.SecondaryPhones)
	}
	// Both websites share a registrable domain: no secondary entry.
	if len(c.SecondaryWebsites) != 0 {
		t.Fatalf("secondary websites = %v", c.SecondaryWebsites)
	}
}

func TestMerge_RatingFromMostReviews(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{Name: "A", Rating: 5.0, ReviewCount: 3},
		{Name: "A", Rating: 4.2, ReviewCount: 150},
	})
	if c.Rating != 4.2 || c.ReviewCount != 150 {
		t.Fatalf("rating = %v (%d reviews)", c.Rating, c.ReviewCount)
	}
}

func TestMerge_SubsumedRefsComplete(t *testing.T) {
	c := mergeTest(t, []record.Record{
		{PlaceID: "x"},
		{Name: "No ID", City: "Berlin"},
	})
	want := []string{"x", "no id|berlin"}
	if !reflect.DeepEqual(c.SubsumedRefs, want) {
		t.Fatalf("subsumed = %v, want %v", c.SubsumedRefs, want)
	}
}
