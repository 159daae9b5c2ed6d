package dedupe

import (
	"testing"

	"github.com/northquay/leadex/internal/domain/record"
)

func keysFor(r record.Record, prefixLen int) []string {
	k := record.Normalize(r)
	return blockKeys(&r, &k, prefixLen)
}

func TestBlockKeys_MultiKey(t *testing.T) {
	keys := keysFor(record.Record{
		PlaceID: "p1",
		Name:    "Thanh Long Asia Food",
		City:    "Berlin",
		Phone:   "030 1234567",
		Country: "Germany",
	}, 5)

	want := map[string]bool{
		"id:p1":           true,
		"nc:berlin|thanh": true,
		"ph:01234567":     true,
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
}

func TestBlockKeys_ShortPhoneExcluded(t *testing.T) {
	keys := keysFor(record.Record{Name: "Foo", Phone: "12345"}, 5)
	for _, k := range keys {
		if k[:3] == "ph:" {
			t.Fatalf("short phone produced key %q", k)
		}
	}
}

func TestBlockKeys_GeoCellOnlyWithoutCity(t *testing.T) {
	lat, lon := 52.52, 13.40
	withCity := keysFor(record.Record{Name: "Foo", City: "Berlin", Latitude: &lat, Longitude: &lon}, 5)
	for _, k := range withCity {
		if k[:3] == "gc:" {
			t.Fatalf("geo key emitted despite city: %v", withCity)
		}
	}

	noCity := keysFor(record.Record{Name: "Foo", Latitude: &lat, Longitude: &lon}, 5)
	found := false
	for _, k := range noCity {
		if k[:3] == "gc:" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no geo key for city-less record: %v", noCity)
	}
}

func TestBuildBlocks_SharedKeyGroups(t *testing.T) {
	records := []record.Record{
		{Name: "Thanh Long Asia Food", City: "Berlin"},
		{Name: "Thanh Long Asia Food GmbH", City: "Berlin"},
		{Name: "Thanh Long Asia Food", City: "Munich"},
	}
	keys := make([]record.Key, len(records))
	for i := range records {
		keys[i] = record.Normalize(records[i])
	}

	blocks := buildBlocks(records, keys, []int{0, 1, 2}, 5)
	got := blocks["nc:berlin|thanh"]
	if len(got) != 2 {
		t.Fatalf("berlin block = %v, want records 0 and 1", got)
	}
	if len(blocks["nc:munich|thanh"]) != 1 {
		t.Fatalf("munich block = %v", blocks["nc:munich|thanh"])
	}
}
