package dedupe

import (
	"github.com/northquay/leadex/internal/domain/record"
)

// minPhoneSuffix is the minimum digit count for a phone-suffix blocking key.
// Anything shorter groups unrelated records together.
const minPhoneSuffix = 6

// blockKeys returns every blocking key a record qualifies for. A record is
// indexed under all of them, so two listings need to share only one key to
// be compared:
//
//   - the external place id, which guarantees id-equal records always meet
//   - city plus the first prefixLen runes of the normalized name
//   - the trailing digits of the normalized phone
//   - the coarse geo cell, when coordinates are the only location signal
//
// Any pair that shares no key is never compared. That is the engine's main
// source of false negatives and the price of sub-quadratic comparison.
func blockKeys(r *record.Record, k *record.Key, prefixLen int) []string {
	keys := make([]string, 0, 3)

	if r.PlaceID != "" {
		keys = append(keys, "id:"+r.PlaceID)
	}
	if k.Name != "" {
		keys = append(keys, "nc:"+k.City+"|"+namePrefix(k.Name, prefixLen))
	}
	if suffix := record.PhoneSuffix(k.Phone); len(suffix) >= minPhoneSuffix {
		keys = append(keys, "ph:"+suffix)
	}
	if k.City == "" && k.GeoCell != "" {
		keys = append(keys, "gc:"+k.GeoCell)
	}
	return keys
}

func namePrefix(name string, prefixLen int) string {
	runes := []rune(name)
	if len(runes) <= prefixLen {
		return name
	}
	return string(runes[:prefixLen])
}

// buildBlocks groups the given record indices by blocking key. Singleton
// blocks cost nothing downstream; they simply produce no candidate pairs.
func buildBlocks(records []record.Record, keys []record.Key, indices []int, prefixLen int) map[string][]int {
	blocks := make(map[string][]int)
	for _, idx := range indices {
		for _, bk := range blockKeys(&records[idx], &keys[idx], prefixLen) {
			blocks[bk] = append(blocks[bk], idx)
		}
	}
	return blocks
}
