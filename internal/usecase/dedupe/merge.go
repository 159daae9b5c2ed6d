package dedupe

import (
	"unicode"

	"github.com/northquay/leadex/internal/domain/record"
)

// merge collapses one cluster into a canonical record. members come sorted
// in the engine's deterministic rank order, which doubles as the tie-break
// everywhere below. Field resolution, in priority order:
//
//   - place id: first non-empty in rank order; conflicting ids are kept as
//     AltPlaceIDs rather than discarded
//   - name: the longest, punctuation-cleanest original name
//   - address block: the member with the highest rating x review-count
//     product, the most established listing standing in for the cluster
//   - phone/website: the address winner's when usable, any other distinct
//     usable value survives as a secondary contact
//   - rating: whichever member has the most reviews
func merge(records []record.Record, keys []record.Key, members []int) record.Canonical {
	winner := addressWinner(records, members)

	c := record.Canonical{Record: records[winner]}
	c.Name = bestName(records, members)
	c.Rating, c.ReviewCount = bestRating(records, members)

	c.PlaceID = ""
	for _, m := range members {
		id := records[m].PlaceID
		if id == "" {
			continue
		}
		if c.PlaceID == "" {
			c.PlaceID = id
		} else if id != c.PlaceID && !contains(c.AltPlaceIDs, id) {
			c.AltPlaceIDs = append(c.AltPlaceIDs, id)
		}
	}

	c.Phone, c.SecondaryPhones = pickContact(members, winner,
		func(m int) string { return records[m].Phone },
		func(m int) string { return keys[m].Phone })
	c.Website, c.SecondaryWebsites = pickContact(members, winner,
		func(m int) string { return records[m].Website },
		func(m int) string { return keys[m].Domain })

	c.SubsumedRefs = make([]string, 0, len(members))
	for _, m := range members {
		c.SubsumedRefs = append(c.SubsumedRefs, records[m].Ref())
	}
	return c
}

// addressWinner picks the member whose address block represents the
// cluster: highest rating x review-count, first in rank order on ties.
func addressWinner(records []record.Record, members []int) int {
	winner := members[0]
	best := records[winner].Rating * float64(records[winner].ReviewCount)
	for _, m := range members[1:] {
		if p := records[m].Rating * float64(records[m].ReviewCount); p > best {
			best = p
			winner = m
		}
	}
	return winner
}

// bestName prefers the longest original name; among equal lengths, the one
// with the least punctuation. Longer names tend to be the full trade name.
func bestName(records []record.Record, members []int) string {
	name := records[members[0]].Name
	for _, m := range members[1:] {
		cand := records[m].Name
		switch {
		case len(cand) > len(name):
			name = cand
		case len(cand) == len(name) && punctCount(cand) < punctCount(name):
			name = cand
		}
	}
	return name
}

func bestRating(records []record.Record, members []int) (float64, int) {
	best := members[0]
	for _, m := range members[1:] {
		if records[m].ReviewCount > records[best].ReviewCount {
			best = m
		}
	}
	return records[best].Rating, records[best].ReviewCount
}

// pickContact keeps the address winner's value when usable and collects
// every other value with a distinct normalized form as a secondary contact.
// A distinct usable contact is never silently dropped.
func pickContact(members []int, winner int, raw func(int) string, normalized func(int) string) (string, []string) {
	primary := ""
	primaryNorm := ""
	if raw(winner) != "" {
		primary = raw(winner)
		primaryNorm = normalized(winner)
	}

	var secondary []string
	seen := map[string]bool{}
	for _, m := range members {
		v := raw(m)
		if v == "" {
			continue
		}
		n := normalized(m)
		if primary == "" {
			primary, primaryNorm = v, n
			continue
		}
		if n == primaryNorm || seen[n] {
			continue
		}
		seen[n] = true
		secondary = append(secondary, v)
	}
	return primary, secondary
}

func punctCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			n++
		}
	}
	return n
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
