package dedupe

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"

	"github.com/northquay/leadex/internal/domain/geo"
	"github.com/northquay/leadex/internal/domain/record"
)

// suffixMatchScore is the partial credit for phones that agree only on
// their trailing digits while at least one side is locale-ambiguous.
const suffixMatchScore = 60

// Pair is a scored candidate pair. Transient: it exists only between
// scoring and clustering.
type Pair struct {
	A, B      int // indices into the input record slice
	Score     float64
	Duplicate bool
	Sub       Subscores
}

// Subscores are the per-signal components behind a composite score, kept
// for auditability.
type Subscores struct {
	IDMatch  bool
	Name     float64
	Phone    float64
	Website  float64
	Distance float64
}

// score computes the composite duplicate likelihood (0-100) for one pair.
// A shared non-empty place id short-circuits to a certain match. Otherwise
// each signal contributes its weight only when both sides carry the field;
// a field present on both sides but disagreeing scores zero with its weight
// counted.
func (e *Engine) score(a, b *record.Record, ka, kb *record.Key) Pair {
	p := Pair{}

	if a.PlaceID != "" && a.PlaceID == b.PlaceID {
		p.Sub.IDMatch = true
		p.Score = 100
		p.Duplicate = true
		return p
	}

	var weighted, weightSum float64

	if ka.Name != "" && kb.Name != "" {
		p.Sub.Name = nameSimilarity(ka, kb)
		weighted += e.cfg.NameWeight * p.Sub.Name
		weightSum += e.cfg.NameWeight
	}

	if ka.Phone != "" && kb.Phone != "" {
		p.Sub.Phone = phoneSimilarity(ka, kb)
		weighted += e.cfg.PhoneWeight * p.Sub.Phone
		weightSum += e.cfg.PhoneWeight
	}

	if ka.Domain != "" && kb.Domain != "" {
		if ka.Domain == kb.Domain {
			p.Sub.Website = 100
		}
		weighted += e.cfg.WebsiteWeight * p.Sub.Website
		weightSum += e.cfg.WebsiteWeight
	}

	if ka.HasCoords && kb.HasCoords {
		p.Sub.Distance = distanceSimilarity(ka, kb, e.cfg.GeoRadiusMeters)
		weighted += e.cfg.DistanceWeight * p.Sub.Distance
		weightSum += e.cfg.DistanceWeight
	}

	if weightSum > 0 {
		p.Score = weighted / weightSum
	}
	p.Duplicate = p.Score >= e.cfg.Threshold
	return p
}

// nameSimilarity is a token-set ratio, tolerant of word reordering and
// partial containment ("euro asia food import" vs "euro asia import"). For
// single-word names the Jaro-Winkler similarity is taken when higher, since
// a token-set degenerates to a plain ratio there.
func nameSimilarity(ka, kb *record.Key) float64 {
	s := tokenSetRatio(ka.NameTokens, kb.NameTokens)
	if len(ka.NameTokens) == 1 && len(kb.NameTokens) == 1 {
		if jw := matchr.JaroWinkler(ka.Name, kb.Name, false) * 100; jw > s {
			s = jw
		}
	}
	return s
}

func phoneSimilarity(ka, kb *record.Key) float64 {
	if ka.Phone == kb.Phone {
		return 100
	}
	if ka.PhoneAmbiguous || kb.PhoneAmbiguous {
		sa, sb := record.PhoneSuffix(ka.Phone), record.PhoneSuffix(kb.Phone)
		if len(sa) >= minPhoneSuffix && sa == sb {
			return suffixMatchScore
		}
	}
	return 0
}

// distanceSimilarity decays linearly with distance and contributes nothing
// beyond the configured radius. Branches of one company are co-located;
// anything further apart is no evidence either way.
func distanceSimilarity(ka, kb *record.Key, radius float64) float64 {
	d := geo.Haversine(ka.Lat, ka.Lon, kb.Lat, kb.Lon)
	if d >= radius {
		return 0
	}
	return 100 * (1 - d/radius)
}

// tokenSetRatio implements the classic token-set ratio: compare the sorted
// intersection of the token sets against each side's full sorted token
// string and take the best of the three pairings. Monotonic in shared-token
// overlap.
func tokenSetRatio(aTokens, bTokens []string) float64 {
	setA := tokenSet(aTokens)
	setB := tokenSet(bTokens)

	var inter, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := ratio(t0, t1)
	if r := ratio(t0, t2); r > best {
		best = r
	}
	if r := ratio(t1, t2); r > best {
		best = r
	}
	return best
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// ratio is a normalized edit-distance similarity in [0,100].
func ratio(s1, s2 string) float64 {
	if s1 == s2 {
		return 100
	}
	longest := len([]rune(s1))
	if l2 := len([]rune(s2)); l2 > longest {
		longest = l2
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(s1, s2)
	return 100 * (1 - float64(d)/float64(longest))
}
