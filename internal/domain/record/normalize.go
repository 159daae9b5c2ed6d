package record

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/northquay/leadex/internal/domain/geo"
)

// PhoneSuffixLen is the number of trailing digits compared when a phone
// number could not be normalized to international form.
const PhoneSuffixLen = 8

// Key is the derived, read-only comparison view of a Record. All fields are
// computed deterministically; a missing source field normalizes to the zero
// value rather than an error.
type Key struct {
	// Name is the folded company name with legal-form suffixes stripped.
	Name string
	// NameTokens are the whitespace-split tokens of Name.
	NameTokens []string
	// City is the folded city.
	City string
	// Phone is the digits-only phone, in international form when the
	// source country's dial code is known.
	Phone string
	// PhoneAmbiguous marks phones whose country prefix could not be
	// recovered; comparison degrades to suffix matching.
	PhoneAmbiguous bool
	// Address is the folded street address with abbreviations expanded.
	Address string
	// PostalCode is kept verbatim (trimmed) as an exact-comparable token.
	PostalCode string
	// Domain is the registrable website domain (eTLD+1), or empty.
	Domain string
	// GeoCell is the coarse grid cell, set only with valid coordinates.
	GeoCell string
	// HasCoords reports whether Lat/Lon carry valid coordinates.
	HasCoords bool
	Lat, Lon  float64
}

// legalSuffixes are trailing company-form tokens dropped from names before
// comparison. Matched after diacritic folding and dot removal, so "S.L."
// and "e.V." arrive here as "sl" and "ev".
var legalSuffixes = map[string]bool{
	"gmbh": true, "mbh": true, "ag": true, "kg": true, "ug": true,
	"ohg": true, "gbr": true, "ev": true, "co": true, "kgaa": true,
	"ltd": true, "inc": true, "llc": true, "llp": true, "plc": true,
	"sa": true, "sl": true, "slu": true, "sau": true,
	"sarl": true, "sas": true, "srl": true, "eurl": true, "sci": true,
	"bv": true, "nv": true,
}

// streetAbbrevs expands common street-type abbreviations, covering the
// German, Spanish and French markets the search plan targets.
var streetAbbrevs = map[string]string{
	"str":  "strasse",
	"strs": "strasse",
	"pl":   "platz",
	"st":   "street",
	"rd":   "road",
	"ave":  "avenue",
	"av":   "avenida",
	"avda": "avenida",
	"c":    "calle",
	"cl":   "calle",
	"ctra": "carretera",
	"bd":   "boulevard",
	"blvd": "boulevard",
	"r":    "rue",
}

// dialCodes maps source-country names to their international dial prefix.
var dialCodes = map[string]string{
	"germany": "49", "de": "49",
	"spain": "34", "es": "34",
	"france": "33", "fr": "33",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize computes the comparison key for a record. Pure and total: it
// never fails, whatever the input looks like.
func Normalize(r Record) Key {
	k := Key{
		Name:       normalizeName(r.Name),
		City:       fold(r.City),
		PostalCode: strings.TrimSpace(r.PostalCode),
		Address:    normalizeAddress(r.Street),
		Domain:     registrableDomain(r.Website),
	}
	k.NameTokens = strings.Fields(k.Name)
	k.Phone, k.PhoneAmbiguous = normalizePhone(r.Phone, r.Country)

	if r.HasCoordinates() && geo.ValidateCoordinates(*r.Latitude, *r.Longitude) {
		k.HasCoords = true
		k.Lat = *r.Latitude
		k.Lon = *r.Longitude
		k.GeoCell = geo.Cell(k.Lat, k.Lon)
	}
	return k
}

// fold lower-cases and strips diacritics.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	return s
}

// stripPunct removes dots and apostrophes entirely (so "S.L." keeps its
// shape as one token) and turns the remaining punctuation into spaces.
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '.' || r == '\'' || r == '’':
			// drop
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func normalizeName(name string) string {
	tokens := strings.Fields(stripPunct(fold(name)))
	kept := len(tokens)
	for kept > 1 && legalSuffixes[tokens[kept-1]] {
		kept--
	}
	return strings.Join(tokens[:kept], " ")
}

func normalizeAddress(street string) string {
	tokens := strings.Fields(stripPunct(fold(street)))
	for i, tok := range tokens {
		if full, ok := streetAbbrevs[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

func normalizePhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePhone reduces a phone to digits and, when the source country's
// dial code is known, rewrites it to international form. The second return
// value marks locale-ambiguous numbers.
func normalizePhone(phone, country string) (string, bool) {
	digits := normalizePhoneDigits(phone)
	if digits == "" {
		return "", false
	}

	// "00" prefix is an explicit international call prefix in all target
	// markets, so the number is unambiguous even without a known country.
	if strings.HasPrefix(digits, "00") {
		return digits[2:], false
	}

	dial, ok := dialCodes[strings.ToLower(strings.TrimSpace(country))]
	if !ok {
		return digits, true
	}

	switch {
	case strings.HasPrefix(digits, dial):
		return digits, false
	case strings.HasPrefix(digits, "0"):
		return dial + digits[1:], false
	default:
		return dial + digits, false
	}
}

// registrableDomain reduces a website URL to its eTLD+1 for exact-domain
// comparison. Empty when the URL is missing or unparseable.
func registrableDomain(website string) string {
	website = strings.TrimSpace(strings.ToLower(website))
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// PhoneSuffix returns the last PhoneSuffixLen digits of a normalized phone,
// or the whole string when shorter. Empty input yields empty output.
func PhoneSuffix(digits string) string {
	if len(digits) <= PhoneSuffixLen {
		return digits
	}
	return digits[len(digits)-PhoneSuffixLen:]
}
