// Package record holds the business-listing data model: raw listings as
// harvested from the places API, their normalized comparison keys, and the
// canonical records produced by entity resolution.
package record

import (
	"strings"
	"time"
)

// Record is a single business listing as returned by the places API.
// Treated as immutable once created; resolution never mutates its input.
type Record struct {
	PlaceID     string     `json:"id"`
	Name        string     `json:"company_name"`
	Street      string     `json:"street_address"`
	City        string     `json:"city"`
	PostalCode  string     `json:"postal_code"`
	FullAddress string     `json:"full_address"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Phone       string     `json:"phone"`
	Website     string     `json:"website"`
	Rating      float64    `json:"rating"`
	ReviewCount int        `json:"review_count"`
	Categories  []string   `json:"types,omitempty"`
	Country     string     `json:"country"`
	Source      string     `json:"source"`
	SearchQuery string     `json:"search_query"`
	ScrapedAt   time.Time  `json:"scrape_timestamp"`
}

// Ref returns a stable reference for audit trails: the place id when the API
// provided one, otherwise a name|city fallback.
func (r *Record) Ref() string {
	if r.PlaceID != "" {
		return r.PlaceID
	}
	return strings.ToLower(strings.TrimSpace(r.Name)) + "|" + strings.ToLower(strings.TrimSpace(r.City))
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r *Record) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Canonical is the merged representation standing for a cluster of duplicate
// listings. It embeds the winning field values and keeps every subsumed
// source reference for audit.
type Canonical struct {
	Record

	// SubsumedRefs lists the refs of all input records this canonical
	// record stands for, including its own.
	SubsumedRefs []string `json:"subsumed_refs"`
	// AltPlaceIDs holds conflicting non-empty place ids from other members.
	AltPlaceIDs []string `json:"alt_place_ids,omitempty"`
	// SecondaryPhones holds distinct usable phones from losing members.
	SecondaryPhones []string `json:"secondary_phones,omitempty"`
	// SecondaryWebsites holds distinct usable websites from losing members.
	SecondaryWebsites []string `json:"secondary_websites,omitempty"`

	Classification *Classification `json:"classification,omitempty"`
}

// Classification is the LLM prioritisation verdict for a canonical record.
type Classification struct {
	IsDistributor       bool   `json:"is_horeca_distributor"`
	IsEthnicAsian       bool   `json:"is_ethnic_asian"`
	LikelyFrozenPoultry bool   `json:"likely_frozen_poultry"`
	PriorityScore       int    `json:"priority_score"`
	Recommendation      string `json:"contact_recommendation"`
}
