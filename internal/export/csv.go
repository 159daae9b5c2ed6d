// Package export writes pipeline output in the formats downstream tooling
// consumes: CSV for spreadsheets, XLSX for sales, Parquet for the data
// warehouse, plus the audit trail mapping source refs to canonical refs.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/northquay/leadex/internal/domain/record"
)

// canonicalHeader is the column order of all tabular exports.
var canonicalHeader = []string{
	"id", "company_name", "street_address", "city", "postal_code", "full_address",
	"latitude", "longitude", "phone", "website", "rating", "review_count",
	"types", "country", "source", "search_query", "scrape_timestamp",
	"subsumed_refs", "alt_place_ids", "secondary_phones", "secondary_websites",
	"is_horeca_distributor", "is_ethnic_asian", "likely_frozen_poultry",
	"priority_score", "contact_recommendation",
}

// rawHeader is the column set of the pre-resolution listing export.
var rawHeader = canonicalHeader[:17]

// WriteRecordsCSV writes raw listings as CSV, before resolution.
func WriteRecordsCSV(w io.Writer, recs []record.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rawHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range recs {
		c := record.Canonical{Record: recs[i]}
		if err := cw.Write(canonicalRow(&c)[:len(rawHeader)]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCanonicalCSV writes canonical listings as CSV.
func WriteCanonicalCSV(w io.Writer, cans []record.Canonical) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(canonicalHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range cans {
		if err := cw.Write(canonicalRow(&cans[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAuditCSV writes the source-to-canonical reference mapping, sorted by
// source ref for stable diffs.
func WriteAuditCSV(w io.Writer, audit map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source_ref", "canonical_ref"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	refs := make([]string, 0, len(audit))
	for ref := range audit {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		if err := cw.Write([]string{ref, audit[ref]}); err != nil {
			return fmt.Errorf("write row %s: %w", ref, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCanonicalCSV reads back a canonical export, allowing a run to resume
// at the classification phase without re-scraping.
func ReadCanonicalCSV(r io.Reader) ([]record.Canonical, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	if len(rows[0]) != len(canonicalHeader) || rows[0][0] != canonicalHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", rows[0])
	}

	cans := make([]record.Canonical, 0, len(rows)-1)
	for i, row := range rows[1:] {
		c, err := parseCanonicalRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		cans = append(cans, c)
	}
	return cans, nil
}

func parseCanonicalRow(row []string) (record.Canonical, error) {
	var c record.Canonical
	c.PlaceID = row[0]
	c.Name = row[1]
	c.Street = row[2]
	c.City = row[3]
	c.PostalCode = row[4]
	c.FullAddress = row[5]

	var err error
	if c.Latitude, err = parseFloatPtr(row[6]); err != nil {
		return c, fmt.Errorf("latitude: %w", err)
	}
	if c.Longitude, err = parseFloatPtr(row[7]); err != nil {
		return c, fmt.Errorf("longitude: %w", err)
	}
	c.Phone = row[8]
	c.Website = row[9]
	if row[10] != "" {
		if c.Rating, err = strconv.ParseFloat(row[10], 64); err != nil {
			return c, fmt.Errorf("rating: %w", err)
		}
	}
	if row[11] != "" {
		if c.ReviewCount, err = strconv.Atoi(row[11]); err != nil {
			return c, fmt.Errorf("review_count: %w", err)
		}
	}
	c.Categories = splitList(row[12], ",")
	c.Country = row[13]
	c.Source = row[14]
	c.SearchQuery = row[15]
	if row[16] != "" {
		if c.ScrapedAt, err = time.Parse(time.RFC3339, row[16]); err != nil {
			return c, fmt.Errorf("scrape_timestamp: %w", err)
		}
	}
	c.SubsumedRefs = splitList(row[17], ";")
	c.AltPlaceIDs = splitList(row[18], ";")
	c.SecondaryPhones = splitList(row[19], ";")
	c.SecondaryWebsites = splitList(row[20], ";")

	if row[24] != "" {
		cls := record.Classification{Recommendation: row[25]}
		cls.IsDistributor = row[21] == "true"
		cls.IsEthnicAsian = row[22] == "true"
		cls.LikelyFrozenPoultry = row[23] == "true"
		if cls.PriorityScore, err = strconv.Atoi(row[24]); err != nil {
			return c, fmt.Errorf("priority_score: %w", err)
		}
		c.Classification = &cls
	}
	return c, nil
}

func parseFloatPtr(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func splitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

func canonicalRow(c *record.Canonical) []string {
	row := []string{
		c.PlaceID,
		c.Name,
		c.Street,
		c.City,
		c.PostalCode,
		c.FullAddress,
		floatPtr(c.Latitude),
		floatPtr(c.Longitude),
		c.Phone,
		c.Website,
		strconv.FormatFloat(c.Rating, 'f', -1, 64),
		strconv.Itoa(c.ReviewCount),
		strings.Join(c.Categories, ","),
		c.Country,
		c.Source,
		c.SearchQuery,
		timestamp(c.ScrapedAt),
		strings.Join(c.SubsumedRefs, ";"),
		strings.Join(c.AltPlaceIDs, ";"),
		strings.Join(c.SecondaryPhones, ";"),
		strings.Join(c.SecondaryWebsites, ";"),
	}
	if c.Classification != nil {
		row = append(row,
			strconv.FormatBool(c.Classification.IsDistributor),
			strconv.FormatBool(c.Classification.IsEthnicAsian),
			strconv.FormatBool(c.Classification.LikelyFrozenPoultry),
			strconv.Itoa(c.Classification.PriorityScore),
			c.Classification.Recommendation,
		)
	} else {
		row = append(row, "", "", "", "", "")
	}
	return row
}

func floatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
