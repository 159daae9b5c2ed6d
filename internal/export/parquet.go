package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/northquay/leadex/internal/domain/record"
)

// parquetRow is the flattened warehouse schema of a canonical listing.
// Repeated fields are joined so the schema stays flat.
type parquetRow struct {
	PlaceID             string   `parquet:"id"`
	Name                string   `parquet:"company_name"`
	Street              string   `parquet:"street_address"`
	City                string   `parquet:"city"`
	PostalCode          string   `parquet:"postal_code"`
	FullAddress         string   `parquet:"full_address"`
	Latitude            *float64 `parquet:"latitude,optional"`
	Longitude           *float64 `parquet:"longitude,optional"`
	Phone               string   `parquet:"phone"`
	Website             string   `parquet:"website"`
	Rating              float64  `parquet:"rating"`
	ReviewCount         int32    `parquet:"review_count"`
	Types               string   `parquet:"types"`
	Country             string   `parquet:"country"`
	Source              string   `parquet:"source"`
	SearchQuery         string   `parquet:"search_query"`
	ScrapedAt           int64    `parquet:"scrape_timestamp,timestamp(millisecond)"`
	SubsumedRefs        string   `parquet:"subsumed_refs"`
	AltPlaceIDs         string   `parquet:"alt_place_ids"`
	SecondaryPhones     string   `parquet:"secondary_phones"`
	SecondaryWebsites   string   `parquet:"secondary_websites"`
	IsDistributor       bool     `parquet:"is_horeca_distributor"`
	IsEthnicAsian       bool     `parquet:"is_ethnic_asian"`
	LikelyFrozenPoultry bool     `parquet:"likely_frozen_poultry"`
	PriorityScore       int32    `parquet:"priority_score"`
	Recommendation      string   `parquet:"contact_recommendation"`
}

// WriteParquet writes canonical listings as a Parquet file.
func WriteParquet(w io.Writer, cans []record.Canonical) error {
	pw := parquet.NewGenericWriter[parquetRow](w)

	rows := make([]parquetRow, len(cans))
	for i := range cans {
		rows[i] = toParquetRow(&cans[i])
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func toParquetRow(c *record.Canonical) parquetRow {
	row := parquetRow{
		PlaceID:           c.PlaceID,
		Name:              c.Name,
		Street:            c.Street,
		City:              c.City,
		PostalCode:        c.PostalCode,
		FullAddress:       c.FullAddress,
		Latitude:          c.Latitude,
		Longitude:         c.Longitude,
		Phone:             c.Phone,
		Website:           c.Website,
		Rating:            c.Rating,
		ReviewCount:       int32(c.ReviewCount),
		Types:             strings.Join(c.Categories, ","),
		Country:           c.Country,
		Source:            c.Source,
		SearchQuery:       c.SearchQuery,
		SubsumedRefs:      strings.Join(c.SubsumedRefs, ";"),
		AltPlaceIDs:       strings.Join(c.AltPlaceIDs, ";"),
		SecondaryPhones:   strings.Join(c.SecondaryPhones, ";"),
		SecondaryWebsites: strings.Join(c.SecondaryWebsites, ";"),
	}
	if !c.ScrapedAt.IsZero() {
		row.ScrapedAt = c.ScrapedAt.UnixMilli()
	}
	if c.Classification != nil {
		row.IsDistributor = c.Classification.IsDistributor
		row.IsEthnicAsian = c.Classification.IsEthnicAsian
		row.LikelyFrozenPoultry = c.Classification.LikelyFrozenPoultry
		row.PriorityScore = int32(c.Classification.PriorityScore)
		row.Recommendation = c.Classification.Recommendation
	}
	return row
}
