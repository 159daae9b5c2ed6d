// Package report renders the run summary for operators.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/northquay/leadex/internal/domain/record"
)

// Summary aggregates a finished run.
type Summary struct {
	Total      int
	ByCountry  map[string]int
	Classified int
	Top        []record.Canonical
}

// Build aggregates canonical listings. topN bounds the prospect list; only
// classified listings are ranked.
func Build(cans []record.Canonical, topN int) Summary {
	s := Summary{
		Total:     len(cans),
		ByCountry: make(map[string]int),
	}

	for _, c := range cans {
		country := c.Country
		if country == "" {
			country = "Unknown"
		}
		s.ByCountry[country]++
		if c.Classification != nil {
			s.Classified++
		}
	}

	ranked := make([]record.Canonical, 0, len(cans))
	for _, c := range cans {
		if c.Classification != nil {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Classification.PriorityScore > ranked[j].Classification.PriorityScore
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	s.Top = ranked

	return s
}

// Write renders the summary as text.
func Write(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "Total prospects: %d\n", s.Total); err != nil {
		return err
	}

	countries := make([]string, 0, len(s.ByCountry))
	for c := range s.ByCountry {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool {
		if s.ByCountry[countries[i]] != s.ByCountry[countries[j]] {
			return s.ByCountry[countries[i]] > s.ByCountry[countries[j]]
		}
		return countries[i] < countries[j]
	})

	fmt.Fprintln(w, "\nBy country:")
	for _, c := range countries {
		fmt.Fprintf(w, "  %s: %d\n", c, s.ByCountry[c])
	}

	fmt.Fprintf(w, "\nClassified: %d/%d\n", s.Classified, s.Total)

	if len(s.Top) > 0 {
		fmt.Fprintf(w, "\nTop %d prospects:\n", len(s.Top))
		for i, c := range s.Top {
			fmt.Fprintf(w, "  %d. %s (%s) - Score: %d/10\n",
				i+1, c.Name, c.City, c.Classification.PriorityScore)
		}
	}

	return nil
}
