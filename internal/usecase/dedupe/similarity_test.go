package dedupe

import (
	"testing"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain/record"
)

func scorePairTest(t *testing.T, a, b record.Record) Pair {
	t.Helper()
	e, err := New(DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ka, kb := record.Normalize(a), record.Normalize(b)
	return e.score(&a, &b, &ka, &kb)
}

func TestScore_IDShortCircuit(t *testing.T) {
	p := scorePairTest(t,
		record.Record{PlaceID: "X1", Name: "Foo Imports"},
		record.Record{PlaceID: "X1", Name: "Completely Different Name"},
	)
	if !p.Sub.IDMatch || p.Score != 100 || !p.Duplicate {
		t.Fatalf("id short-circuit failed: %+v", p)
	}
}

func TestScore_TokenReordering(t *testing.T) {
	p := scorePairTest(t,
		record.Record{Name: "Euro Asia Food Import"},
		record.Record{Name: "Euro Asia Import GmbH"},
	)
	if p.Sub.Name < 80 {
		t.Fatalf("reordered/partial names scored %v, want >= 80", p.Sub.Name)
	}
}

func TestScore_PhoneSuffixPartialCredit(t *testing.T) {
	// No country on either record: locale-ambiguous, suffix match only.
	p := scorePairTest(t,
		record.Record{Name: "Asia Markt", Phone: "030 1234567"},
		record.Record{Name: "Asia Markt", Phone: "+49 30 1234567"},
	)
	if p.Sub.Phone != suffixMatchScore {
		t.Fatalf("phone sub-score = %v, want %v", p.Sub.Phone, suffixMatchScore)
	}
}

func TestScore_WebsiteBoost(t *testing.T) {
	p := scorePairTest(t,
		record.Record{Name: "Asia Markt", Website: "https://www.asiamarkt.de/home"},
		record.Record{Name: "Asia Markt Berlin", Website: "asiamarkt.de"},
	)
	if p.Sub.Website != 100 {
		t.Fatalf("website sub-score = %v, want 100", p.Sub.Website)
	}
}

func TestScore_MissingSignalsExcluded(t *testing.T) {
	// Identical names, nothing else on either side: the name signal alone
	// decides, absent fields do not drag the score down.
	p := scorePairTest(t,
		record.Record{Name: "Thanh Long Asia Food"},
		record.Record{Name: "Thanh Long Asia Food GmbH"},
	)
	if p.Score != 100 {
		t.Fatalf("score = %v, want 100", p.Score)
	}
}

func TestScore_GeoDecay(t *testing.T) {
	near := scorePairTest(t,
		record.Record{Name: "A", Latitude: fptrTest(52.5200), Longitude: fptrTest(13.4000)},
		record.Record{Name: "B", Latitude: fptrTest(52.5210), Longitude: fptrTest(13.4010)},
	)
	far := scorePairTest(t,
		record.Record{Name: "A", Latitude: fptrTest(52.52), Longitude: fptrTest(13.40)},
		record.Record{Name: "B", Latitude: fptrTest(48.14), Longitude: fptrTest(11.58)},
	)
	if near.Sub.Distance <= 0 {
		t.Fatalf("nearby pair distance score = %v, want > 0", near.Sub.Distance)
	}
	if far.Sub.Distance != 0 {
		t.Fatalf("distant pair distance score = %v, want 0", far.Sub.Distance)
	}
}

func TestScore_NoSignals(t *testing.T) {
	p := scorePairTest(t, record.Record{PlaceID: "a"}, record.Record{PlaceID: "b"})
	if p.Score != 0 || p.Duplicate {
		t.Fatalf("pair with no shared signals scored %+v", p)
	}
}

func TestTokenSetRatio(t *testing.T) {
	cases := []struct {
		a, b []string
		min  float64
		max  float64
	}{
		{[]string{"euro", "asia", "import"}, []string{"import", "euro", "asia"}, 100, 100},
		{[]string{"euro", "asia", "food", "import"}, []string{"euro", "asia", "import"}, 100, 100},
		{[]string{"wok", "express"}, []string{"euro", "asia", "union"}, 0, 40},
		{nil, nil, 100, 100},
	}
	for _, c := range cases {
		got := tokenSetRatio(c.a, c.b)
		if got < c.min || got > c.max {
			t.Errorf("tokenSetRatio(%v, %v) = %v, want within [%v,%v]", c.a, c.b, got, c.min, c.max)
		}
	}
}

func TestRatio(t *testing.T) {
	if r := ratio("abc", "abc"); r != 100 {
		t.Fatalf("identical ratio = %v", r)
	}
	if r := ratio("abc", "xyz"); r != 0 {
		t.Fatalf("disjoint ratio = %v", r)
	}
	if r := ratio("", ""); r != 100 {
		t.Fatalf("empty ratio = %v", r)
	}
	if r := ratio("grosshandel", "großhandel"); r < 80 {
		t.Fatalf("near-identical ratio = %v", r)
	}
}

func fptrTest(v float64) *float64 { return &v }
