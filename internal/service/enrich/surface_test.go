package enrich

import (
	"testing"
	"time"

	"DeltaStream/internal/domain/models"
)

func surfaceQuote(expiry string, strike, iv float64) models.OptionQuote {
	return models.OptionQuote{
		Product: "NIFTY",
		Expiry:  expiry,
		Strike:  strike,
		Type:    models.OptionCall,
		Greeks:  models.Greeks{IV: iv},
	}
}

func TestSurfaceGroupsAndSorts(t *testing.T) {
	quotes := []models.OptionQuote{
		surfaceQuote("2025-02-27", 21500, 0.18),
		surfaceQuote("2025-01-30", 22000, 0.20),
		surfaceQuote("2025-01-30", 21000, 0.16),
		surfaceQuote("2025-01-30", 21500, 0.15),
	}

	s, err := Surface("NIFTY", quotes, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Expiries) != 2 {
		t.Fatalf("expected 2 expiries, got %d", len(s.Expiries))
	}

	near := s.Expiries[0]
	if near.Expiry != "2025-01-30" {
		t.Fatalf("expiries must sort ascending, got %s first", near.Expiry)
	}
	wantStrikes := []float64{21000, 21500, 22000}
	for i, strike := range wantStrikes {
		if near.Strikes[i] != strike {
			t.Fatalf("strike %d: expected %v, got %v", i, strike, near.Strikes[i])
		}
	}

	wantAvg := (0.20 + 0.16 + 0.15) / 3
	if diff := near.AvgIV - wantAvg; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("avg iv: expected %v, got %v", wantAvg, near.AvgIV)
	}
}

func TestSurfaceEmptyQuotesEmitsNothing(t *testing.T) {
	s, err := Surface("NIFTY", nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil surface for no quotes, got %+v", s)
	}
}
