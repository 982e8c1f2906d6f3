package enrich

import (
	"errors"
	"testing"
	"time"

	"DeltaStream/internal/domain/models"
)

func quotes(t models.OptionType, strikes []float64, oi []int64, volume []int64) []models.OptionQuote {
	out := make([]models.OptionQuote, len(strikes))
	for i, s := range strikes {
		q := models.OptionQuote{Strike: s, Type: t}
		if i < len(oi) {
			q.OpenInterest = oi[i]
		}
		if i < len(volume) {
			q.Volume = volume[i]
		}
		out[i] = q
	}
	return out
}

func walkthroughSnapshot() *models.OptionChainSnapshot {
	strikes := []float64{21000, 21500, 22000}
	return &models.OptionChainSnapshot{
		Product:   "NIFTY",
		Expiry:    "2025-01-30",
		SpotPrice: 21500,
		Strikes:   strikes,
		Calls:     quotes(models.OptionCall, strikes, []int64{50000, 40000, 30000}, []int64{5000, 4000, 3000}),
		Puts:      quotes(models.OptionPut, strikes, []int64{20000, 30000, 40000}, []int64{2000, 3000, 4000}),
		Timestamp: time.Now(),
	}
}

func TestChainPCR(t *testing.T) {
	ec, err := Chain(walkthroughSnapshot(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ec.PCROI != 0.75 {
		t.Fatalf("pcr_oi: expected 0.75, got %v", ec.PCROI)
	}
	if ec.TotalCallOI != 120000 || ec.TotalPutOI != 90000 {
		t.Fatalf("unexpected totals call=%d put=%d", ec.TotalCallOI, ec.TotalPutOI)
	}
}

func TestChainMaxPain(t *testing.T) {
	ec, err := Chain(walkthroughSnapshot(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ec.MaxPainStrike != 21500 {
		t.Fatalf("max pain: expected 21500, got %v", ec.MaxPainStrike)
	}
}

func TestRatioZeroDenominator(t *testing.T) {
	if got := Ratio(90000, 0); got != 0 {
		t.Fatalf("expected 0 on zero denominator, got %v", got)
	}
}

func TestATMStrikeSelection(t *testing.T) {
	strikes := make([]float64, 0, 12)
	for s := 21000.0; s <= 21550; s += 50 {
		strikes = append(strikes, s)
	}
	if got := ATMStrike(strikes, 21537); got != 21550 {
		t.Fatalf("expected 21550, got %v", got)
	}
}

func TestATMStrikeTieGoesToLowest(t *testing.T) {
	// 21525 sits exactly between 21500 and 21550.
	if got := ATMStrike([]float64{21500, 21550}, 21525); got != 21500 {
		t.Fatalf("tie must resolve to lowest strike, got %v", got)
	}
}

func TestMaxPainTieGoesToLowest(t *testing.T) {
	// No open interest anywhere: every candidate has payout 0.
	strikes := []float64{100, 110, 120}
	calls := quotes(models.OptionCall, strikes, nil, nil)
	puts := quotes(models.OptionPut, strikes, nil, nil)
	if got := MaxPain(calls, puts, strikes); got != 100 {
		t.Fatalf("tie must resolve to lowest strike, got %v", got)
	}
}

func TestATMStraddlePrice(t *testing.T) {
	calls := []models.OptionQuote{{Strike: 21500, Last: 120.5}}
	puts := []models.OptionQuote{{Strike: 21500, Last: 110.25}}
	if got := ATMStraddle(calls, puts, 21500); got != 230.75 {
		t.Fatalf("expected 230.75, got %v", got)
	}
}

func TestATMStraddleMissingLeg(t *testing.T) {
	calls := []models.OptionQuote{{Strike: 21500, Last: 120.5}}
	if got := ATMStraddle(calls, nil, 21500); got != 0 {
		t.Fatalf("expected 0 with missing put leg, got %v", got)
	}
}

func TestBuildupOTM(t *testing.T) {
	snap := walkthroughSnapshot()
	callOI, putOI := BuildupOTM(snap.Calls, snap.Puts, snap.SpotPrice)
	if callOI != 30000 {
		t.Fatalf("otm call oi: expected 30000, got %d", callOI)
	}
	if putOI != 20000 {
		t.Fatalf("otm put oi: expected 20000, got %d", putOI)
	}
}

func TestChainRejectsEmptyStrikes(t *testing.T) {
	snap := walkthroughSnapshot()
	snap.Strikes = nil
	_, err := Chain(snap, time.Now())
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChainRejectsNonPositiveSpot(t *testing.T) {
	snap := walkthroughSnapshot()
	snap.SpotPrice = 0
	_, err := Chain(snap, time.Now())
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
