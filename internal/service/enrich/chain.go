package enrich

import (
	"fmt"
	"math"
	"sort"
	"time"

	"DeltaStream/internal/domain/models"
)

// Chain computes the full enrichment of one option chain snapshot.
// Pure function: no I/O, no retries, typed errors only.
func Chain(snap *models.OptionChainSnapshot, now time.Time) (*models.EnrichedChain, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	totalCallOI, totalCallVol := sumOIVolume(snap.Calls)
	totalPutOI, totalPutVol := sumOIVolume(snap.Puts)

	strikes := append([]float64(nil), snap.Strikes...)
	sort.Float64s(strikes)

	atmStrike := ATMStrike(strikes, snap.SpotPrice)
	maxPain := MaxPain(snap.Calls, snap.Puts, strikes)
	callBuildup, putBuildup := BuildupOTM(snap.Calls, snap.Puts, snap.SpotPrice)

	return &models.EnrichedChain{
		Version:          models.SchemaVersion,
		Product:          snap.Product,
		Expiry:           snap.Expiry,
		SpotPrice:        snap.SpotPrice,
		PCROI:            Ratio(totalPutOI, totalCallOI),
		PCRVolume:        Ratio(totalPutVol, totalCallVol),
		ATMStrike:        atmStrike,
		ATMStraddlePrice: ATMStraddle(snap.Calls, snap.Puts, atmStrike),
		MaxPainStrike:    maxPain,
		TotalCallOI:      totalCallOI,
		TotalPutOI:       totalPutOI,
		CallBuildupOTM:   callBuildup,
		PutBuildupOTM:    putBuildup,
		Calls:            snap.Calls,
		Puts:             snap.Puts,
		Timestamp:        snap.Timestamp,
		ProcessedAt:      now.UTC(),
	}, nil
}

func checkSnapshot(snap *models.OptionChainSnapshot) error {
	if snap == nil {
		return &models.ValidationError{Kind: "option_chain", Err: fmt.Errorf("nil snapshot")}
	}
	if len(snap.Strikes) == 0 {
		return &models.ValidationError{Kind: "option_chain", Err: fmt.Errorf("no strikes")}
	}
	if snap.SpotPrice <= 0 || math.IsNaN(snap.SpotPrice) {
		return &models.ValidationError{Kind: "option_chain", Err: fmt.Errorf("non-positive spot price %v", snap.SpotPrice)}
	}
	for _, s := range snap.Strikes {
		if s <= 0 || math.IsNaN(s) {
			return &models.ValidationError{Kind: "option_chain", Err: fmt.Errorf("non-positive strike %v", s)}
		}
	}
	return nil
}

func sumOIVolume(quotes []models.OptionQuote) (oi, volume int64) {
	for _, q := range quotes {
		oi += q.OpenInterest
		volume += q.Volume
	}
	return oi, volume
}

// Ratio is the PCR-style division: zero denominator yields 0, never an
// error and never NaN.
func Ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ATMStrike returns the strike minimizing |strike - spot|. Strikes must
// be sorted ascending; exact distance ties resolve to the lowest strike
// because the scan only replaces on strictly smaller distance.
func ATMStrike(sortedStrikes []float64, spot float64) float64 {
	atm := sortedStrikes[0]
	best := math.Abs(atm - spot)
	for _, s := range sortedStrikes[1:] {
		if d := math.Abs(s - spot); d < best {
			best = d
			atm = s
		}
	}
	return atm
}

// ATMStraddle is call.last + put.last at the ATM strike, 0 when either
// leg is missing from the chain.
func ATMStraddle(calls, puts []models.OptionQuote, atmStrike float64) float64 {
	call, callOK := quoteAtStrike(calls, atmStrike)
	put, putOK := quoteAtStrike(puts, atmStrike)
	if !callOK || !putOK {
		return 0
	}
	return call.Last + put.Last
}

func quoteAtStrike(quotes []models.OptionQuote, strike float64) (*models.OptionQuote, bool) {
	for i := range quotes {
		if quotes[i].Strike == strike {
			return &quotes[i], true
		}
	}
	return nil, false
}

// MaxPain scans every candidate strike and returns the one minimizing
// total option-writer payout. O(n^2) over the strike set, which stays in
// the tens for real chains. Candidates must be sorted ascending; the
// strict < comparison keeps the lowest strike on payout ties.
func MaxPain(calls, puts []models.OptionQuote, sortedStrikes []float64) float64 {
	maxPain := sortedStrikes[0]
	minPayout := math.Inf(1)

	for _, candidate := range sortedStrikes {
		payout := 0.0
		for _, c := range calls {
			if diff := candidate - c.Strike; diff > 0 {
				payout += float64(c.OpenInterest) * diff
			}
		}
		for _, p := range puts {
			if diff := p.Strike - candidate; diff > 0 {
				payout += float64(p.OpenInterest) * diff
			}
		}
		if payout < minPayout {
			minPayout = payout
			maxPain = candidate
		}
	}
	return maxPain
}

// BuildupOTM sums open interest sitting out of the money: calls above
// spot, puts below spot. Sentiment signal only, nothing is persisted
// per position.
func BuildupOTM(calls, puts []models.OptionQuote, spot float64) (callOI, putOI int64) {
	for _, c := range calls {
		if c.Strike > spot {
			callOI += c.OpenInterest
		}
	}
	for _, p := range puts {
		if p.Strike < spot {
			putOI += p.OpenInterest
		}
	}
	return callOI, putOI
}
