package enrich

import (
	"fmt"
	"sort"
	"time"

	"DeltaStream/internal/domain/models"
)

// Surface groups recent option quotes by expiry and reports, per expiry,
// the raw IV points sorted by strike plus their unweighted mean. No
// smoothing or interpolation: downstream consumers expect raw points.
// An empty quote set yields (nil, nil) so nothing stale is published.
func Surface(product string, quotes []models.OptionQuote, now time.Time) (*models.VolatilitySurface, error) {
	if product == "" {
		return nil, &models.ValidationError{Kind: "volatility_surface", Err: fmt.Errorf("empty product")}
	}
	if len(quotes) == 0 {
		return nil, nil
	}

	byExpiry := make(map[string][]models.OptionQuote)
	for _, q := range quotes {
		if q.Strike <= 0 {
			return nil, &models.ValidationError{Kind: "volatility_surface", Err: fmt.Errorf("non-positive strike %v", q.Strike)}
		}
		byExpiry[q.Expiry] = append(byExpiry[q.Expiry], q)
	}

	expiries := make([]string, 0, len(byExpiry))
	for expiry := range byExpiry {
		expiries = append(expiries, expiry)
	}
	sort.Strings(expiries)

	surface := &models.VolatilitySurface{
		Version:   models.SchemaVersion,
		Product:   product,
		Expiries:  make([]models.SurfaceExpiry, 0, len(expiries)),
		Timestamp: now.UTC(),
	}

	for _, expiry := range expiries {
		group := byExpiry[expiry]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Strike < group[j].Strike
		})

		strikes := make([]float64, len(group))
		ivs := make([]float64, len(group))
		sum := 0.0
		for i, q := range group {
			strikes[i] = q.Strike
			ivs[i] = q.Greeks.IV
			sum += q.Greeks.IV
		}

		surface.Expiries = append(surface.Expiries, models.SurfaceExpiry{
			Expiry:  expiry,
			Strikes: strikes,
			IVs:     ivs,
			AvgIV:   sum / float64(len(ivs)),
		})
	}

	return surface, nil
}
