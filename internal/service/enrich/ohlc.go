package enrich

import (
	"fmt"
	"sort"

	"DeltaStream/internal/domain/models"
)

// OHLC aggregates ticks already filtered to [now-window, now] into one
// window. An empty window yields (nil, nil): nothing is emitted, never a
// zero-filled bar. Ticks are ordered by timestamp before aggregation so
// out-of-order delivery cannot corrupt open/close.
func OHLC(product string, windowMinutes int, ticks []models.Tick) (*models.OHLCWindow, error) {
	if product == "" {
		return nil, &models.ValidationError{Kind: "ohlc", Err: fmt.Errorf("empty product")}
	}
	if windowMinutes <= 0 {
		return nil, &models.ValidationError{Kind: "ohlc", Err: fmt.Errorf("non-positive window %d", windowMinutes)}
	}
	if len(ticks) == 0 {
		return nil, nil
	}

	ordered := append([]models.Tick(nil), ticks...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	w := &models.OHLCWindow{
		Version:       models.SchemaVersion,
		Product:       product,
		WindowMinutes: windowMinutes,
		Open:          ordered[0].Price,
		High:          ordered[0].Price,
		Low:           ordered[0].Price,
		Close:         ordered[len(ordered)-1].Price,
		StartTime:     ordered[0].Timestamp,
		EndTime:       ordered[len(ordered)-1].Timestamp,
		SampleCount:   len(ordered),
	}
	for _, t := range ordered[1:] {
		if t.Price > w.High {
			w.High = t.Price
		}
		if t.Price < w.Low {
			w.Low = t.Price
		}
	}
	return w, nil
}
