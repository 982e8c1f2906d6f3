package enrich

import (
	"errors"
	"testing"
	"time"

	"DeltaStream/internal/domain/models"
)

func ticksAt(prices ...float64) []models.Tick {
	base := time.Date(2025, 1, 30, 10, 0, 0, 0, time.UTC)
	out := make([]models.Tick, len(prices))
	for i, p := range prices {
		out[i] = models.Tick{
			Product:    "NIFTY",
			Price:      p,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SequenceID: int64(i + 1),
		}
	}
	return out
}

func TestOHLCAggregation(t *testing.T) {
	w, err := OHLC("NIFTY", 5, ticksAt(21500, 21505, 21510, 21502, 21507))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Open != 21500 || w.High != 21510 || w.Low != 21500 || w.Close != 21507 {
		t.Fatalf("unexpected ohlc %+v", w)
	}
	if w.SampleCount != 5 {
		t.Fatalf("expected 5 samples, got %d", w.SampleCount)
	}
}

func TestOHLCOrdersOutOfOrderTicks(t *testing.T) {
	ticks := ticksAt(21500, 21505, 21510)
	// Deliver the earliest tick last.
	shuffled := []models.Tick{ticks[2], ticks[0], ticks[1]}

	w, err := OHLC("NIFTY", 1, shuffled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Open != 21500 || w.Close != 21510 {
		t.Fatalf("expected open=21500 close=21510, got open=%v close=%v", w.Open, w.Close)
	}
}

func TestOHLCEmptyWindowEmitsNothing(t *testing.T) {
	w, err := OHLC("NIFTY", 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected no window for empty tick set, got %+v", w)
	}
}

func TestOHLCRejectsBadWindow(t *testing.T) {
	_, err := OHLC("NIFTY", 0, ticksAt(21500))
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
