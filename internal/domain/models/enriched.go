package models

import "time"

// EnrichedChain is the append-only enrichment of one chain snapshot.
// Created at most once per (product, expiry, timestamp) and never mutated.
type EnrichedChain struct {
	Version          int           `json:"v"`
	Product          string        `json:"product"`
	Expiry           string        `json:"expiry"`
	SpotPrice        float64       `json:"spot_price"`
	PCROI            float64       `json:"pcr_oi"`
	PCRVolume        float64       `json:"pcr_volume"`
	ATMStrike        float64       `json:"atm_strike"`
	ATMStraddlePrice float64       `json:"atm_straddle_price"`
	MaxPainStrike    float64       `json:"max_pain_strike"`
	TotalCallOI      int64         `json:"total_call_oi"`
	TotalPutOI       int64         `json:"total_put_oi"`
	CallBuildupOTM   int64         `json:"call_buildup_otm"`
	PutBuildupOTM    int64         `json:"put_buildup_otm"`
	Calls            []OptionQuote `json:"calls"`
	Puts             []OptionQuote `json:"puts"`
	Timestamp        time.Time     `json:"timestamp"`
	ProcessedAt      time.Time     `json:"processed_at"`
}

// PCRSummary is the lightweight cache payload for consumers that only
// need the ratio, so they never transfer a full chain.
type PCRSummary struct {
	Version   int       `json:"v"`
	PCROI     float64   `json:"pcr_oi"`
	PCRVolume float64   `json:"pcr_volume"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrichedTick is a tick plus its processing timestamp, republished on
// the outbound underlying channel.
type EnrichedTick struct {
	Version     int       `json:"v"`
	Product     string    `json:"product"`
	Price       float64   `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
	SequenceID  int64     `json:"sequence_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// OHLCWindow is a rolling aggregate over ticks in [now-window, now].
// Always derived from stored ticks, never a source of truth.
type OHLCWindow struct {
	Version       int       `json:"v"`
	Product       string    `json:"product"`
	WindowMinutes int       `json:"window_minutes"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	SampleCount   int       `json:"sample_count"`
}

// SurfaceExpiry is one expiry slice of the volatility surface: raw IV
// points sorted by strike plus their unweighted mean. No smoothing is
// applied; downstream consumers expect raw points, not a fitted curve.
type SurfaceExpiry struct {
	Expiry  string    `json:"expiry"`
	Strikes []float64 `json:"strikes"`
	IVs     []float64 `json:"ivs"`
	AvgIV   float64   `json:"avg_iv"`
}

// VolatilitySurface groups recent quote IVs by expiry for one product.
type VolatilitySurface struct {
	Version   int             `json:"v"`
	Product   string          `json:"product"`
	Expiries  []SurfaceExpiry `json:"expiries"`
	Timestamp time.Time       `json:"timestamp"`
}
