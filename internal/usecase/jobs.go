package usecase

// Queue job kinds. One kind per enrichment family; derived kinds are
// fanned out by the ingest jobs rather than dispatched from Kafka.
const (
	KindUnderlyingTick    = "underlying_tick"
	KindOptionQuote       = "option_quote"
	KindOptionChain       = "option_chain"
	KindOHLCWindow        = "ohlc_window"
	KindVolatilitySurface = "volatility_surface"
)

// OHLCWindowPayload asks for one rolling window recompute.
type OHLCWindowPayload struct {
	Product       string `json:"product"`
	WindowMinutes int    `json:"window_minutes"`
}

// SurfacePayload asks for a volatility surface rebuild.
type SurfacePayload struct {
	Product string `json:"product"`
}
