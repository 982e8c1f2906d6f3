package models

// Requests for the operational HTTP surface. Defined in domain for
// consistency and reuse.

type ChainsRequest struct {
	Product string `query:"product" json:"product" validate:"required"`
	From    string `query:"from" json:"from"`
	To      string `query:"to" json:"to"`
	Limit   int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type LatestChainRequest struct {
	Product string `query:"product" json:"product" validate:"required"`
	Expiry  string `query:"expiry" json:"expiry" validate:"required"`
}

type OHLCRequest struct {
	Product string `query:"product" json:"product" validate:"required"`
	Window  int    `query:"window" json:"window" default:"5" validate:"gte=1,lte=1440"`
}

type SurfaceRequest struct {
	Product string `query:"product" json:"product" validate:"required"`
}

type DLQEntriesRequest struct {
	Start int64 `query:"start" json:"start" default:"0" validate:"gte=0"`
	Stop  int64 `query:"stop" json:"stop" default:"49" validate:"gte=0"`
}

type DLQReplayRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}
