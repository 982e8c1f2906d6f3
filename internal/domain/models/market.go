package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is stamped on every payload this service emits.
// Readers ignore unknown fields, so bumping the version is additive.
const SchemaVersion = 1

// OptionType distinguishes call and put legs.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Tick is a raw underlying price event from the feed.
// Identity is (Product, SequenceID).
type Tick struct {
	Version    int       `json:"v"`
	Product    string    `json:"product" validate:"required"`
	Price      float64   `json:"price" validate:"required,gt=0"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	SequenceID int64     `json:"sequence_id" validate:"gte=0"`
}

// Greeks carries per-quote option sensitivities as published by the feed.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	IV    float64 `json:"iv"`
}

// OptionQuote is a single option leg quote.
type OptionQuote struct {
	Version      int        `json:"v"`
	Product      string     `json:"product" validate:"required"`
	Symbol       string     `json:"symbol"`
	Strike       float64    `json:"strike" validate:"required,gt=0"`
	Expiry       string     `json:"expiry" validate:"required"`
	Type         OptionType `json:"type" validate:"required,oneof=CALL PUT"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume" validate:"gte=0"`
	OpenInterest int64      `json:"open_interest" validate:"gte=0"`
	Greeks       Greeks     `json:"greeks"`
	Timestamp    time.Time  `json:"timestamp" validate:"required"`
}

// OptionChainSnapshot is one full chain for a (product, expiry) at an instant.
type OptionChainSnapshot struct {
	Version   int           `json:"v"`
	Product   string        `json:"product" validate:"required"`
	Expiry    string        `json:"expiry" validate:"required"`
	SpotPrice float64       `json:"spot_price" validate:"required,gt=0"`
	Strikes   []float64     `json:"strikes" validate:"required,min=1,dive,gt=0"`
	Calls     []OptionQuote `json:"calls"`
	Puts      []OptionQuote `json:"puts"`
	Timestamp time.Time     `json:"timestamp" validate:"required"`
}

var validate = validator.New()

// ValidationError marks a payload as permanently malformed. Jobs carrying
// one go straight to the dead-letter queue without consuming retry budget.
type ValidationError struct {
	Kind string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func decode(kind string, data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	if err := validate.Struct(dest); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	return nil
}

// DecodeTick parses and validates a raw tick payload.
func DecodeTick(data []byte) (*Tick, error) {
	var t Tick
	if err := decode("tick", data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeOptionQuote parses and validates a raw option quote payload.
func DecodeOptionQuote(data []byte) (*OptionQuote, error) {
	var q OptionQuote
	if err := decode("option_quote", data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// DecodeChainSnapshot parses and validates a raw option chain payload.
func DecodeChainSnapshot(data []byte) (*OptionChainSnapshot, error) {
	var c OptionChainSnapshot
	if err := decode("option_chain", data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
