package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/domain/repository"
)

// ClickHouseTickStore implements TickStore on ClickHouse.
type ClickHouseTickStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseTickStore creates tick storage over the given table.
func NewClickHouseTickStore(db *sql.DB, table string) repository.TickStore {
	return &ClickHouseTickStore{db: db, table: table}
}

func (s *ClickHouseTickStore) Store(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (product, seq, price, ts, processed_at) VALUES (?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		t.Product,
		uint64(t.SequenceID),
		t.Price,
		t.Timestamp,
		time.Now().UTC(),
	)
	return err
}

func (s *ClickHouseTickStore) QueryRange(ctx context.Context, product string, from, to time.Time) ([]models.Tick, error) {
	q := fmt.Sprintf("SELECT product, seq, price, ts FROM %s WHERE product = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q, product, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []models.Tick
	for rows.Next() {
		var t models.Tick
		var seq uint64
		if err := rows.Scan(&t.Product, &seq, &t.Price, &t.Timestamp); err != nil {
			return nil, err
		}
		t.SequenceID = int64(seq)
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ClickHouseQuoteStore implements QuoteStore on ClickHouse.
type ClickHouseQuoteStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseQuoteStore creates option quote storage over the given table.
func NewClickHouseQuoteStore(db *sql.DB, table string) repository.QuoteStore {
	return &ClickHouseQuoteStore{db: db, table: table}
}

func (s *ClickHouseQuoteStore) Store(ctx context.Context, q *models.OptionQuote) error {
	stmt := fmt.Sprintf(
		"INSERT INTO %s (product, symbol, strike, expiry, type, bid, ask, last, volume, open_interest, iv, delta, gamma, vega, theta, ts, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table)
	_, err := s.db.ExecContext(ctx, stmt,
		q.Product,
		q.Symbol,
		q.Strike,
		q.Expiry,
		string(q.Type),
		q.Bid,
		q.Ask,
		q.Last,
		uint64(q.Volume),
		uint64(q.OpenInterest),
		q.Greeks.IV,
		q.Greeks.Delta,
		q.Greeks.Gamma,
		q.Greeks.Vega,
		q.Greeks.Theta,
		q.Timestamp,
		time.Now().UTC(),
	)
	return err
}

func (s *ClickHouseQuoteStore) QueryRecent(ctx context.Context, product string, since time.Time) ([]models.OptionQuote, error) {
	stmt := fmt.Sprintf(
		"SELECT product, symbol, strike, expiry, type, bid, ask, last, volume, open_interest, iv, delta, gamma, vega, theta, ts FROM %s WHERE product = ? AND ts >= ? ORDER BY expiry, strike ASC",
		s.table)
	rows, err := s.db.QueryContext(ctx, stmt, product, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []models.OptionQuote
	for rows.Next() {
		var q models.OptionQuote
		var qType string
		var volume, oi uint64
		if err := rows.Scan(&q.Product, &q.Symbol, &q.Strike, &q.Expiry, &qType,
			&q.Bid, &q.Ask, &q.Last, &volume, &oi,
			&q.Greeks.IV, &q.Greeks.Delta, &q.Greeks.Gamma, &q.Greeks.Vega, &q.Greeks.Theta,
			&q.Timestamp); err != nil {
			return nil, err
		}
		q.Type = models.OptionType(qType)
		q.Volume = int64(volume)
		q.OpenInterest = int64(oi)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (s *ClickHouseQuoteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ClickHouseChainStore implements ChainStore on ClickHouse. The leg
// arrays ride along as JSON columns: chains are read back whole for
// audit, never filtered by leg.
type ClickHouseChainStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseChainStore creates enriched chain storage over the given table.
func NewClickHouseChainStore(db *sql.DB, table string) repository.ChainStore {
	return &ClickHouseChainStore{db: db, table: table}
}

func (s *ClickHouseChainStore) Store(ctx context.Context, c *models.EnrichedChain) error {
	calls, err := json.Marshal(c.Calls)
	if err != nil {
		return fmt.Errorf("marshal calls: %w", err)
	}
	puts, err := json.Marshal(c.Puts)
	if err != nil {
		return fmt.Errorf("marshal puts: %w", err)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (product, expiry, ts, spot_price, pcr_oi, pcr_volume, atm_strike, atm_straddle_price, max_pain_strike, total_call_oi, total_put_oi, call_buildup_otm, put_buildup_otm, calls, puts, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table)
	_, err = s.db.ExecContext(ctx, stmt,
		c.Product,
		c.Expiry,
		c.Timestamp,
		c.SpotPrice,
		c.PCROI,
		c.PCRVolume,
		c.ATMStrike,
		c.ATMStraddlePrice,
		c.MaxPainStrike,
		uint64(c.TotalCallOI),
		uint64(c.TotalPutOI),
		uint64(c.CallBuildupOTM),
		uint64(c.PutBuildupOTM),
		string(calls),
		string(puts),
		c.ProcessedAt,
	)
	return err
}

func (s *ClickHouseChainStore) Query(ctx context.Context, product string, from, to time.Time, limit int) ([]models.EnrichedChain, error) {
	if limit <= 0 {
		limit = 1000
	}
	stmt := fmt.Sprintf(
		"SELECT product, expiry, ts, spot_price, pcr_oi, pcr_volume, atm_strike, atm_straddle_price, max_pain_strike, total_call_oi, total_put_oi, call_buildup_otm, put_buildup_otm, calls, puts, processed_at FROM %s WHERE product = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?",
		s.table)
	rows, err := s.db.QueryContext(ctx, stmt, product, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chains []models.EnrichedChain
	for rows.Next() {
		var c models.EnrichedChain
		var callOI, putOI, callBuild, putBuild uint64
		var calls, puts string
		if err := rows.Scan(&c.Product, &c.Expiry, &c.Timestamp, &c.SpotPrice,
			&c.PCROI, &c.PCRVolume, &c.ATMStrike, &c.ATMStraddlePrice, &c.MaxPainStrike,
			&callOI, &putOI, &callBuild, &putBuild,
			&calls, &puts, &c.ProcessedAt); err != nil {
			return nil, err
		}
		c.Version = models.SchemaVersion
		c.TotalCallOI = int64(callOI)
		c.TotalPutOI = int64(putOI)
		c.CallBuildupOTM = int64(callBuild)
		c.PutBuildupOTM = int64(putBuild)
		if err := json.Unmarshal([]byte(calls), &c.Calls); err != nil {
			return nil, fmt.Errorf("unmarshal calls: %w", err)
		}
		if err := json.Unmarshal([]byte(puts), &c.Puts); err != nil {
			return nil, fmt.Errorf("unmarshal puts: %w", err)
		}
		chains = append(chains, c)
	}
	return chains, rows.Err()
}

func (s *ClickHouseChainStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
