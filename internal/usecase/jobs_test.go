package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/idempotency"
	"DeltaStream/pkg/cache"
	"DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"
)

// --- stubs ---

type stubTickStore struct {
	stored []models.Tick
	ticks  []models.Tick
	fail   bool
}

func (s *stubTickStore) Store(_ context.Context, t *models.Tick) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	s.stored = append(s.stored, *t)
	return nil
}

func (s *stubTickStore) QueryRange(_ context.Context, _ string, _, _ time.Time) ([]models.Tick, error) {
	return s.ticks, nil
}

func (s *stubTickStore) Health(context.Context) error { return nil }

type stubQuoteStore struct {
	stored []models.OptionQuote
	recent []models.OptionQuote
}

func (s *stubQuoteStore) Store(_ context.Context, q *models.OptionQuote) error {
	s.stored = append(s.stored, *q)
	return nil
}

func (s *stubQuoteStore) QueryRecent(context.Context, string, time.Time) ([]models.OptionQuote, error) {
	return s.recent, nil
}

func (s *stubQuoteStore) Health(context.Context) error { return nil }

type stubChainStore struct {
	stored []models.EnrichedChain
}

func (s *stubChainStore) Store(_ context.Context, c *models.EnrichedChain) error {
	s.stored = append(s.stored, *c)
	return nil
}

func (s *stubChainStore) Query(context.Context, string, time.Time, time.Time, int) ([]models.EnrichedChain, error) {
	return s.stored, nil
}

func (s *stubChainStore) Health(context.Context) error { return nil }

type stubPublisher struct {
	ticks  []models.EnrichedTick
	chains []models.EnrichedChain
}

func (p *stubPublisher) PublishTick(_ context.Context, t *models.EnrichedTick) error {
	p.ticks = append(p.ticks, *t)
	return nil
}

func (p *stubPublisher) PublishChain(_ context.Context, c *models.EnrichedChain) error {
	p.chains = append(p.chains, *c)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

type stubQueue struct {
	enqueued []string
}

func (q *stubQueue) Enqueue(_ context.Context, kind string, _ interface{}) error {
	q.enqueued = append(q.enqueued, kind)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func testGateway(ticks *stubTickStore, quotes *stubQuoteStore, chains *stubChainStore, c cache.Service, pub *stubPublisher) *gateway.Gateway {
	return gateway.New(ticks, quotes, chains, c, pub)
}

func tickPayload(t *testing.T, product string, price float64, seq int64) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(models.Tick{
		Version:    models.SchemaVersion,
		Product:    product,
		Price:      price,
		Timestamp:  time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		SequenceID: seq,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// --- tests ---

func TestTickJobStoresAndCaches(t *testing.T) {
	ticks := &stubTickStore{}
	mem := cache.NewMemoryCache()
	gw := testGateway(ticks, &stubQuoteStore{}, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{Latest: time.Minute, Chain: time.Minute, PCR: time.Minute, Surface: time.Minute}, testLogger(t))
	job := NewTickJob(gw, cw, &stubQueue{}, []int{1, 5}, testLogger(t))

	if err := job.Handle(context.Background(), tickPayload(t, "NIFTY", 21537.5, 42)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ticks.stored) != 1 {
		t.Fatalf("expected 1 stored tick, got %d", len(ticks.stored))
	}

	var latest models.EnrichedTick
	key := cache.GenerateKeyWithParams("latest:underlying", "NIFTY")
	if err := mem.Get(context.Background(), key, &latest); err != nil {
		t.Fatalf("latest tick not cached: %v", err)
	}
	if latest.Price != 21537.5 || latest.SequenceID != 42 {
		t.Fatalf("unexpected cached tick %+v", latest)
	}
}

func TestTickJobInvalidPayloadIsPermanent(t *testing.T) {
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, &stubChainStore{}, cache.NewMemoryCache(), &stubPublisher{})
	cw := NewCacheWriter(cache.NewMemoryCache(), CacheTTLs{}, testLogger(t))
	job := NewTickJob(gw, cw, &stubQueue{}, nil, testLogger(t))

	err := job.Handle(context.Background(), json.RawMessage(`{"product":"","price":-1}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !queue.IsPermanent(err) {
		t.Fatalf("validation failure must be permanent, got %v", err)
	}
}

func TestTickJobStoreFailureIsTransient(t *testing.T) {
	ticks := &stubTickStore{fail: true}
	gw := testGateway(ticks, &stubQuoteStore{}, &stubChainStore{}, cache.NewMemoryCache(), &stubPublisher{})
	cw := NewCacheWriter(cache.NewMemoryCache(), CacheTTLs{}, testLogger(t))
	job := NewTickJob(gw, cw, &stubQueue{}, nil, testLogger(t))

	err := job.Handle(context.Background(), tickPayload(t, "NIFTY", 21500, 1))
	if err == nil {
		t.Fatalf("expected error")
	}
	if queue.IsPermanent(err) {
		t.Fatalf("store failure must stay retryable, got %v", err)
	}
}

func TestTickJobPublishFansOutWindows(t *testing.T) {
	pub := &stubPublisher{}
	q := &stubQueue{}
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, &stubChainStore{}, cache.NewMemoryCache(), pub)
	cw := NewCacheWriter(cache.NewMemoryCache(), CacheTTLs{}, testLogger(t))
	job := NewTickJob(gw, cw, q, []int{1, 5, 15}, testLogger(t))

	if err := job.Publish(context.Background(), tickPayload(t, "NIFTY", 21500, 7)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.ticks) != 1 {
		t.Fatalf("expected 1 published tick, got %d", len(pub.ticks))
	}
	if len(q.enqueued) != 3 {
		t.Fatalf("expected 3 fan-out jobs, got %d", len(q.enqueued))
	}
	for _, kind := range q.enqueued {
		if kind != KindOHLCWindow {
			t.Fatalf("unexpected fan-out kind %q", kind)
		}
	}
}

// Duplicate submissions of the same logical tick must persist exactly
// once when run under the guard in executor order.
func TestTickJobDuplicateSuppression(t *testing.T) {
	ticks := &stubTickStore{}
	mem := cache.NewMemoryCache()
	gw := testGateway(ticks, &stubQuoteStore{}, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{Latest: time.Minute}, testLogger(t))
	job := NewTickJob(gw, cw, &stubQueue{}, nil, testLogger(t))
	guard := idempotency.New(cache.NewMemoryCache())

	payload := tickPayload(t, "NIFTY", 21500, 99)
	ctx := context.Background()
	handled := 0
	for i := 0; i < 5; i++ {
		key := job.IdempotencyKey(payload)
		if key == "" {
			t.Fatalf("expected a key for a valid payload")
		}
		seen, err := guard.SeenBefore(ctx, key)
		if err != nil {
			t.Fatalf("seen: %v", err)
		}
		if seen {
			continue
		}
		if err := job.Handle(ctx, payload); err != nil {
			t.Fatalf("handle: %v", err)
		}
		first, err := guard.MarkSeen(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("mark: %v", err)
		}
		if !first {
			t.Fatalf("single-threaded mark must win")
		}
		handled++
	}
	if handled != 1 || len(ticks.stored) != 1 {
		t.Fatalf("expected exactly one effective run, handled=%d stored=%d", handled, len(ticks.stored))
	}
}

func TestTickJobIdempotencyKeyShape(t *testing.T) {
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, &stubChainStore{}, cache.NewMemoryCache(), &stubPublisher{})
	job := NewTickJob(gw, NewCacheWriter(cache.NewMemoryCache(), CacheTTLs{}, testLogger(t)), &stubQueue{}, nil, testLogger(t))

	key := job.IdempotencyKey(tickPayload(t, "NIFTY", 21500, 42))
	if key != "processed:underlying:NIFTY:42" {
		t.Fatalf("unexpected key %q", key)
	}
	if job.IdempotencyKey(json.RawMessage(`not json`)) != "" {
		t.Fatalf("undecodable payload must disable the guard")
	}
}

func chainPayload(t *testing.T) json.RawMessage {
	t.Helper()
	snap := models.OptionChainSnapshot{
		Version:   models.SchemaVersion,
		Product:   "NIFTY",
		Expiry:    "2026-03-26",
		SpotPrice: 21537,
		Strikes:   []float64{21400, 21500, 21600},
		Calls: []models.OptionQuote{
			{Product: "NIFTY", Strike: 21400, Expiry: "2026-03-26", Type: models.OptionCall, Last: 180, OpenInterest: 40000, Volume: 1000, Timestamp: time.Now()},
			{Product: "NIFTY", Strike: 21500, Expiry: "2026-03-26", Type: models.OptionCall, Last: 120, OpenInterest: 30000, Volume: 2000, Timestamp: time.Now()},
			{Product: "NIFTY", Strike: 21600, Expiry: "2026-03-26", Type: models.OptionCall, Last: 70, OpenInterest: 20000, Volume: 1500, Timestamp: time.Now()},
		},
		Puts: []models.OptionQuote{
			{Product: "NIFTY", Strike: 21400, Expiry: "2026-03-26", Type: models.OptionPut, Last: 60, OpenInterest: 25000, Volume: 900, Timestamp: time.Now()},
			{Product: "NIFTY", Strike: 21500, Expiry: "2026-03-26", Type: models.OptionPut, Last: 95, OpenInterest: 35000, Volume: 1800, Timestamp: time.Now()},
			{Product: "NIFTY", Strike: 21600, Expiry: "2026-03-26", Type: models.OptionPut, Last: 150, OpenInterest: 30000, Volume: 1200, Timestamp: time.Now()},
		},
		Timestamp: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestChainJobStoresEnrichedChain(t *testing.T) {
	chains := &stubChainStore{}
	mem := cache.NewMemoryCache()
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, chains, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{Latest: time.Minute, Chain: time.Minute, PCR: time.Minute, Surface: time.Minute}, testLogger(t))
	job := NewChainJob(gw, cw, &stubQueue{}, testLogger(t))

	if err := job.Handle(context.Background(), chainPayload(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(chains.stored) != 1 {
		t.Fatalf("expected 1 stored chain, got %d", len(chains.stored))
	}
	got := chains.stored[0]
	if got.TotalCallOI != 90000 || got.TotalPutOI != 90000 {
		t.Fatalf("unexpected OI totals %d/%d", got.TotalCallOI, got.TotalPutOI)
	}
	if got.PCROI != 1.0 {
		t.Fatalf("unexpected pcr_oi %v", got.PCROI)
	}
	if got.ATMStrike != 21500 {
		t.Fatalf("unexpected atm strike %v", got.ATMStrike)
	}

	var pcr models.PCRSummary
	key := cache.GenerateKeyWithParams("latest:pcr", "NIFTY", "2026-03-26")
	if err := mem.Get(context.Background(), key, &pcr); err != nil {
		t.Fatalf("pcr summary not cached: %v", err)
	}
	if pcr.PCROI != got.PCROI {
		t.Fatalf("cached pcr %v differs from stored %v", pcr.PCROI, got.PCROI)
	}
}

func TestChainJobPublishUsesCachedChainAndFansOutSurface(t *testing.T) {
	pub := &stubPublisher{}
	q := &stubQueue{}
	mem := cache.NewMemoryCache()
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, &stubChainStore{}, mem, pub)
	cw := NewCacheWriter(mem, CacheTTLs{Latest: time.Minute, Chain: time.Minute, PCR: time.Minute, Surface: time.Minute}, testLogger(t))
	job := NewChainJob(gw, cw, q, testLogger(t))

	payload := chainPayload(t)
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := job.Publish(context.Background(), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.chains) != 1 {
		t.Fatalf("expected 1 published chain, got %d", len(pub.chains))
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != KindVolatilitySurface {
		t.Fatalf("expected a surface fan-out, got %v", q.enqueued)
	}
}

func TestQuoteJobStoresAndCaches(t *testing.T) {
	quotes := &stubQuoteStore{}
	mem := cache.NewMemoryCache()
	gw := testGateway(&stubTickStore{}, quotes, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{Latest: time.Minute}, testLogger(t))
	job := NewQuoteJob(gw, cw)

	quote := models.OptionQuote{
		Version:      models.SchemaVersion,
		Product:      "NIFTY",
		Symbol:       "NIFTY26MAR21500CE",
		Strike:       21500,
		Expiry:       "2026-03-26",
		Type:         models.OptionCall,
		Last:         120,
		Volume:       100,
		OpenInterest: 5000,
		Timestamp:    time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
	b, _ := json.Marshal(quote)
	if err := job.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(quotes.stored) != 1 {
		t.Fatalf("expected 1 stored quote, got %d", len(quotes.stored))
	}

	key := job.IdempotencyKey(b)
	if !strings.HasPrefix(key, "processed:option_quote:NIFTY:NIFTY26MAR21500CE:") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestOHLCJobEmptyWindowWritesNothing(t *testing.T) {
	mem := cache.NewMemoryCache()
	gw := testGateway(&stubTickStore{}, &stubQuoteStore{}, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{}, testLogger(t))
	job := NewOHLCJob(gw, cw, testLogger(t))

	b, _ := json.Marshal(OHLCWindowPayload{Product: "NIFTY", WindowMinutes: 5})
	if err := job.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	key := OHLCKey("NIFTY", 5)
	var out models.OHLCWindow
	if err := mem.Get(context.Background(), key, &out); err == nil {
		t.Fatalf("empty window must not be cached")
	}
}

func TestOHLCJobComputesWindowFromStoredTicks(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	ticks := &stubTickStore{ticks: []models.Tick{
		{Product: "NIFTY", Price: 21500, Timestamp: base, SequenceID: 1},
		{Product: "NIFTY", Price: 21510, Timestamp: base.Add(10 * time.Second), SequenceID: 2},
		{Product: "NIFTY", Price: 21507, Timestamp: base.Add(20 * time.Second), SequenceID: 3},
	}}
	mem := cache.NewMemoryCache()
	gw := testGateway(ticks, &stubQuoteStore{}, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{}, testLogger(t))
	job := NewOHLCJob(gw, cw, testLogger(t))

	b, _ := json.Marshal(OHLCWindowPayload{Product: "NIFTY", WindowMinutes: 5})
	if err := job.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var out models.OHLCWindow
	key := OHLCKey("NIFTY", 5)
	if err := mem.Get(context.Background(), key, &out); err != nil {
		t.Fatalf("window not cached: %v", err)
	}
	if out.Open != 21500 || out.High != 21510 || out.Low != 21500 || out.Close != 21507 {
		t.Fatalf("unexpected window %+v", out)
	}
	if out.SampleCount != 3 {
		t.Fatalf("unexpected sample count %d", out.SampleCount)
	}
}

func TestSurfaceJobBuildsFromRecentQuotes(t *testing.T) {
	quotes := &stubQuoteStore{recent: []models.OptionQuote{
		{Product: "NIFTY", Strike: 21600, Expiry: "2026-03-26", Type: models.OptionCall, Greeks: models.Greeks{IV: 0.16}, Timestamp: time.Now()},
		{Product: "NIFTY", Strike: 21500, Expiry: "2026-03-26", Type: models.OptionCall, Greeks: models.Greeks{IV: 0.14}, Timestamp: time.Now()},
	}}
	mem := cache.NewMemoryCache()
	gw := testGateway(&stubTickStore{}, quotes, &stubChainStore{}, mem, &stubPublisher{})
	cw := NewCacheWriter(mem, CacheTTLs{Surface: time.Minute}, testLogger(t))
	job := NewSurfaceJob(gw, cw, 5*time.Minute, testLogger(t))

	b, _ := json.Marshal(SurfacePayload{Product: "NIFTY"})
	if err := job.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var out models.VolatilitySurface
	key := SurfaceKey("NIFTY")
	if err := mem.Get(context.Background(), key, &out); err != nil {
		t.Fatalf("surface not cached: %v", err)
	}
	if len(out.Expiries) != 1 {
		t.Fatalf("expected 1 expiry, got %d", len(out.Expiries))
	}
	if out.Expiries[0].Strikes[0] != 21500 {
		t.Fatalf("strikes not sorted: %v", out.Expiries[0].Strikes)
	}
}
