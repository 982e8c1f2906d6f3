package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() *QueueConfig {
	return &QueueConfig{
		RetryLimit: 3,
		RetryBase:  time.Second,
		RetryCap:   time.Minute,
	}
}

func TestDecideSuccess(t *testing.T) {
	if d := decide(0, nil, testConfig()); d != dispComplete {
		t.Fatalf("expected complete, got %v", d)
	}
}

func TestDecideValidationSkipsRetryBudget(t *testing.T) {
	err := Permanent(errors.New("missing strikes"))
	if d := decide(0, err, testConfig()); d != dispDeadLetter {
		t.Fatalf("validation error must dead-letter immediately, got %v", d)
	}
}

func TestDecideTransientRetriesUntilLimit(t *testing.T) {
	cfg := testConfig()
	err := Transient(errors.New("connection refused"))

	attempts := 0
	for {
		d := decide(attempts, err, cfg)
		if d == dispDeadLetter {
			break
		}
		if d != dispRetry {
			t.Fatalf("attempt %d: expected retry, got %v", attempts, d)
		}
		attempts++
		if attempts > 10 {
			t.Fatalf("retry loop did not terminate")
		}
	}
	if attempts != cfg.RetryLimit {
		t.Fatalf("expected exactly %d retries before dead-letter, got %d", cfg.RetryLimit, attempts)
	}
}

func TestDecideUnclassifiedErrorIsTransient(t *testing.T) {
	if d := decide(0, errors.New("plain error"), testConfig()); d != dispRetry {
		t.Fatalf("unclassified errors must retry, got %v", d)
	}
}

func TestBackoffDelayGeometricGrowth(t *testing.T) {
	base := 2 * time.Second
	cap := time.Minute

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{10, time.Minute},
	}
	for _, c := range cases {
		got := backoffDelay(base, cap, c.attempts)
		if got != c.want {
			t.Fatalf("attempts=%d: expected %v, got %v", c.attempts, c.want, got)
		}
	}
}

func TestBackoffDelayDefaultsOnZeroBase(t *testing.T) {
	if got := backoffDelay(0, 0, 0); got != time.Second {
		t.Fatalf("expected 1s default, got %v", got)
	}
}

func TestIsPermanentClassification(t *testing.T) {
	if !IsPermanent(Permanent(errors.New("bad payload"))) {
		t.Fatalf("Permanent must classify as permanent")
	}
	if IsPermanent(Transient(errors.New("timeout"))) {
		t.Fatalf("Transient must not classify as permanent")
	}
	if IsPermanent(errors.New("plain")) {
		t.Fatalf("unclassified must not classify as permanent")
	}
	if IsPermanent(nil) {
		t.Fatalf("nil must not classify as permanent")
	}
}

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	q := &RedisQueue{}

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, q.nextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestReplayMessageResetsAttempts(t *testing.T) {
	entry := &DeadLetterEntry{
		JobID:     "42",
		Kind:      "option_chain",
		Payload:   []byte(`{"product":"NIFTY"}`),
		LastError: "connection refused",
	}

	msg := replayMessage(entry, "43")
	if msg.Attempts != 0 {
		t.Fatalf("replayed message must start at attempt 0, got %d", msg.Attempts)
	}
	if msg.Kind != entry.Kind || string(msg.Payload) != string(entry.Payload) {
		t.Fatalf("replayed message must carry the original kind and payload")
	}
	if msg.ID != "43" {
		t.Fatalf("replayed message must get a fresh id, got %q", msg.ID)
	}
}

func TestParsePayloadRawMessage(t *testing.T) {
	type payload struct {
		Product string `json:"product"`
	}

	got, err := ParsePayload[payload]([]byte(`{"product":"NIFTY","extra":"ignored"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Product != "NIFTY" {
		t.Fatalf("unexpected product %q", got.Product)
	}
}
