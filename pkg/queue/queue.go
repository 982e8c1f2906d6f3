package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the enqueue-side contract used by dispatchers.
type QueueService interface {
	Enqueue(ctx context.Context, kind string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers        int           // number of workers
	MaxDepth       int           // backpressure cap on the pending list, 0 = unbounded
	RetryLimit     int           // number of maximum retries
	RetryBase      time.Duration // first retry delay; doubles per attempt
	RetryCap       time.Duration // upper bound on a single retry delay
	JobTimeout     time.Duration // per-job deadline
	IdempotencyTTL time.Duration // expiry of seen-keys marked by workers
}

// Message represents a job travelling through the queue.
type Message struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Payload         json.RawMessage `json:"payload"`
	Attempts        int             `json:"attempts"`
	FirstEnqueuedAt time.Time       `json:"first_enqueued_at"`
}

// DeadLetterEntry is an append-only record of a job that permanently
// failed. Consumed only by inspection and replay.
type DeadLetterEntry struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind"`
	LastError string          `json:"last_error"`
	Payload   json.RawMessage `json:"payload"`
	FailedAt  time.Time       `json:"failed_at"`
}

// disposition is the executor's verdict on one attempt.
type disposition int

const (
	dispComplete disposition = iota
	dispRetry
	dispDeadLetter
)

// decide maps an attempt outcome to the next step. Only the executor
// holds this logic: validation errors dead-letter immediately, transient
// errors retry until the limit, then dead-letter.
func decide(attempts int, err error, cfg *QueueConfig) disposition {
	if err == nil {
		return dispComplete
	}
	if IsPermanent(err) {
		return dispDeadLetter
	}
	if attempts >= cfg.RetryLimit {
		return dispDeadLetter
	}
	return dispRetry
}

// backoffDelay grows geometrically with the attempt count, capped.
func backoffDelay(base, cap time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if cap > 0 && d >= cap {
			return cap
		}
	}
	if cap > 0 && d > cap {
		d = cap
	}
	return d
}

// ParsePayload decodes a message payload into a typed struct.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		jsonData, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(jsonData, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	}
}
