package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job defines a queue job handler for one message kind.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Kind returns the message kind that the job handles.
	Kind() string

	// IdempotencyKey derives the duplicate-suppression key for a
	// payload. An empty key disables the guard for this message
	// (recompute-style jobs are naturally last-write-wins).
	IdempotencyKey(payload json.RawMessage) string

	// Handle runs enrichment and all durable/cache writes for the
	// payload. It must classify failures via Permanent/Transient and
	// never retry internally.
	Handle(ctx context.Context, payload json.RawMessage) error

	// Publish republishes the enriched result downstream. Called only
	// after Handle succeeded and the idempotency key was marked.
	Publish(ctx context.Context, payload json.RawMessage) error
}

// IdempotencyGuard is the atomic seen-key store consulted by workers.
// MarkSeen must be set-if-not-exists with expiry: of two racing callers
// exactly one gets true.
type IdempotencyGuard interface {
	SeenBefore(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
