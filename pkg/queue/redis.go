package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"DeltaStream/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// ErrQueueFull is returned by Enqueue when the pending list hit the
// configured depth cap. Callers should treat it as transient backpressure.
var ErrQueueFull = errors.New("queue: pending list full")

// RedisQueue is the Redis-backed task executor: a bounded worker pool
// pulling jobs from a list, with a delayed-retry set and a dead-letter
// list. Each worker processes one job at a time before accepting the
// next, so a slow job cannot starve the rest.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	guard     IdempotencyGuard
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	stopCh    chan struct{}
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	seq       uint64
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithIdempotencyGuard sets the seen-key store consulted before and
// after each job. Without a guard redeliveries are processed again.
func WithIdempotencyGuard(g IdempotencyGuard) RedisQueueOption {
	return func(r *RedisQueue) {
		r.guard = g
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 5 * time.Second
	}
	if config.RetryCap <= 0 {
		config.RetryCap = 2 * time.Minute
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		stopCh:    make(chan struct{}),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "deltastream:queue",
	}

	for _, opt := range opts {
		opt(rq)
	}

	initQueueMetricsOnce()
	return rq
}

// NewRedisPublisher creates a publisher-only queue.
func NewRedisPublisher(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, config, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// NewRedisConsumer creates a consumer-only queue.
func NewRedisConsumer(lgr *logger.Logger, config *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, config, client, ModeConsumerOnly, opts...)
	if len(jobs) > 0 {
		q.RegisterJobs(jobs)
	}
	return q
}

// RegisterJobs registers multiple jobs.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob registers a single job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Kind()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Kind()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("kind", job.Kind()))
}

// Start starts the queue server.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.isRunning = false
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.startRetryMover()
		r.logger.Info("redis queue started",
			logger.Int("workers", r.config.Workers),
			logger.String("addr", r.client.Options().Addr))
	} else {
		r.logger.Info("redis queue publisher started",
			logger.String("addr", r.client.Options().Addr))
	}

	return nil
}

// Stop gracefully stops the queue.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping redis queue...")
	r.cancel()

	if r.mode != ModeProducerOnly {
		close(r.stopCh)
	}
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a fresh job to the queue. When the pending list exceeds
// MaxDepth the call fails with ErrQueueFull instead of buffering without
// bound; dispatchers surface that as a transient error so the bus layer
// backs off and redelivers.
func (r *RedisQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning {
		return fmt.Errorf("queue not running")
	}

	if r.mode != ModeProducerOnly {
		if _, exists := r.jobs[kind]; !exists {
			return fmt.Errorf("no job registered for kind: %s", kind)
		}
	}

	if r.config.MaxDepth > 0 {
		depth, err := r.client.LLen(ctx, r.getQueueKey()).Result()
		if err != nil {
			return Transient(fmt.Errorf("llen: %w", err))
		}
		if depth >= int64(r.config.MaxDepth) {
			return Transient(ErrQueueFull)
		}
	}

	raw, err := toRawPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:              r.nextID(),
		Kind:            kind,
		Payload:         raw,
		Attempts:        0,
		FirstEnqueuedAt: time.Now().UTC(),
	}

	return r.push(ctx, &msg)
}

func (r *RedisQueue) push(ctx context.Context, msg *Message) error {
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.getQueueKey(), msgData).Err(); err != nil {
		return Transient(fmt.Errorf("lpush: %w", err))
	}
	if queueDepth != nil {
		if n, err := r.client.LLen(ctx, r.getQueueKey()).Result(); err == nil {
			queueDepth.Set(float64(n))
		}
	}
	return nil
}

// nextID mints a unique job id. Enqueue runs under a read lock and
// workers fan out jobs concurrently, so the counter must be atomic.
func (r *RedisQueue) nextID() string {
	seq := atomic.AddUint64(&r.seq, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

func toRawPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Info("queue worker started", logger.Int("worker_id", id))

	queueKey := r.getQueueKey()

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("queue worker stopping", logger.Int("worker_id", id))
			return
		case <-r.ctx.Done():
			r.logger.Info("queue worker cancelled", logger.Int("worker_id", id))
			return
		default:
			r.processNextMessage(queueKey)
		}
	}
}

func (r *RedisQueue) processNextMessage(queueKey string) {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, 1*time.Second, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		time.Sleep(1 * time.Second)
		return
	}

	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}

	r.processMessage(&msg)
}

// processMessage runs one attempt of one job. The message already left
// the pending list; completion, a retry-set ZADD, or a DLQ append is the
// acknowledgement. A panic in a handler counts as a permanent failure.
func (r *RedisQueue) processMessage(msg *Message) {
	job, exists := r.jobs[msg.Kind]
	if !exists {
		r.logger.Error("no job found",
			logger.String("kind", msg.Kind),
			logger.String("id", msg.ID))
		r.moveToDeadLetter(msg, fmt.Errorf("no job registered for kind %s", msg.Kind))
		return
	}

	start := time.Now()
	err := r.runAttempt(msg, job)
	elapsed := time.Since(start)
	if handleLatency != nil {
		handleLatency.WithLabelValues(msg.Kind).Observe(elapsed.Seconds())
	}

	if err != nil && errors.Is(err, context.Canceled) {
		// Shutdown mid-job: leave redelivery to the retry path.
		r.scheduleRetry(msg, time.Now().Add(r.config.RetryBase))
		return
	}

	switch decide(msg.Attempts, err, r.config) {
	case dispComplete:
		r.observeResult(msg.Kind, "completed")
	case dispRetry:
		msg.Attempts++
		delay := backoffDelay(r.config.RetryBase, r.config.RetryCap, msg.Attempts-1)
		retryAt := time.Now().Add(delay)
		r.scheduleRetry(msg, retryAt)
		r.observeResult(msg.Kind, "retried")
		r.logger.Warn("job retry scheduled",
			logger.String("id", msg.ID),
			logger.String("kind", msg.Kind),
			logger.Int("attempt", msg.Attempts),
			logger.Duration("delay", delay),
			logger.Error(err))
	case dispDeadLetter:
		r.moveToDeadLetter(msg, err)
		r.observeResult(msg.Kind, "deadlettered")
		r.logger.Error("job dead-lettered",
			logger.String("id", msg.ID),
			logger.String("kind", msg.Kind),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
	}
}

// runAttempt executes the per-job contract: guard check, handle under a
// deadline, mark seen, publish. Duplicate deliveries are a success no-op.
func (r *RedisQueue) runAttempt(msg *Message, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = Permanent(fmt.Errorf("panic in job %s: %v", job.Name(), rec))
		}
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	key := job.IdempotencyKey(msg.Payload)
	if key != "" && r.guard != nil {
		seen, gerr := r.guard.SeenBefore(ctx, key)
		if gerr != nil {
			// Guard unavailable: never skip the check, fail transient.
			return Transient(fmt.Errorf("idempotency check: %w", gerr))
		}
		if seen {
			r.observeDuplicate(msg.Kind)
			r.logger.Debug("duplicate delivery discarded",
				logger.String("id", msg.ID),
				logger.String("kind", msg.Kind),
				logger.String("key", key))
			return nil
		}
	}

	if err := job.Handle(ctx, msg.Payload); err != nil {
		return err
	}

	if key != "" && r.guard != nil {
		first, gerr := r.guard.MarkSeen(ctx, key, r.config.IdempotencyTTL)
		if gerr != nil {
			return Transient(fmt.Errorf("idempotency mark: %w", gerr))
		}
		if !first {
			// A racing worker finished the same logical event between
			// our check and our mark; its publish stands.
			r.observeDuplicate(msg.Kind)
			return nil
		}
	}

	if perr := job.Publish(ctx, msg.Payload); perr != nil {
		// Durable work is complete and the key is marked; a redelivery
		// would short-circuit, so publication is best-effort from here.
		r.observeResult(msg.Kind, "publish_failed")
		r.logger.Error("publish after mark failed",
			logger.String("id", msg.ID),
			logger.String("kind", msg.Kind),
			logger.Error(perr))
	}
	return nil
}

func (r *RedisQueue) scheduleRetry(msg *Message, retryAt time.Time) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}

	err = r.client.ZAdd(context.Background(), r.getRetryKey(), redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: msgData,
	}).Err()

	if err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetter(msg *Message, cause error) {
	entry := DeadLetterEntry{
		JobID:    msg.ID,
		Kind:     msg.Kind,
		Payload:  msg.Payload,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("marshal dlq entry", logger.Error(err))
		return
	}

	if err := r.client.LPush(context.Background(), r.getDeadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
		return
	}
	if dlqDepth != nil {
		if n, err := r.client.LLen(context.Background(), r.getDeadLetterKey()).Result(); err == nil {
			dlqDepth.Set(float64(n))
		}
	}
}

// DeadLetterCount returns the number of dead-letter entries.
func (r *RedisQueue) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.getDeadLetterKey()).Result()
}

// DeadLetterEntries fetches entries in [start, stop] (newest first,
// LRANGE semantics).
func (r *RedisQueue) DeadLetterEntries(ctx context.Context, start, stop int64) ([]DeadLetterEntry, error) {
	raw, err := r.client.LRange(ctx, r.getDeadLetterKey(), start, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]DeadLetterEntry, 0, len(raw))
	for _, item := range raw {
		var e DeadLetterEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.logger.Warn("skip malformed dlq entry", logger.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReplayDeadLetters pops up to limit entries off the dead-letter list
// and re-enqueues each as a fresh job with a zero attempt count. The
// replayed job passes through the idempotency guard like any other.
// Returns the number of jobs re-enqueued.
func (r *RedisQueue) ReplayDeadLetters(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}

	replayed := 0
	for replayed < limit {
		item, err := r.client.RPop(ctx, r.getDeadLetterKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return replayed, err
		}

		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.Warn("drop malformed dlq entry on replay", logger.Error(err))
			continue
		}

		msg := replayMessage(&entry, r.nextID())
		if err := r.push(ctx, msg); err != nil {
			// Put the entry back so nothing is lost.
			if rerr := r.client.RPush(ctx, r.getDeadLetterKey(), item).Err(); rerr != nil {
				r.logger.Error("dlq restore after failed replay", logger.Error(rerr))
			}
			return replayed, err
		}
		replayed++
		r.logger.Info("dead-letter replayed",
			logger.String("job_id", entry.JobID),
			logger.String("kind", entry.Kind))
	}

	if dlqDepth != nil {
		if n, err := r.client.LLen(ctx, r.getDeadLetterKey()).Result(); err == nil {
			dlqDepth.Set(float64(n))
		}
	}
	return replayed, nil
}

// replayMessage rebuilds a fresh message from a dead-letter entry.
// Attempts restart at zero so the replay gets the full retry cycle.
func replayMessage(entry *DeadLetterEntry, id string) *Message {
	return &Message{
		ID:              id,
		Kind:            entry.Kind,
		Payload:         entry.Payload,
		Attempts:        0,
		FirstEnqueuedAt: time.Now().UTC(),
	}
}

// startRetryMover starts the goroutine promoting due retries.
func (r *RedisQueue) startRetryMover() {
	if r.mode == ModeProducerOnly {
		return
	}

	r.wg.Add(1)
	go r.retryMover()
}

func (r *RedisQueue) retryMover() {
	defer r.wg.Done()
	r.logger.Info("retry mover started")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("retry mover stopping")
			return
		case <-r.ctx.Done():
			r.logger.Info("retry mover cancelled")
			return
		case <-ticker.C:
			r.promoteDueRetries()
		}
	}
}

func (r *RedisQueue) promoteDueRetries() {
	now := float64(time.Now().Unix())

	result, err := r.client.ZRangeByScore(r.ctx, r.getRetryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatFloat(now, 'f', 0, 64),
	}).Result()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("fetch retry messages", logger.Error(err))
		return
	}

	for _, msgData := range result {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.getRetryKey(), msgData)
		pipe.LPush(r.ctx, r.getQueueKey(), msgData)

		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) observeResult(kind, result string) {
	if jobsProcessed != nil {
		jobsProcessed.WithLabelValues(kind, result).Inc()
	}
}

func (r *RedisQueue) observeDuplicate(kind string) {
	r.observeResult(kind, "duplicate")
}

func (r *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) getRetryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) getDeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

var _ QueueService = (*RedisQueue)(nil)
