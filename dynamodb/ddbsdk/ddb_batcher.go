package ddbsdk

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// maxBatchWrite is the BatchWriteItem limit on requests per call.
const maxBatchWrite = 25

// Batcher writes unconditional puts and deletes with BatchWriteItem.
type Batcher interface {
	AddAction(actions ...BatchAction) error
	Exec(ctx context.Context) (ExecResult, error)
	ExecAndRetry(ctx context.Context) error
}

func NewBatcher(ddb AWSDynamoClientV2, opts ...BatchOption) *batcher {
	b := &batcher{
		awsddb:  ddb,
		log:     zerolog.Nop(),
		pending: make(map[string][]types.WriteRequest),
		keys:    make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	if b.opts.backoff == nil {
		b.opts.backoff = DefaultBackoff
	}
	return b
}

// NewBatch creates a batcher sending through c.
//
// Options: [WithMaxRetries], [WithTimeout], [WithCustomBackoff],
// [WithExponentialBackoff]
func (c *Client) NewBatch(opts ...BatchOption) Batcher {
	b := NewBatcher(c.awsddb, opts...)
	b.log = c.log
	return b
}

type batcher struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger
	opts   batchOpts

	pending map[string][]types.WriteRequest
	// keys holds the primary keys added per table. An item can be written
	// only once per batch.
	keys    map[string]map[string]bool
	retries int
}

var _ Batcher = &batcher{}

// AddAction stages puts and deletes. It fails on conditional actions and on
// a second action for the same item.
func (b *batcher) AddAction(actions ...BatchAction) error {
	for _, a := range actions {
		tableName := *a.TableName()
		key, err := a.PrimaryKey()
		if err != nil {
			return err
		}
		req, err := a.ToBatchWriteRequest()
		if err != nil {
			return err
		}
		if b.keys[tableName][key.String()] {
			return fmt.Errorf("duplicate action for %s in table %q", key, tableName)
		}
		if b.keys[tableName] == nil {
			b.keys[tableName] = make(map[string]bool)
		}
		b.keys[tableName][key.String()] = true
		b.pending[tableName] = append(b.pending[tableName], req)
	}
	return nil
}

// Exec sends every pending request once, in calls of at most 25. Items
// DynamoDB leaves unprocessed stay pending for the next Exec.
func (b *batcher) Exec(ctx context.Context) (ExecResult, error) {
	if len(b.pending) == 0 {
		return ExecResult{Retries: b.retries}, nil
	}

	unprocessed := make(map[string][]types.WriteRequest)
	chunks := chunkRequests(b.pending, maxBatchWrite)
	for i, chunk := range chunks {
		b.log.Debug().Int("requests", countRequests(chunk)).Int("retries", b.retries).Msg("batch write")
		res, err := b.awsddb.BatchWriteItem(ctx, &dynamodbv2.BatchWriteItemInput{
			RequestItems: chunk,
		})
		if err != nil {
			for _, rest := range chunks[i:] {
				appendRequests(unprocessed, rest)
			}
			b.pending = unprocessed
			return ExecResult{Unprocessed: b.pending, Retries: b.retries}, fmt.Errorf("batch write failed: %w", err)
		}
		appendRequests(unprocessed, res.UnprocessedItems)
	}

	b.pending = unprocessed
	b.retries++
	return ExecResult{Unprocessed: b.pending, Retries: b.retries}, nil
}

// ExecAndRetry writes all pending items, retrying until complete or limits exceeded.
// At least one of [WithMaxRetries] or [WithTimeout] must be configured.
// Uses exponential backoff by default (50ms, 100ms, 200ms, ...), override with [WithCustomBackoff].
//
// Example:
//
//	batch := client.NewBatch(ddbsdk.WithMaxRetries(5))
//	batch.AddAction(putProduct, deleteOldProduct)
//	if err := batch.ExecAndRetry(ctx); err != nil {
//	    return err
//	}
func (b *batcher) ExecAndRetry(ctx context.Context) error {
	if b.opts.maxRetries == 0 && b.opts.timeout == 0 {
		return fmt.Errorf("ExecAndRetry requires WithMaxRetries or WithTimeout to be configured")
	}
	if b.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.timeout)
		defer cancel()
	}
	for {
		res, err := b.Exec(ctx)
		if err != nil {
			return err
		}
		if res.Done() {
			return nil
		}
		if b.opts.maxRetries > 0 && res.Retries >= b.opts.maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %d items unprocessed", b.opts.maxRetries, countRequests(b.pending))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.backoff(res.Retries)):
		}
	}
}

// chunkRequests splits requests into maps holding at most size requests,
// walking tables in name order.
func chunkRequests(m map[string][]types.WriteRequest, size int) []map[string][]types.WriteRequest {
	var chunks []map[string][]types.WriteRequest
	cur, n := make(map[string][]types.WriteRequest), 0
	for _, tableName := range slices.Sorted(maps.Keys(m)) {
		for _, req := range m[tableName] {
			if n == size {
				chunks = append(chunks, cur)
				cur, n = make(map[string][]types.WriteRequest), 0
			}
			cur[tableName] = append(cur[tableName], req)
			n++
		}
	}
	if n > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func appendRequests(dst, src map[string][]types.WriteRequest) {
	for tableName, reqs := range src {
		dst[tableName] = append(dst[tableName], reqs...)
	}
}

func countRequests(m map[string][]types.WriteRequest) int {
	var n int
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}

// ExecResult contains the result of a Write operation.
type ExecResult struct {
	Unprocessed map[string][]types.WriteRequest
	Retries     int
}

// Done returns true if all items were successfully processed.
func (r ExecResult) Done() bool {
	return len(r.Unprocessed) == 0
}

// Err returns nil if Done(), otherwise returns an error.
func (r ExecResult) Err() error {
	if r.Done() {
		return nil
	}
	return fmt.Errorf("batch incomplete: %d items unprocessed after %d retries", countRequests(r.Unprocessed), r.Retries)
}

type BatchOption func(*batchOpts)

// BackoffFunc returns the duration to wait before retry attempt n.
type BackoffFunc func(attempt int) time.Duration

// WithMaxRetries sets the maximum number of retry attempts for [ExecAndRetry].
func WithMaxRetries(n int) BatchOption {
	return func(o *batchOpts) {
		o.maxRetries = n
	}
}

// WithTimeout sets a timeout for [ExecAndRetry].
func WithTimeout(d time.Duration) BatchOption {
	return func(o *batchOpts) {
		o.timeout = d
	}
}

// WithCustomBackoff sets the wait between attempts of [ExecAndRetry].
func WithCustomBackoff(fn BackoffFunc) BatchOption {
	return func(o *batchOpts) {
		o.backoff = fn
	}
}

// WithExponentialBackoff sets exponential backoff for [ExecAndRetry].
// See [ExponentialBackoff] for details.
func WithExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BatchOption {
	return WithCustomBackoff(ExponentialBackoff(base, multiplier, cap))
}

// ExponentialBackoff returns a capped exponential backoff with full jitter.
// Wait time is: rand(0, min(cap, base * multiplier^attempt))
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func ExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		factor := 1.0
		for i := 0; i < attempt; i++ {
			factor *= multiplier
		}
		backoff := time.Duration(float64(base) * factor)
		if backoff > cap {
			backoff = cap
		}
		if backoff <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(backoff)))
	}
}

// DefaultBackoff is [ExponentialBackoff] with 50ms base, 2x multiplier, 5s cap.
var DefaultBackoff = ExponentialBackoff(50*time.Millisecond, 2.0, 5*time.Second)

type batchOpts struct {
	maxRetries int
	timeout    time.Duration
	backoff    BackoffFunc
}
