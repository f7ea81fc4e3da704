package queryclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueryResult is the {data, loading, error} snapshot handed to presentation
// code.
type QueryResult struct {
	Data    json.RawMessage
	Loading bool
	Err     error
}

// QueryRef is the handle presentation code holds onto: it owns a descriptor
// and its options, exposes the latest snapshot, and can refetch on demand.
type QueryRef struct {
	mu     sync.Mutex
	client *Client
	desc   Descriptor
	opts   Options
	cur    QueryResult
}

// Query creates a handle for d. Nothing is fetched until Fetch or Refetch is
// called; the initial snapshot reports Loading.
func (c *Client) Query(d Descriptor, opts Options) *QueryRef {
	return &QueryRef{
		client: c,
		desc:   d,
		opts:   opts,
		cur:    QueryResult{Loading: true},
	}
}

// Fetch runs the query under its configured fetch policy and updates the
// snapshot.
func (r *QueryRef) Fetch(ctx context.Context) QueryResult {
	return r.execute(ctx, r.opts)
}

// Refetch bypasses the cache, refreshes the stored entry, and updates the
// snapshot.
func (r *QueryRef) Refetch(ctx context.Context) QueryResult {
	opts := r.opts
	opts.FetchPolicy = NetworkOnly
	return r.execute(ctx, opts)
}

// Result returns the latest snapshot.
func (r *QueryRef) Result() QueryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

func (r *QueryRef) execute(ctx context.Context, opts Options) QueryResult {
	r.mu.Lock()
	r.cur.Loading = true
	r.mu.Unlock()

	res := r.client.Execute(ctx, r.desc, opts)

	r.mu.Lock()
	r.cur = QueryResult{Data: res.Data, Err: res.Err}
	out := r.cur
	r.mu.Unlock()
	return out
}

// Mutate executes a mutation-style descriptor: the result is never cached,
// and on success the tags listed in opts.Invalidates are flushed so dependent
// queries refetch fresh data.
func (c *Client) Mutate(ctx context.Context, d Descriptor, opts Options) Result {
	opts.FetchPolicy = NoCache
	res := c.Execute(ctx, d, opts)
	if res.Err == nil {
		for _, tag := range opts.Invalidates {
			n := c.store.InvalidateByTag(tag)
			c.logger.Debug("invalidated tag after mutation",
				zap.String("tag", tag),
				zap.Int("entries", n))
		}
	}
	return res
}

// Watch executes d immediately and then on every PollInterval tick, sending
// each result on the returned channel until ctx is done. The channel is
// closed on return.
func (c *Client) Watch(ctx context.Context, d Descriptor, opts Options) <-chan Result {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		deliver := func() bool {
			res := c.Execute(ctx, d, opts)
			select {
			case out <- res:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !deliver() {
					return
				}
			}
		}
	}()
	return out
}
