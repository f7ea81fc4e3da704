// Package queryclient is the data-access layer behind the keyword research
// dashboards: a bounded, tag-aware cache with pluggable eviction plus a
// request-execution client that deduplicates concurrent identical queries and
// retries failed network calls with exponential backoff.
package queryclient

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/kwlytics/queryclient/cache"
)

// Result is what Execute hands back to presentation code.
type Result struct {
	Data json.RawMessage
	// Errors carries protocol errors when the ErrorPolicy exposes them.
	Errors []ResponseError
	// Err is the terminal failure: cancellation, exhausted retries, or the
	// first protocol error under ErrorPolicyNone.
	Err error
	// FromCache reports whether Data was served from the store.
	FromCache bool
}

// Client orchestrates the cache store, the in-flight registry and the
// retry/backoff controller behind a single Execute entry point.
type Client struct {
	cfg       Config
	store     *cache.Cache[json.RawMessage]
	ownStore  bool
	transport Transport
	flights   *inflight
	logger    *zap.Logger
}

// New validates cfg, fills in defaults and returns a ready Client.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil && cfg.Endpoint == "" {
		return nil, errors.New("queryclient: either Endpoint or Transport is required")
	}
	if cfg.FetchPolicy == FetchPolicyUnset {
		cfg.FetchPolicy = CacheFirst
	}
	if cfg.ErrorPolicy == ErrorPolicyUnset {
		cfg.ErrorPolicy = ErrorPolicyNone
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.DelayCap <= 0 {
		cfg.DelayCap = DefaultDelayCap
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &HTTPTransport{
			Endpoint:    cfg.Endpoint,
			Client:      cfg.HTTPClient,
			Credentials: cfg.Credentials,
		}
	}
	store := cfg.Store
	ownStore := false
	if store == nil {
		storeCfg := cache.DefaultConfig()
		storeCfg.Logger = cfg.Logger
		store = cache.New[json.RawMessage](storeCfg)
		ownStore = true
	}

	return &Client{
		cfg:       cfg,
		store:     store,
		ownStore:  ownStore,
		transport: transport,
		flights:   newInflight(),
		logger:    cfg.Logger,
	}, nil
}

// Store exposes the underlying cache for inspection and tag invalidation.
func (c *Client) Store() *cache.Cache[json.RawMessage] { return c.store }

// InFlight returns the signatures with an outstanding shared operation.
func (c *Client) InFlight() []string { return c.flights.Active() }

// Close stops the background sweep when the client owns its store.
func (c *Client) Close() error {
	if c.ownStore {
		return c.store.Close()
	}
	return nil
}

// Execute runs one request end to end: signature, cache consultation per the
// fetch policy, deduplication via the in-flight registry, transport with
// retry/backoff, cache write-back, error policy.
//
// For any N concurrent callers whose descriptors canonicalize to the same
// signature while no cache entry exists, at most one transport call is made
// and every caller observes the same outcome.
func (c *Client) Execute(ctx context.Context, d Descriptor, opts Options) Result {
	sig := Signature(d)
	opts = c.withDefaults(opts)

	if opts.FetchPolicy == CacheFirst || opts.FetchPolicy == CacheAndNetwork {
		if data, ok := c.lookup(sig); ok {
			if opts.FetchPolicy == CacheAndNetwork {
				c.refreshAsync(d, sig, opts)
			}
			return Result{Data: data, FromCache: true}
		}
	}

	resp, err := c.fetch(ctx, sig, d, opts)
	if err != nil {
		return Result{Err: err}
	}
	return c.settle(sig, resp, opts)
}

func (c *Client) withDefaults(opts Options) Options {
	if opts.FetchPolicy == FetchPolicyUnset {
		opts.FetchPolicy = c.cfg.FetchPolicy
	}
	if opts.ErrorPolicy == ErrorPolicyUnset {
		opts.ErrorPolicy = c.cfg.ErrorPolicy
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.RequestTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = c.cfg.MaxRetries
	}
	return opts
}

// lookup treats a corrupt stored value as a miss: the entry is dropped and
// the caller falls through to a fresh fetch instead of hard-failing.
func (c *Client) lookup(sig string) (json.RawMessage, bool) {
	data, ok := c.store.Get(sig)
	if !ok {
		return nil, false
	}
	if len(data) == 0 || !json.Valid(data) {
		c.logger.Warn("dropping corrupt cache entry", zap.String("signature", sig))
		c.store.Remove(sig)
		return nil, false
	}
	return data, true
}

// fetch goes to the network through the in-flight registry, so concurrent
// identical requests share one retried transport call.
func (c *Client) fetch(ctx context.Context, sig string, d Descriptor, opts Options) (*Response, error) {
	r := &retrier{
		maxRetries: opts.MaxRetries,
		baseDelay:  c.cfg.BaseDelay,
		delayCap:   c.cfg.DelayCap,
		jitter:     c.cfg.Jitter,
		timeout:    opts.Timeout,
		logger:     c.logger,
	}
	resp, _, err := c.flights.do(ctx, sig, func(runCtx context.Context) (*Response, error) {
		return r.run(runCtx, func(attemptCtx context.Context) (*Response, error) {
			return c.transport.Do(attemptCtx, d)
		})
	})
	return resp, err
}

// settle applies the error policy and persists clean results.
func (c *Client) settle(sig string, resp *Response, opts Options) Result {
	if len(resp.Errors) > 0 {
		switch opts.ErrorPolicy {
		case ErrorPolicyIgnore:
			return Result{Data: resp.Data}
		case ErrorPolicyAll:
			return Result{Data: resp.Data, Errors: resp.Errors}
		default:
			first := resp.Errors[0]
			return Result{Err: &first}
		}
	}
	if opts.FetchPolicy != NoCache {
		c.persist(sig, resp.Data, opts)
	}
	return Result{Data: resp.Data}
}

func (c *Client) persist(sig string, data json.RawMessage, opts Options) {
	setOpts := make([]cache.SetOption, 0, 2)
	if len(opts.Tags) > 0 {
		setOpts = append(setOpts, cache.WithTags(opts.Tags...))
	}
	if opts.TTL > 0 {
		setOpts = append(setOpts, cache.WithTTL(opts.TTL))
	}
	c.store.Set(sig, data, setOpts...)
}

// refreshAsync re-fetches sig in the background after a CacheAndNetwork hit.
// The caller already has its data; a refresh failure is logged and the cached
// value stays untouched.
func (c *Client) refreshAsync(d Descriptor, sig string, opts Options) {
	go func() {
		resp, err := c.fetch(context.Background(), sig, d, opts)
		if err != nil {
			if IsCancellation(err) {
				return
			}
			c.logger.Warn("background refresh failed",
				zap.String("operation", d.Operation),
				zap.String("signature", sig),
				zap.Error(err))
			return
		}
		if len(resp.Errors) > 0 {
			c.logger.Warn("background refresh returned errors",
				zap.String("operation", d.Operation),
				zap.String("signature", sig),
				zap.String("message", resp.Errors[0].Message))
			return
		}
		c.persist(sig, resp.Data, opts)
	}()
}
