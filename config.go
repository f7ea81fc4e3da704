package queryclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kwlytics/queryclient/cache"
)

// FetchPolicy governs whether the cache is consulted before the network and
// whether a successful result is persisted.
type FetchPolicy int

const (
	// FetchPolicyUnset inherits the client default.
	FetchPolicyUnset FetchPolicy = iota
	// CacheFirst returns a cache hit immediately and only goes to the network
	// on a miss.
	CacheFirst
	// CacheAndNetwork returns a cache hit immediately and refreshes the entry
	// in the background; on a miss it behaves like CacheFirst.
	CacheAndNetwork
	// NetworkOnly skips the cache on read but persists the result.
	NetworkOnly
	// NoCache neither reads nor writes the cache.
	NoCache
)

func (p FetchPolicy) String() string {
	switch p {
	case CacheFirst:
		return "cache-first"
	case CacheAndNetwork:
		return "cache-and-network"
	case NetworkOnly:
		return "network-only"
	case NoCache:
		return "no-cache"
	default:
		return "unset"
	}
}

// ParseFetchPolicy maps the wire/config spelling to a FetchPolicy.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch s {
	case "cache-first":
		return CacheFirst, nil
	case "cache-and-network":
		return CacheAndNetwork, nil
	case "network-only":
		return NetworkOnly, nil
	case "no-cache":
		return NoCache, nil
	default:
		return FetchPolicyUnset, fmt.Errorf("unknown fetch policy %q", s)
	}
}

// ErrorPolicy decides how protocol errors inside a well-formed response are
// surfaced.
type ErrorPolicy int

const (
	// ErrorPolicyUnset inherits the client default.
	ErrorPolicyUnset ErrorPolicy = iota
	// ErrorPolicyNone surfaces the first protocol error and drops the data.
	ErrorPolicyNone
	// ErrorPolicyIgnore silently returns whatever data came back.
	ErrorPolicyIgnore
	// ErrorPolicyAll returns both data and errors for the caller to inspect.
	ErrorPolicyAll
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorPolicyNone:
		return "none"
	case ErrorPolicyIgnore:
		return "ignore"
	case ErrorPolicyAll:
		return "all"
	default:
		return "unset"
	}
}

// ParseErrorPolicy maps the wire/config spelling to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "none":
		return ErrorPolicyNone, nil
	case "ignore":
		return ErrorPolicyIgnore, nil
	case "all":
		return ErrorPolicyAll, nil
	default:
		return ErrorPolicyUnset, fmt.Errorf("unknown error policy %q", s)
	}
}

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
	DefaultDelayCap       = 30 * time.Second
	DefaultPollInterval   = 30 * time.Second
)

// Config holds the client settings.
type Config struct {
	// Endpoint is the single request/response endpoint queries are POSTed to.
	// Required unless a custom Transport is supplied.
	Endpoint string
	// Credentials supplies the bearer token attached to every request.
	Credentials CredentialProvider
	// Transport overrides the HTTP transport, mainly for tests.
	Transport Transport
	// HTTPClient is used by the default transport. Per-attempt deadlines come
	// from RequestTimeout, so the client itself needs no global timeout.
	HTTPClient *http.Client

	// Store is the shared cache. When nil, New creates one from
	// cache.DefaultConfig and Close tears it down.
	Store *cache.Cache[json.RawMessage]

	// FetchPolicy is the default for calls that leave Options.FetchPolicy
	// unset. Defaults to CacheFirst.
	FetchPolicy FetchPolicy
	// ErrorPolicy is the default for calls that leave Options.ErrorPolicy
	// unset. Defaults to ErrorPolicyNone.
	ErrorPolicy ErrorPolicy

	// RequestTimeout bounds each individual network attempt.
	RequestTimeout time.Duration
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// BaseDelay is the first backoff delay; each further delay doubles.
	BaseDelay time.Duration
	// DelayCap bounds the exponential backoff.
	DelayCap time.Duration
	// Jitter randomizes backoff delays to avoid synchronized retry storms
	// across many clients. Off by default so the delay sequence stays exact.
	Jitter bool

	Logger *zap.Logger
}

// Options tune a single call. Zero values inherit the client configuration.
type Options struct {
	FetchPolicy FetchPolicy
	ErrorPolicy ErrorPolicy
	// TTL overrides the store's default freshness for the written entry.
	TTL time.Duration
	// Tags attach to the written entry so it can be flushed by tag later.
	Tags []string
	// PollInterval drives Watch. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// Invalidates lists the tags Mutate flushes after a successful call.
	Invalidates []string
	// Timeout overrides Config.RequestTimeout for this call's attempts.
	Timeout time.Duration
	// MaxRetries overrides Config.MaxRetries when positive; -1 disables
	// retries entirely.
	MaxRetries int
}
