package queryclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kwlytics/queryclient/cache"
)

// stubTransport counts calls and delegates to fn, optionally stalling first.
type stubTransport struct {
	calls atomic.Int32
	delay time.Duration
	fn    func(ctx context.Context, d Descriptor) (*Response, error)
}

func (s *stubTransport) Do(ctx context.Context, d Descriptor) (*Response, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &TransportError{Err: ctx.Err()}
		}
	}
	return s.fn(ctx, d)
}

func respondWith(data string) func(context.Context, Descriptor) (*Response, error) {
	return func(context.Context, Descriptor) (*Response, error) {
		return &Response{Data: json.RawMessage(data)}, nil
	}
}

func newTestClient(t *testing.T, tr Transport) *Client {
	t.Helper()
	store := cache.New[json.RawMessage](cache.Config{MaxSize: 100})
	t.Cleanup(func() { _ = store.Close() })

	c, err := New(Config{
		Transport: tr,
		Store:     store,
		BaseDelay: time.Millisecond,
		DelayCap:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

var suggestDesc = Descriptor{
	Operation: "keywordSuggestions",
	Params:    map[string]any{"seed": "crm", "country": "us"},
}

func TestDedupConcurrentCallers(t *testing.T) {
	tr := &stubTransport{delay: 50 * time.Millisecond, fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res := c.Execute(context.Background(), suggestDesc, Options{})
			if res.Err != nil {
				return res.Err
			}
			if string(res.Data) != `{"v":1}` {
				return fmt.Errorf("unexpected data %s", res.Data)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, tr.calls.Load(),
		"concurrent identical requests must share one transport call")
}

func TestCacheFirstServesSecondCallFromCache(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	first := c.Execute(context.Background(), suggestDesc, Options{})
	require.NoError(t, first.Err)
	assert.False(t, first.FromCache)

	second := c.Execute(context.Background(), suggestDesc, Options{})
	require.NoError(t, second.Err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, `{"v":1}`, string(second.Data))
	assert.EqualValues(t, 1, tr.calls.Load())
}

func TestNetworkOnlySkipsCacheReadButPersists(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":2}`)}
	c := newTestClient(t, tr)

	sig := Signature(suggestDesc)
	c.Store().Set(sig, json.RawMessage(`{"v":1}`))

	res := c.Execute(context.Background(), suggestDesc, Options{FetchPolicy: NetworkOnly})
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"v":2}`, string(res.Data))
	assert.EqualValues(t, 1, tr.calls.Load())

	stored, ok := c.Store().Get(sig)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(stored), "NetworkOnly refreshes the stored entry")
}

func TestNoCacheNeitherReadsNorWrites(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":2}`)}
	c := newTestClient(t, tr)

	sig := Signature(suggestDesc)
	c.Store().Set(sig, json.RawMessage(`{"v":1}`))

	res := c.Execute(context.Background(), suggestDesc, Options{FetchPolicy: NoCache})
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"v":2}`, string(res.Data))

	stored, ok := c.Store().Get(sig)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(stored), "NoCache must leave the stored entry alone")
}

func TestCacheAndNetworkReturnsCachedAndRefreshes(t *testing.T) {
	var payload atomic.Value
	payload.Store(`{"v":1}`)
	tr := &stubTransport{fn: func(context.Context, Descriptor) (*Response, error) {
		return &Response{Data: json.RawMessage(payload.Load().(string))}, nil
	}}
	c := newTestClient(t, tr)

	warm := c.Execute(context.Background(), suggestDesc, Options{})
	require.NoError(t, warm.Err)

	payload.Store(`{"v":2}`)
	res := c.Execute(context.Background(), suggestDesc, Options{FetchPolicy: CacheAndNetwork})
	require.NoError(t, res.Err)
	assert.True(t, res.FromCache)
	assert.JSONEq(t, `{"v":1}`, string(res.Data), "the caller gets the cached value immediately")

	sig := Signature(suggestDesc)
	assert.Eventually(t, func() bool {
		stored, ok := c.Store().Get(sig)
		return ok && string(stored) == `{"v":2}`
	}, time.Second, 5*time.Millisecond, "the background refresh must land eventually")
}

func TestErrorPolicyNone(t *testing.T) {
	tr := &stubTransport{fn: func(context.Context, Descriptor) (*Response, error) {
		return &Response{
			Data:   json.RawMessage(`{"partial":true}`),
			Errors: []ResponseError{{Message: "quota exceeded"}},
		}, nil
	}}
	c := newTestClient(t, tr)

	res := c.Execute(context.Background(), suggestDesc, Options{})
	require.Error(t, res.Err)
	var re *ResponseError
	require.ErrorAs(t, res.Err, &re)
	assert.Equal(t, "quota exceeded", re.Message)
	assert.Nil(t, res.Data)
	assert.Equal(t, 0, c.Store().Len(), "results carrying errors are not cached")
}

func TestErrorPolicyIgnore(t *testing.T) {
	tr := &stubTransport{fn: func(context.Context, Descriptor) (*Response, error) {
		return &Response{
			Data:   json.RawMessage(`{"partial":true}`),
			Errors: []ResponseError{{Message: "quota exceeded"}},
		}, nil
	}}
	c := newTestClient(t, tr)

	res := c.Execute(context.Background(), suggestDesc, Options{ErrorPolicy: ErrorPolicyIgnore})
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"partial":true}`, string(res.Data))
	assert.Empty(t, res.Errors)
}

func TestErrorPolicyAll(t *testing.T) {
	tr := &stubTransport{fn: func(context.Context, Descriptor) (*Response, error) {
		return &Response{
			Data:   json.RawMessage(`{"partial":true}`),
			Errors: []ResponseError{{Message: "quota exceeded"}},
		}, nil
	}}
	c := newTestClient(t, tr)

	res := c.Execute(context.Background(), suggestDesc, Options{ErrorPolicy: ErrorPolicyAll})
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"partial":true}`, string(res.Data))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "quota exceeded", res.Errors[0].Message)
}

func TestCorruptCacheEntryTreatedAsMiss(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	sig := Signature(suggestDesc)
	c.Store().Set(sig, json.RawMessage(`{"broken`))

	res := c.Execute(context.Background(), suggestDesc, Options{})
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"v":1}`, string(res.Data))
	assert.EqualValues(t, 1, tr.calls.Load(), "corruption triggers one fresh fetch")

	stored, ok := c.Store().Get(sig)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(stored), "the corrupt entry is replaced")
}

func TestExhaustedRetriesSurfaceToCaller(t *testing.T) {
	tr := &stubTransport{fn: func(context.Context, Descriptor) (*Response, error) {
		return nil, &TransportError{StatusCode: 503, Err: errors.New("unavailable")}
	}}
	c := newTestClient(t, tr)

	res := c.Execute(context.Background(), suggestDesc, Options{MaxRetries: 1})
	require.Error(t, res.Err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, res.Err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.EqualValues(t, 2, tr.calls.Load())
	assert.Equal(t, 0, c.Store().Len(), "failures are never cached")
}

func TestCancelingOneWaiterDoesNotAffectOthers(t *testing.T) {
	tr := &stubTransport{delay: 80 * time.Millisecond, fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	canceledCtx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		done <- c.Execute(canceledCtx, suggestDesc, Options{})
	}()

	var g errgroup.Group
	g.Go(func() error {
		res := c.Execute(context.Background(), suggestDesc, Options{})
		return res.Err
	})

	time.Sleep(20 * time.Millisecond)
	cancel()

	res := <-done
	require.Error(t, res.Err)
	assert.True(t, IsCancellation(res.Err))

	require.NoError(t, g.Wait(), "the surviving waiter still gets the shared result")
	assert.EqualValues(t, 1, tr.calls.Load())
}

func TestInFlightInspection(t *testing.T) {
	tr := &stubTransport{delay: 100 * time.Millisecond, fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	go c.Execute(context.Background(), suggestDesc, Options{})

	sig := Signature(suggestDesc)
	assert.Eventually(t, func() bool {
		active := c.InFlight()
		return len(active) == 1 && active[0] == sig
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return len(c.InFlight()) == 0 },
		time.Second, 5*time.Millisecond, "the registry entry is removed once settled")
}

func TestMutateInvalidatesTags(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"ok":true}`)}
	c := newTestClient(t, tr)

	c.Store().Set("list#all", json.RawMessage(`{}`), cache.WithTags("categories"))
	c.Store().Set("detail#1", json.RawMessage(`{}`), cache.WithTags("categories"))
	c.Store().Set("unrelated", json.RawMessage(`{}`), cache.WithTags("profile"))

	res := c.Mutate(context.Background(), Descriptor{Operation: "updateCategory"},
		Options{Invalidates: []string{"categories"}})
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"unrelated"}, c.Store().Stats().Keys)
}

func TestMutateDoesNotCacheItsResult(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"ok":true}`)}
	c := newTestClient(t, tr)

	res := c.Mutate(context.Background(), Descriptor{Operation: "updateCategory"}, Options{})
	require.NoError(t, res.Err)
	assert.Equal(t, 0, c.Store().Len())
}

func TestQueryRefLifecycle(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	ref := c.Query(suggestDesc, Options{})
	assert.True(t, ref.Result().Loading, "nothing fetched yet")

	got := ref.Fetch(context.Background())
	require.NoError(t, got.Err)
	assert.False(t, got.Loading)
	assert.JSONEq(t, `{"v":1}`, string(got.Data))

	// Refetch bypasses the cache and goes back to the network.
	got = ref.Refetch(context.Background())
	require.NoError(t, got.Err)
	assert.EqualValues(t, 2, tr.calls.Load())
}

func TestWatchPollsUntilCanceled(t *testing.T) {
	tr := &stubTransport{fn: respondWith(`{"v":1}`)}
	c := newTestClient(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	results := 0
	for res := range c.Watch(ctx, suggestDesc, Options{
		FetchPolicy:  NetworkOnly,
		PollInterval: 20 * time.Millisecond,
	}) {
		if res.Err != nil {
			// A tick racing the deadline may observe the cancellation.
			assert.True(t, IsCancellation(res.Err), "got: %v", res.Err)
			continue
		}
		results++
	}
	assert.GreaterOrEqual(t, results, 2, "initial result plus at least one poll tick")
}

func TestNewRequiresEndpointOrTransport(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{Endpoint: "http://localhost:4000/query"})
	require.NoError(t, err)
	defer c.Close()
}
