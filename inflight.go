package queryclient

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// inflight serializes concurrent callers of the same signature onto one
// shared operation, so N overlapping identical requests cost one network
// round-trip. The shared call runs on a context detached from its first
// caller: each waiter's own ctx only bounds its wait, and one subscriber
// canceling never tears the result away from the others. When the last waiter
// leaves before the call settles, the underlying call is aborted.
type inflight struct {
	group  singleflight.Group
	mu     sync.Mutex
	active map[string]*flightState
}

type flightState struct {
	waiters int
	cancel  context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{active: make(map[string]*flightState)}
}

// do runs fn for sig, coalescing with any in-progress call for the same
// signature. shared reports whether the result was produced for another
// caller's invocation.
func (f *inflight) do(ctx context.Context, sig string, fn func(context.Context) (*Response, error)) (resp *Response, shared bool, err error) {
	f.mu.Lock()
	st := f.active[sig]
	if st == nil {
		st = &flightState{}
		f.active[sig] = st
	}
	st.waiters++
	f.mu.Unlock()
	defer f.leave(sig)

	for {
		ch := f.group.DoChan(sig, func() (any, error) {
			runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			f.mu.Lock()
			if cur := f.active[sig]; cur != nil {
				cur.cancel = cancel
			}
			f.mu.Unlock()
			defer func() {
				f.group.Forget(sig)
				cancel()
			}()
			return fn(runCtx)
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// A caller can join a call in its teardown window, after the
				// previous waiters all left and aborted it. That cancellation
				// is not this caller's; issue a fresh call.
				if IsCancellation(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Shared, res.Err
			}
			return res.Val.(*Response), res.Shared, nil
		}
	}
}

// Active returns the signatures with an outstanding shared operation, sorted,
// for inspection tooling and tests.
func (f *inflight) Active() []string {
	f.mu.Lock()
	keys := make([]string, 0, len(f.active))
	for k := range f.active {
		keys = append(keys, k)
	}
	f.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (f *inflight) leave(sig string) {
	f.mu.Lock()
	st := f.active[sig]
	if st != nil {
		st.waiters--
		if st.waiters <= 0 {
			if st.cancel != nil {
				st.cancel()
			}
			delete(f.active, sig)
		}
	}
	f.mu.Unlock()
}
