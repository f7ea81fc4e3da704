package queryclient

import "sync/atomic"

// Multiple independent call sites need one coherent view of cached data, so
// the application installs a single Client here at startup. The registry only
// names the instance the process settled on: stores and clients themselves
// stay explicitly constructed and injectable, which keeps tests isolated.
var defaultClient atomic.Pointer[Client]

// SetDefault installs c as the process-wide client and returns the previous
// one, if any. The caller remains responsible for closing both.
func SetDefault(c *Client) *Client {
	return defaultClient.Swap(c)
}

// Default returns the process-wide client, or nil before SetDefault.
func Default() *Client {
	return defaultClient.Load()
}

// ResetDefault clears the registry, for test teardown.
func ResetDefault() {
	defaultClient.Store(nil)
}
