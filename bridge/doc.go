// Package bridge layers synchronous request/reply on top of warren's
// callback-based RPC pattern. RPC itself carries no timeout: a pending
// request waits until a matching reply arrives or the caller abandons it.
// The bridge supplies that external layer, waiting on the reply with a
// context deadline and unregistering the pending correlation entry when the
// deadline passes.
package bridge
