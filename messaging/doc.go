// Package messaging implements the three messaging patterns warren exposes
// over a single broker channel:
//
//   - WorkerQueue: fire-and-forget task delivery to a named queue
//   - RPC: request/reply over a shared request queue and a private
//     per-client reply queue, matched by correlation id
//   - PubSub: fanout broadcast through an exchange with one exclusive
//     bound queue per client instance
//
// The patterns share two pieces of client-owned state: a TopologyCache that
// remembers declared queues and exchange bindings, and a CorrelationTable
// that routes RPC replies to their pending handlers. First-time setup of a
// queue, reply consumer, or exchange binding is serialized per logical name,
// so concurrent callers share one setup instead of racing to duplicate it.
//
// All broker access goes through the ChannelOps interface, implemented by
// the internal rabbitmq channel handle and mocked in tests.
package messaging
