package messaging

import (
	"context"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/glimte/warren-go/contracts"
)

type correlationEntry struct {
	handler    ReplyHandler
	autoDelete bool
}

// CorrelationTable maps pending correlation ids to their reply handlers. Ids
// must be globally unique per request; the table never checks for collisions,
// the id generator guarantees them. The table is owned by one client instance
// and torn down with it.
type CorrelationTable struct {
	entries *haxmap.Map[string, *correlationEntry]
	logger  *slog.Logger
}

// CorrelationTableOption configures the CorrelationTable
type CorrelationTableOption func(*CorrelationTable)

// WithCorrelationLogger sets the logger
func WithCorrelationLogger(logger *slog.Logger) CorrelationTableOption {
	return func(t *CorrelationTable) {
		t.logger = logger
	}
}

// NewCorrelationTable creates an empty table
func NewCorrelationTable(opts ...CorrelationTableOption) *CorrelationTable {
	t := &CorrelationTable{
		entries: haxmap.New[string, *correlationEntry](),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Register records a pending reply handler under a fresh correlation id.
// With autoDelete the entry is consumed by the first matching reply;
// without it the entry stands for repeated replies until Unregister.
func (t *CorrelationTable) Register(id string, handler ReplyHandler, autoDelete bool) {
	t.entries.Set(id, &correlationEntry{
		handler:    handler,
		autoDelete: autoDelete,
	})
}

// Dispatch routes a decoded reply to the handler registered under id and
// reports whether one was found. A missing entry is not an error: replies may
// arrive late after the entry was consumed, or for a since-cancelled request.
func (t *CorrelationTable) Dispatch(ctx context.Context, id string, msg *contracts.Message) bool {
	entry, ok := t.entries.Get(id)
	if !ok {
		t.logger.Warn("reply for unknown correlation id dropped", "correlationId", id)
		return false
	}

	if entry.autoDelete {
		t.entries.Del(id)
	}

	entry.handler(ctx, msg)
	return true
}

// Unregister removes a pending entry, typically after the request publish
// failed and no reply can ever arrive.
func (t *CorrelationTable) Unregister(id string) {
	t.entries.Del(id)
}

// Len returns the number of pending entries
func (t *CorrelationTable) Len() int {
	return int(t.entries.Len())
}
