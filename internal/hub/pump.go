package hub

import (
	"context"
	"time"

	"github.com/obby/fs-coalescer/internal/watcher"
)

// Pump forwards flushed batches to the hub until batches is closed or ctx
// is cancelled.
func Pump(ctx context.Context, batches <-chan watcher.Batch, h *Hub) {
	logger := h.logger.With("component", "pump")

	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				return
			}
			for _, e := range batch.Events {
				logger.Debug("Delivering event", "seq", batch.Seq, "event", e.String())
			}
			h.Broadcast(Message{
				Seq:    batch.Seq,
				Events: batch.Events,
				SentAt: time.Now(),
			})
		case <-ctx.Done():
			return
		}
	}
}
