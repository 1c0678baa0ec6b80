package workers

import (
	"context"
	"log/slog"
	"orchestra/contract"
)

// EvictionWorker cleans up connections whose delivery failed.
// It runs outside any room critical section, so a stale connection
// is removed without ever stalling the room that noticed it.
type EvictionWorker struct {
	log          *slog.Logger
	evictions    chan contract.Eviction
	disconnector contract.IDisconnector
}

func NewEvictionWorker(log *slog.Logger, evictions chan contract.Eviction, disconnector contract.IDisconnector) *EvictionWorker {
	return &EvictionWorker{log: log, evictions: evictions, disconnector: disconnector}
}

func (w *EvictionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping evictions")
			return nil
		case e := <-w.evictions:
			w.log.Debug("Evicting connection", "room_id", e.Room, "participant_id", e.Participant)
			w.disconnector.Disconnect(ctx, e.Room, e.Participant, e.Sink)
		}
	}
}
