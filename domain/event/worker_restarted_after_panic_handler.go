package event

import (
	"log/slog"
	"orchestra/errors"
)

// WorkerRestartedAfterPanicHandler reports the background workers of the meeting
// runtime the supervisor brought back after a panic. Rooms keep their state across
// a restart, only the events in flight in the crashed worker may be lost:
// a restarted fanout means the event log and the stats can miss a change.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{
		log:     log,
		counter: counter,
	}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.counter.Increment(RestartedAfterPanicType)
	h.log.Warn("Meeting worker restarted after panic",
		"worker", payload.WorkerName,
		"restarts", h.counter.Get(RestartedAfterPanicType),
		"at", event.CreatedAt)
}
