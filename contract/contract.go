//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives domain events.
// Connection sinks must not block: they are called inside a room critical section.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Authenticator resolves a credential into a caller, once per action.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (meeting.Caller, error)
}

// Eviction asks for the cleanup of a connection whose delivery failed.
type Eviction struct {
	Room        meeting.RoomID
	Participant meeting.ParticipantID
	Sink        EventSink
}

type IDisconnector interface {
	Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink EventSink)
}

type ICoordinator interface {
	Handle(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller, sink EventSink, cmd meeting.Command) error
	Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink EventSink)
	Room(roomID meeting.RoomID) (meeting.View, error)
	Rooms() []meeting.View
}
