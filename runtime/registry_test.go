package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"orchestra/infrastructure/storage"
	"orchestra/sink"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, chan event.DomainEvent, chan event.Event) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	domainEvents := make(chan event.DomainEvent, 1024)
	telemetry := make(chan event.Event, 1024)
	// No eviction worker: evictions run on their own goroutine
	return NewRegistry(log, NewBroadcaster(log, domainEvents, telemetry), nil), domainEvents, telemetry
}

func member(id meeting.ParticipantID, role meeting.Role) meeting.Member {
	return meeting.Member{ParticipantID: id, Name: string(id), Role: role}
}

func drainDomain(ch chan event.DomainEvent) []event.DomainEvent {
	var res []event.DomainEvent
	for {
		select {
		case e := <-ch:
			res = append(res, e)
		default:
			return res
		}
	}
}

// drain returns every event queued on a connection so far.
func drain(s *sink.ConnectionSink) []event.DomainEvent {
	var res []event.DomainEvent
	for {
		select {
		case e := <-s.Events():
			res = append(res, e)
		default:
			return res
		}
	}
}

func TestRegistry_Join_Creates_Room_And_Notifies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, domainEvents, _ := newTestRegistry(t)
	aliceSink := sink.NewConnectionSink(16)
	bobSink := sink.NewConnectionSink(16)

	// Given no room exists
	_, err := registry.Room("M1")
	req.ErrorIs(err, errors.ErrUnknownRoom)

	// When alice then bob join
	_, err = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), aliceSink)
	req.NoError(err)
	view, err := registry.Join(ctx, "M1", member("bob", meeting.RoleObserver), bobSink)
	req.NoError(err)

	// Then the room exists in its initial state
	req.Len(view.Members, 2)
	req.Equal(meeting.ParticipantID("alice"), view.Members[0].ParticipantID)
	req.Equal(meeting.PhaseIdeation, view.Phase.Current)
	req.False(view.Token.IsHeld())

	// And alice saw her own join, her snapshot, then bob's join
	aliceEvents := drain(aliceSink)
	req.Len(aliceEvents, 3)
	req.IsType(event.ParticipantJoined{}, aliceEvents[0])
	req.IsType(event.RoomSnapshot{}, aliceEvents[1])
	req.Equal(meeting.ParticipantID("bob"), aliceEvents[2].(event.ParticipantJoined).Participant)

	// And bob never received alice's earlier join
	bobEvents := drain(bobSink)
	req.Len(bobEvents, 2)
	req.Equal(meeting.ParticipantID("bob"), bobEvents[0].(event.ParticipantJoined).Participant)
	req.Len(bobEvents[1].(event.RoomSnapshot).View.Members, 2)

	// And only the joins reach the permanent sinks
	req.Len(domainEvents, 2)
}

func TestRegistry_Double_Leave_Single_Notification(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)
	aliceSink := sink.NewConnectionSink(16)
	bobSink := sink.NewConnectionSink(16)
	_, _ = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), aliceSink)
	_, _ = registry.Join(ctx, "M1", member("bob", meeting.RoleParticipant), bobSink)
	drain(aliceSink)

	// When bob leaves twice
	registry.Leave(ctx, "M1", "bob")
	registry.Leave(ctx, "M1", "bob")

	// Then alice is told once
	events := drain(aliceSink)
	req.Len(events, 1)
	req.Equal(event.ParticipantLeft{
		ID:          events[0].(event.ParticipantLeft).ID,
		Room:        "M1",
		Participant: "bob",
		Seq:         events[0].(event.ParticipantLeft).Seq,
		At:          events[0].(event.ParticipantLeft).At,
	}, events[0])

	// When the last member leaves, the room is discarded
	registry.Leave(ctx, "M1", "alice")
	_, err := registry.Room("M1")
	req.ErrorIs(err, errors.ErrUnknownRoom)

	// And leaving an unknown room is a no-op
	registry.Leave(ctx, "M1", "alice")
	registry.Leave(ctx, "nowhere", "alice")
}

func TestRegistry_Holder_Leave_Releases_Token(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, domainEvents, _ := newTestRegistry(t)
	aliceSink := sink.NewConnectionSink(16)
	bobSink := sink.NewConnectionSink(16)
	_, _ = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), aliceSink)
	_, _ = registry.Join(ctx, "M1", member("bob", meeting.RoleParticipant), bobSink)

	// Given alice holds the token
	req.NoError(registry.withRoom("M1", func(slot *roomSlot) error {
		_, err := slot.room.Token.Claim("alice")
		return err
	}))
	drain(bobSink)

	// When alice leaves
	registry.Leave(ctx, "M1", "alice")

	// Then bob sees the release before the departure
	events := drain(bobSink)
	req.Len(events, 2)
	released := events[0].(event.TokenChanged)
	req.Equal(meeting.TokenReleased, released.Kind)
	req.Equal(meeting.ParticipantID("alice"), *released.Previous)
	req.Nil(released.Holder)
	req.IsType(event.ParticipantLeft{}, events[1])

	view, err := registry.Room("M1")
	req.NoError(err)
	req.False(view.Token.IsHeld())
	req.Equal(uint64(2), view.Token.Version)

	// And the durable history replays the release before the departure,
	// even though both share the same instant and are written in reverse
	history := drainDomain(domainEvents)
	req.Len(history, 4)
	release, _ := sink.ToRoomEvent(history[2])
	left, _ := sink.ToRoomEvent(history[3])
	req.Equal(release.At, left.At)
	req.Less(release.Seq, left.Seq)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	repository := storage.NewEventRepository(db, slog.Default(), nil)
	req.NoError(repository.StoreEvent(left))
	req.NoError(repository.StoreEvent(release))
	replayed, _, err := repository.GetEvents("M1", nil)
	req.NoError(err)
	req.Len(replayed, 2)
	req.Equal("participant_left", replayed[0].Type)
	req.Equal("token_changed", replayed[1].Type)
}

func TestRegistry_Duplicate_Join_Replaces_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)
	first := sink.NewConnectionSink(16)
	second := sink.NewConnectionSink(16)
	observer := sink.NewConnectionSink(16)
	_, _ = registry.Join(ctx, "M1", member("olga", meeting.RoleObserver), observer)
	_, _ = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), first)
	drain(observer)

	// When alice joins again from another connection
	view, err := registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), second)

	// Then the old connection is closed and nobody sees a second join
	req.NoError(err)
	req.Len(view.Members, 2)
	<-first.Done()
	req.Empty(drain(observer))
	req.IsType(event.RoomSnapshot{}, drain(second)[0])

	// And the cleanup of the old connection does not remove alice
	registry.Disconnect(ctx, "M1", "alice", first)
	view, err = registry.Room("M1")
	req.NoError(err)
	req.Len(view.Members, 2)
}

func TestRegistry_Slow_Consumer_Is_Evicted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, _, telemetry := newTestRegistry(t)
	aliceSink := sink.NewConnectionSink(16)
	// Room for its own join and snapshot only
	bobSink := sink.NewConnectionSink(2)
	_, _ = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), aliceSink)
	_, _ = registry.Join(ctx, "M1", member("bob", meeting.RoleParticipant), bobSink)

	// When bob never reads and another member joins
	_, _ = registry.Join(ctx, "M1", member("carl", meeting.RoleParticipant), sink.NewConnectionSink(16))

	// Then bob is evicted without blocking the room
	req.Eventually(func() bool {
		view, err := registry.Room("M1")
		return err == nil && len(view.Members) == 2
	}, time.Second, 5*time.Millisecond)
	<-bobSink.Done()

	// And the drop is reported
	dropped := <-telemetry
	req.Equal(event.DeliveryDroppedType, dropped.Type)
	req.Equal(meeting.ParticipantID("bob"), dropped.Payload.(event.DeliveryDropped).Participant)
}

func TestRegistry_Rooms_Are_Independent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)
	m1 := sink.NewConnectionSink(16)
	m2 := sink.NewConnectionSink(16)
	_, _ = registry.Join(ctx, "M2", member("bob", meeting.RoleParticipant), m2)
	_, _ = registry.Join(ctx, "M1", member("alice", meeting.RoleParticipant), m1)
	drain(m2)

	// When something happens in M1
	registry.Leave(ctx, "M1", "alice")

	// Then M2 sees nothing and is still listed
	req.Empty(drain(m2))
	rooms := registry.Rooms()
	req.Len(rooms, 1)
	req.Equal(meeting.RoomID("M2"), rooms[0].ID)
}

func TestRegistry_Join_Leave_Churn_Discards_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)
	const workers, rounds = 64, 50

	// When members keep joining and leaving the same room, so that it is
	// discarded and recreated while others wait on its critical section
	var wg sync.WaitGroup
	lost := make(chan meeting.ParticipantID, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(pid meeting.ParticipantID) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				view, err := registry.Join(ctx, "M1", member(pid, meeting.RoleParticipant), sink.NewConnectionSink(1024))
				if err != nil || !lo.ContainsBy(view.Members, func(m meeting.Member) bool { return m.ParticipantID == pid }) {
					lost <- pid
				}
				registry.Leave(ctx, "M1", pid)
			}
		}(meeting.ParticipantID(fmt.Sprintf("p%d", w)))
	}
	wg.Wait()

	// Then every join landed in a live room
	req.Empty(lost)

	// And the room is gone once everybody left
	_, err := registry.Room("M1")
	req.ErrorIs(err, errors.ErrUnknownRoom)
	req.Empty(registry.Rooms())
}
