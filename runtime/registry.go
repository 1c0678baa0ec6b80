package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// roomSlot is the arena entry of one room. Its mutex is the room critical section:
// every mutation of the room and every enqueue of its broadcast happen under it.
type roomSlot struct {
	mu     sync.Mutex
	room   *meeting.Room
	sinks  map[meeting.ParticipantID]contract.EventSink
	stale  []contract.Eviction
	closed bool
	// seq is the position of the last published event in the room history.
	// It starts at the creation instant so a room recreated under the same id
	// keeps sorting after its previous incarnation.
	seq uint64
}

// Registry owns the rooms and the connections registered to them.
// The arena lock only guards the map, never a room mutation,
// so unrelated rooms never wait on each other.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	rooms       map[meeting.RoomID]*roomSlot
	broadcaster *Broadcaster
	evictions   chan<- contract.Eviction
	now         func() time.Time
}

func NewRegistry(log *slog.Logger, broadcaster *Broadcaster, evictions chan<- contract.Eviction) *Registry {
	return &Registry{
		log:         log,
		rooms:       make(map[meeting.RoomID]*roomSlot),
		broadcaster: broadcaster,
		evictions:   evictions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// lock returns the slot of roomID with its critical section held.
// A slot discarded while we were waiting on it is looked up again.
func (r *Registry) lock(roomID meeting.RoomID, create bool) (*roomSlot, error) {
	for {
		r.mu.RLock()
		slot, ok := r.rooms[roomID]
		r.mu.RUnlock()

		if !ok {
			if !create {
				return nil, errors.ErrUnknownRoom
			}
			r.mu.Lock()
			slot, ok = r.rooms[roomID]
			if !ok {
				now := r.now()
				slot = &roomSlot{
					room:  meeting.NewRoom(roomID, now),
					sinks: make(map[meeting.ParticipantID]contract.EventSink),
					seq:   uint64(now.UnixNano()),
				}
				r.rooms[roomID] = slot
				r.log.Debug("Room created", "room_id", roomID)
			}
			r.mu.Unlock()
		}

		slot.mu.Lock()
		if slot.closed {
			slot.mu.Unlock()
			continue
		}
		return slot, nil
	}
}

// unlock leaves the critical section. An empty room is discarded with its token and phase state.
// Evictions collected during the critical section are scheduled once it is released.
func (r *Registry) unlock(roomID meeting.RoomID, slot *roomSlot) {
	stale := slot.stale
	slot.stale = nil
	if len(slot.sinks) == 0 && !slot.closed {
		slot.closed = true
		r.mu.Lock()
		if r.rooms[roomID] == slot {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		r.log.Debug("Room discarded", "room_id", roomID)
	}
	slot.mu.Unlock()
	r.schedule(stale)
}

func (r *Registry) withRoom(roomID meeting.RoomID, fn func(slot *roomSlot) error) error {
	slot, err := r.lock(roomID, false)
	if err != nil {
		return fmt.Errorf("room %s: %w", roomID, err)
	}
	defer r.unlock(roomID, slot)
	return fn(slot)
}

// schedule hands failed connections to the eviction worker.
// When the worker is saturated the cleanup runs on its own goroutine.
func (r *Registry) schedule(evictions []contract.Eviction) {
	for _, e := range evictions {
		select {
		case r.evictions <- e:
		default:
			go r.Disconnect(context.Background(), e.Room, e.Participant, e.Sink)
		}
	}
}

// Join registers a connection under a room, creating the room if absent.
// A participant joining again from another connection replaces the previous one.
func (r *Registry) Join(ctx context.Context, roomID meeting.RoomID, member meeting.Member, sink contract.EventSink) (meeting.View, error) {
	slot, _ := r.lock(roomID, true)
	defer r.unlock(roomID, slot)

	now := r.now()
	pid := member.ParticipantID
	if previous, ok := slot.sinks[pid]; ok {
		slot.sinks[pid] = sink
		if previous != sink {
			closeSink(previous)
			r.log.Info("Connection replaced", "room_id", roomID, "participant_id", pid)
		}
		view := slot.room.View()
		r.broadcaster.deliver(ctx, slot, pid, sink, event.RoomSnapshot{Room: roomID, View: view, At: now})
		return view, nil
	}

	member.JoinedAt = now
	slot.room.Members[pid] = member
	slot.sinks[pid] = sink
	r.broadcaster.publish(ctx, slot, event.ParticipantJoined{
		ID:          uuid.New(),
		Room:        roomID,
		Participant: pid,
		Name:        member.Name,
		Role:        member.Role,
		At:          now,
	})
	view := slot.room.View()
	r.broadcaster.deliver(ctx, slot, pid, sink, event.RoomSnapshot{Room: roomID, View: view, At: now})
	r.log.Info("Participant joined", "room_id", roomID, "participant_id", pid, "role", member.Role)
	return view, nil
}

// Leave removes a participant from a room. Unknown rooms and participants are ignored.
func (r *Registry) Leave(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID) {
	r.remove(ctx, roomID, participantID, nil)
}

// Disconnect is the transport cleanup variant of Leave.
// It only acts while sink is still the registered connection of the participant.
func (r *Registry) Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink contract.EventSink) {
	if sink == nil {
		return
	}
	r.remove(ctx, roomID, participantID, sink)
}

// Kick removes a participant on behalf of somebody else and closes its connection.
func (r *Registry) Kick(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID) {
	if removed := r.remove(ctx, roomID, participantID, nil); removed != nil {
		closeSink(removed)
	}
}

// remove returns the connection it unregistered, nil when there was nothing to do.
func (r *Registry) remove(ctx context.Context, roomID meeting.RoomID, pid meeting.ParticipantID, sink contract.EventSink) contract.EventSink {
	slot, err := r.lock(roomID, false)
	if err != nil {
		return nil
	}
	defer r.unlock(roomID, slot)

	current, ok := slot.sinks[pid]
	if !ok || (sink != nil && current != sink) {
		return nil
	}
	now := r.now()
	if slot.room.Token.HeldBy(pid) {
		change, err := slot.room.Token.Release(pid)
		if err == nil {
			r.broadcaster.publish(ctx, slot, event.NewTokenChanged(roomID, pid, change, now))
		}
	}
	delete(slot.sinks, pid)
	delete(slot.room.Members, pid)
	r.broadcaster.publish(ctx, slot, event.ParticipantLeft{
		ID:          uuid.New(),
		Room:        roomID,
		Participant: pid,
		At:          now,
	})
	r.log.Info("Participant left", "room_id", roomID, "participant_id", pid)
	return current
}

// recipients snapshots the connections of a room, sender excluded.
func (r *Registry) recipients(roomID meeting.RoomID, sender meeting.ParticipantID) (map[meeting.ParticipantID]contract.EventSink, error) {
	var res map[meeting.ParticipantID]contract.EventSink
	err := r.withRoom(roomID, func(slot *roomSlot) error {
		if _, ok := slot.sinks[sender]; !ok {
			return errors.ErrUnknownConnection
		}
		res = lo.OmitByKeys(slot.sinks, []meeting.ParticipantID{sender})
		return nil
	})
	return res, err
}

// Room returns a copy of the state of one room.
func (r *Registry) Room(roomID meeting.RoomID) (meeting.View, error) {
	var view meeting.View
	err := r.withRoom(roomID, func(slot *roomSlot) error {
		view = slot.room.View()
		return nil
	})
	return view, err
}

// Rooms returns a copy of every live room, sorted by id.
func (r *Registry) Rooms() []meeting.View {
	r.mu.RLock()
	ids := lo.Keys(r.rooms)
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	views := make([]meeting.View, 0, len(ids))
	for _, id := range ids {
		if view, err := r.Room(id); err == nil {
			views = append(views, view)
		}
	}
	return views
}

func closeSink(s contract.EventSink) {
	if closer, ok := s.(interface{ Close() }); ok {
		closer.Close()
	}
}
