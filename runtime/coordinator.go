package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"orchestra/permission"
	"time"

	"github.com/google/uuid"
)

// Coordinator serializes every mutation of a room behind its critical section.
// Permission checks, the arbiter or phase machine, the invariant check and
// the broadcast enqueue all happen before the next mutation of that room begins.
type Coordinator struct {
	log      *slog.Logger
	registry *Registry
	relay    *Relay
	now      func() time.Time
}

func NewCoordinator(log *slog.Logger, registry *Registry, relay *Relay) *Coordinator {
	return &Coordinator{
		log:      log,
		registry: registry,
		relay:    relay,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle dispatches one inbound command of an authenticated caller.
// sink is the connection the command arrived on, only Join registers it.
func (c *Coordinator) Handle(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller, sink contract.EventSink, cmd meeting.Command) error {
	switch cmd := cmd.(type) {
	case meeting.Join:
		_, err := c.Join(ctx, roomID, caller, cmd, sink)
		return err
	case meeting.Leave:
		return c.Leave(ctx, roomID, caller, cmd)
	case meeting.ClaimToken:
		_, err := c.Claim(ctx, roomID, caller)
		return err
	case meeting.ReleaseToken:
		_, err := c.Release(ctx, roomID, caller)
		return err
	case meeting.ForceReleaseToken:
		_, err := c.ForceRelease(ctx, roomID, caller)
		return err
	case meeting.ChangePhase:
		_, err := c.ChangePhase(ctx, roomID, caller, cmd.Phase)
		return err
	case meeting.Signal:
		return c.relay.Relay(ctx, roomID, caller.ParticipantID, cmd)
	default:
		return fmt.Errorf("%T: %w", cmd, errors.ErrUnknownCommand)
	}
}

// Join registers the caller's connection. The participant id of the frame, when given,
// must be the authenticated one.
func (c *Coordinator) Join(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller, cmd meeting.Join, sink contract.EventSink) (meeting.View, error) {
	if cmd.ParticipantID != "" && cmd.ParticipantID != caller.ParticipantID {
		return meeting.View{}, fmt.Errorf("join as %s: %w", cmd.ParticipantID, errors.ErrIdentityMismatch)
	}
	name := cmd.ParticipantName
	if name == "" {
		name = caller.Name
	}
	if name == "" {
		name = string(caller.ParticipantID)
	}
	return c.registry.Join(ctx, roomID, meeting.Member{
		ParticipantID: caller.ParticipantID,
		Name:          name,
		Role:          caller.Role,
	}, sink)
}

// Leave removes the caller from the room. Removing somebody else needs manage_participants
// and closes that participant's connection.
func (c *Coordinator) Leave(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller, cmd meeting.Leave) error {
	if cmd.ParticipantID != "" && cmd.ParticipantID != caller.ParticipantID {
		if !permission.Evaluate(caller.Role, permission.ManageParticipants) {
			return fmt.Errorf("remove %s: %w", cmd.ParticipantID, errors.ErrPermissionDenied)
		}
		c.registry.Kick(ctx, roomID, cmd.ParticipantID)
		return nil
	}
	c.registry.Leave(ctx, roomID, caller.ParticipantID)
	return nil
}

// Disconnect is called by the transport when a connection goes away.
func (c *Coordinator) Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink contract.EventSink) {
	c.registry.Disconnect(ctx, roomID, participantID, sink)
}

func (c *Coordinator) Claim(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller) (meeting.TokenState, error) {
	var state meeting.TokenState
	err := c.registry.withRoom(roomID, func(slot *roomSlot) error {
		if err := requireMember(slot, caller); err != nil {
			return err
		}
		if !permission.CanClaim(caller.Role, false) {
			return fmt.Errorf("%s cannot claim: %w", caller.Role, errors.ErrPermissionDenied)
		}
		token := slot.room.Token
		heldByOther := token.IsHeld() && !token.HeldBy(caller.ParticipantID)
		if !permission.CanClaim(caller.Role, heldByOther) {
			return fmt.Errorf("held by %s: %w", *token.Holder, errors.ErrAlreadyHeld)
		}
		change, err := slot.room.Token.Claim(caller.ParticipantID)
		if err != nil {
			return err
		}
		if err := c.commit(ctx, slot, event.NewTokenChanged(roomID, caller.ParticipantID, change, c.now())); err != nil {
			return err
		}
		state = slot.room.View().Token
		return nil
	})
	return state, err
}

func (c *Coordinator) Release(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller) (meeting.TokenState, error) {
	var state meeting.TokenState
	err := c.registry.withRoom(roomID, func(slot *roomSlot) error {
		if err := requireMember(slot, caller); err != nil {
			return err
		}
		change, err := slot.room.Token.Release(caller.ParticipantID)
		if err != nil {
			return err
		}
		if err := c.commit(ctx, slot, event.NewTokenChanged(roomID, caller.ParticipantID, change, c.now())); err != nil {
			return err
		}
		state = slot.room.View().Token
		return nil
	})
	return state, err
}

// ForceRelease moves the token to unheld whoever holds it, even when nobody does.
func (c *Coordinator) ForceRelease(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller) (meeting.TokenState, error) {
	if !permission.Evaluate(caller.Role, permission.ForceTokenRelease) {
		return meeting.TokenState{}, fmt.Errorf("%s cannot force release: %w", caller.Role, errors.ErrPermissionDenied)
	}
	var state meeting.TokenState
	err := c.registry.withRoom(roomID, func(slot *roomSlot) error {
		if err := requireMember(slot, caller); err != nil {
			return err
		}
		change := slot.room.Token.ForceRelease()
		if err := c.commit(ctx, slot, event.NewTokenChanged(roomID, caller.ParticipantID, change, c.now())); err != nil {
			return err
		}
		state = slot.room.View().Token
		return nil
	})
	return state, err
}

func (c *Coordinator) ChangePhase(ctx context.Context, roomID meeting.RoomID, caller meeting.Caller, requested string) (meeting.PhaseState, error) {
	if !permission.Evaluate(caller.Role, permission.ManagePhases) {
		return meeting.PhaseState{}, fmt.Errorf("%s cannot change phase: %w", caller.Role, errors.ErrPermissionDenied)
	}
	var state meeting.PhaseState
	err := c.registry.withRoom(roomID, func(slot *roomSlot) error {
		if err := requireMember(slot, caller); err != nil {
			return err
		}
		previous := slot.room.Phase.Current
		record, err := slot.room.Phase.Advance(requested, caller.ParticipantID, c.now())
		if err != nil {
			return err
		}
		evt := event.PhaseChanged{
			ID:        uuid.New(),
			Room:      roomID,
			Phase:     record.Phase,
			Previous:  previous,
			StartedBy: record.StartedBy,
			Version:   slot.room.Phase.Version(),
			At:        record.StartedAt,
		}
		if err := c.commit(ctx, slot, evt); err != nil {
			return err
		}
		state = slot.room.Phase.Clone()
		return nil
	})
	return state, err
}

// Room returns a copy of the state of one room.
func (c *Coordinator) Room(roomID meeting.RoomID) (meeting.View, error) {
	return c.registry.Room(roomID)
}

func (c *Coordinator) Rooms() []meeting.View {
	return c.registry.Rooms()
}

// commit validates the mutated room before its event leaves the critical section.
// A room failing its invariants is rebuilt and resent to every member.
func (c *Coordinator) commit(ctx context.Context, slot *roomSlot, evt event.DomainEvent) error {
	if err := slot.room.CheckInvariants(); err != nil {
		c.reset(ctx, slot, err)
		return err
	}
	c.registry.broadcaster.publish(ctx, slot, evt)
	return nil
}

func (c *Coordinator) reset(ctx context.Context, slot *roomSlot, cause error) {
	roomID := slot.room.ID
	c.log.Error("Room state corrupted, resetting it", "room_id", roomID, "error", cause)
	now := c.now()
	slot.room.Reset(now)
	c.registry.broadcaster.publish(ctx, slot, event.TokenChanged{
		ID:      uuid.New(),
		Room:    roomID,
		Kind:    meeting.TokenForceRelease,
		Version: slot.room.Token.Version,
		At:      now,
	})
	c.registry.broadcaster.publish(ctx, slot, event.PhaseChanged{
		ID:      uuid.New(),
		Room:    roomID,
		Phase:   slot.room.Phase.Current,
		Version: slot.room.Phase.Version(),
		At:      now,
	})
	c.registry.broadcaster.emit(event.Event{
		Type:      event.RoomResetType,
		CreatedAt: now,
		Payload:   event.RoomReset{Room: roomID, Reason: cause.Error()},
	})
}

func requireMember(slot *roomSlot, caller meeting.Caller) error {
	if _, ok := slot.room.Members[caller.ParticipantID]; !ok {
		return fmt.Errorf("%s is not in room %s: %w", caller.ParticipantID, slot.room.ID, errors.ErrUnknownConnection)
	}
	return nil
}
