// Package projection builds read models from the accepted room events.
// It never emits events nor touches the live room state.
package projection

import (
	"context"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// ParticipantStats is the speaking share of one participant.
type ParticipantStats struct {
	ParticipantID meeting.ParticipantID `json:"participant_id"`
	Claims        int                   `json:"claims"`
	HoldMs        int64                 `json:"hold_ms"`
}

type PhaseStats struct {
	Phase      meeting.Phase `json:"phase"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
}

// RoomStats is what the stats endpoint serves for one room.
type RoomStats struct {
	Room          meeting.RoomID         `json:"room_id"`
	Participants  []ParticipantStats     `json:"participants"`
	Phases        []PhaseStats           `json:"phases"`
	CurrentHolder *meeting.ParticipantID `json:"current_holder"`
	CurrentHoldMs int64                  `json:"current_hold_ms"`
	TokenChanges  uint64                 `json:"token_changes"`
}

type phaseSpan struct {
	phase     meeting.Phase
	startedAt time.Time
	endedAt   *time.Time
}

type roomActivity struct {
	members      map[meeting.ParticipantID]struct{}
	claims       map[meeting.ParticipantID]int
	hold         map[meeting.ParticipantID]time.Duration
	holder       *meeting.ParticipantID
	heldSince    time.Time
	phases       []phaseSpan
	tokenChanges uint64
}

// RoomActivity keeps speaking statistics per room: claims and hold time per participant,
// phase durations and the running time of the current holder.
// It is fed by the event fanout worker and read by the HTTP API.
// A room is forgotten with its last member, like the live room it mirrors.
type RoomActivity struct {
	mu    sync.RWMutex
	rooms map[meeting.RoomID]*roomActivity
}

func NewRoomActivity() *RoomActivity {
	return &RoomActivity{rooms: make(map[meeting.RoomID]*roomActivity)}
}

func (a *RoomActivity) Consume(_ context.Context, e event.DomainEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if left, ok := e.(event.ParticipantLeft); ok {
		if room, ok := a.rooms[left.Room]; ok {
			delete(room.members, left.Participant)
			if len(room.members) == 0 {
				delete(a.rooms, left.Room)
			}
		}
		return nil
	}

	room := a.room(e.RoomID())
	switch evt := e.(type) {
	case event.ParticipantJoined:
		room.members[evt.Participant] = struct{}{}
		if len(room.phases) == 0 {
			room.phases = []phaseSpan{{phase: meeting.PhaseIdeation, startedAt: evt.At}}
		}
	case event.TokenChanged:
		room.tokenChanges++
		room.endHold(evt.At)
		if evt.Kind == meeting.TokenClaimed && evt.Holder != nil {
			holder := *evt.Holder
			room.claims[holder]++
			room.holder = &holder
			room.heldSince = evt.At
		}
	case event.PhaseChanged:
		// A phase change without a previous phase is a reset: the history starts over.
		if evt.Previous == "" {
			room.phases = nil
		}
		if n := len(room.phases); n > 0 && room.phases[n-1].endedAt == nil {
			room.phases[n-1].endedAt = lo.ToPtr(evt.At)
		}
		room.phases = append(room.phases, phaseSpan{phase: evt.Phase, startedAt: evt.At})
	}
	return nil
}

func (a *RoomActivity) room(id meeting.RoomID) *roomActivity {
	room, ok := a.rooms[id]
	if !ok {
		room = &roomActivity{
			members: make(map[meeting.ParticipantID]struct{}),
			claims:  make(map[meeting.ParticipantID]int),
			hold:    make(map[meeting.ParticipantID]time.Duration),
		}
		a.rooms[id] = room
	}
	return room
}

func (r *roomActivity) endHold(at time.Time) {
	if r.holder == nil {
		return
	}
	r.hold[*r.holder] += at.Sub(r.heldSince)
	r.holder = nil
}

// Stats computes the statistics of a room as of now.
// Open spans (current phase, current holder) are counted up to now.
func (a *RoomActivity) Stats(id meeting.RoomID, now time.Time) (RoomStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	room, ok := a.rooms[id]
	if !ok {
		return RoomStats{}, errors.ErrUnknownRoom
	}

	ids := lo.Uniq(append(lo.Keys(room.claims), lo.Keys(room.hold)...))
	participants := lo.Map(ids, func(pid meeting.ParticipantID, _ int) ParticipantStats {
		hold := room.hold[pid]
		if room.holder != nil && *room.holder == pid {
			hold += now.Sub(room.heldSince)
		}
		return ParticipantStats{ParticipantID: pid, Claims: room.claims[pid], HoldMs: hold.Milliseconds()}
	})
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].HoldMs != participants[j].HoldMs {
			return participants[i].HoldMs > participants[j].HoldMs
		}
		return participants[i].ParticipantID < participants[j].ParticipantID
	})

	phases := lo.Map(room.phases, func(span phaseSpan, _ int) PhaseStats {
		end := now
		if span.endedAt != nil {
			end = *span.endedAt
		}
		return PhaseStats{Phase: span.phase, StartedAt: span.startedAt, DurationMs: end.Sub(span.startedAt).Milliseconds()}
	})

	stats := RoomStats{
		Room:         id,
		Participants: participants,
		Phases:       phases,
		TokenChanges: room.tokenChanges,
	}
	if room.holder != nil {
		stats.CurrentHolder = lo.ToPtr(*room.holder)
		stats.CurrentHoldMs = now.Sub(room.heldSince).Milliseconds()
	}
	return stats, nil
}
