package meeting

import (
	"fmt"
	"orchestra/errors"
	"sort"
	"time"

	"github.com/samber/lo"
)

// Room is the live state of one meeting.
// It exclusively owns its token and phase state.
type Room struct {
	ID        RoomID
	Token     TokenState
	Phase     PhaseState
	Members   map[ParticipantID]Member
	CreatedAt time.Time
}

func NewRoom(id RoomID, at time.Time) *Room {
	return &Room{
		ID:        id,
		Phase:     NewPhaseState("", at),
		Members:   make(map[ParticipantID]Member),
		CreatedAt: at,
	}
}

// Reset rebuilds token and phase state from scratch, keeping the members.
// The token version keeps growing so clients never see it go backwards.
func (r *Room) Reset(at time.Time) {
	r.Token = TokenState{Version: r.Token.Version + 1}
	r.Phase = NewPhaseState("", at)
}

// CheckInvariants verifies the room can still be served to clients.
func (r *Room) CheckInvariants() error {
	h := r.Phase.History
	if len(h) == 0 {
		return fmt.Errorf("empty phase history: %w", errors.ErrCorruptedRoom)
	}
	if h[len(h)-1].Phase != r.Phase.Current {
		return fmt.Errorf("current phase %s is not the last record %s: %w",
			r.Phase.Current, h[len(h)-1].Phase, errors.ErrCorruptedRoom)
	}
	if h[0].Phase != PhaseIdeation {
		return fmt.Errorf("history starts at %s: %w", h[0].Phase, errors.ErrCorruptedRoom)
	}
	for i := 1; i < len(h); i++ {
		next, ok := h[i-1].Phase.Next()
		if !ok || next != h[i].Phase {
			return fmt.Errorf("history jumps %s -> %s: %w", h[i-1].Phase, h[i].Phase, errors.ErrCorruptedRoom)
		}
		if !h[i-1].Superseded {
			return fmt.Errorf("record %s not superseded: %w", h[i-1].Phase, errors.ErrCorruptedRoom)
		}
	}
	if h[len(h)-1].Superseded {
		return fmt.Errorf("current record superseded: %w", errors.ErrCorruptedRoom)
	}
	if r.Token.Holder != nil {
		if _, ok := r.Members[*r.Token.Holder]; !ok {
			return fmt.Errorf("holder %s is not connected: %w", *r.Token.Holder, errors.ErrCorruptedRoom)
		}
	}
	return nil
}

// View is a read-only copy of a room, safe to use outside the critical section.
type View struct {
	ID      RoomID
	Token   TokenState
	Phase   PhaseState
	Members []Member
}

func (r *Room) View() View {
	members := lo.Values(r.Members)
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	token := r.Token
	if token.Holder != nil {
		token.Holder = lo.ToPtr(*token.Holder)
	}
	return View{ID: r.ID, Token: token, Phase: r.Phase.Clone(), Members: members}
}
