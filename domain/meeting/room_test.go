package meeting

import (
	"orchestra/errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestRoom_CheckInvariants(t *testing.T) {
	at := time.Now().UTC()

	tests := []struct {
		name    string
		corrupt func(r *Room)
		wantErr bool
	}{
		{"fresh room", func(r *Room) {}, false},
		{"holder connected", func(r *Room) { r.Token.Holder = lo.ToPtr(ParticipantID("alice")) }, false},
		{"holder gone", func(r *Room) { r.Token.Holder = lo.ToPtr(ParticipantID("ghost")) }, true},
		{"current out of sync", func(r *Room) { r.Phase.Current = PhaseDecision }, true},
		{"empty history", func(r *Room) { r.Phase.History = nil }, true},
		{"skipped phase", func(r *Room) {
			r.Phase.History[0].Superseded = true
			r.Phase.History = append(r.Phase.History, PhaseRecord{Phase: PhaseDecision})
			r.Phase.Current = PhaseDecision
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			room := NewRoom("M1", at)
			room.Members["alice"] = Member{ParticipantID: "alice", Role: RoleParticipant, JoinedAt: at}

			tt.corrupt(room)

			err := room.CheckInvariants()
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrCorruptedRoom)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestRoom_Reset_Keeps_Members_And_Version_Monotonic(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	room := NewRoom("M1", at)
	room.Members["alice"] = Member{ParticipantID: "alice"}
	room.Token = TokenState{Holder: lo.ToPtr(ParticipantID("ghost")), Version: 7}

	room.Reset(at)

	req.NoError(room.CheckInvariants())
	req.Nil(room.Token.Holder)
	req.Equal(uint64(8), room.Token.Version)
	req.Equal(PhaseIdeation, room.Phase.Current)
	req.Contains(room.Members, ParticipantID("alice"))
}

func TestRoom_View_Sorted_By_Join(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	room := NewRoom("M1", at)
	room.Members["bob"] = Member{ParticipantID: "bob", JoinedAt: at.Add(time.Second)}
	room.Members["alice"] = Member{ParticipantID: "alice", JoinedAt: at}

	view := room.View()

	req.Equal([]ParticipantID{"alice", "bob"}, lo.Map(view.Members, func(m Member, _ int) ParticipantID {
		return m.ParticipantID
	}))
}
