package event

import (
	"orchestra/domain/meeting"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the closed set of outbound notifications of a room.
type DomainEvent interface {
	RoomID() meeting.RoomID
	domainEvent()
}

type TokenChanged struct {
	ID       uuid.UUID
	Room     meeting.RoomID
	Kind     meeting.TokenChangeKind
	Holder   *meeting.ParticipantID
	Previous *meeting.ParticipantID
	By       meeting.ParticipantID
	Version  uint64
	Seq      uint64
	At       time.Time
}

type PhaseChanged struct {
	ID        uuid.UUID
	Room      meeting.RoomID
	Phase     meeting.Phase
	Previous  meeting.Phase
	StartedBy meeting.ParticipantID
	Version   uint64
	Seq       uint64
	At        time.Time
}

type ParticipantJoined struct {
	ID          uuid.UUID
	Room        meeting.RoomID
	Participant meeting.ParticipantID
	Name        string
	Role        meeting.Role
	Seq         uint64
	At          time.Time
}

type ParticipantLeft struct {
	ID          uuid.UUID
	Room        meeting.RoomID
	Participant meeting.ParticipantID
	Seq         uint64
	At          time.Time
}

// SignalRelayed is a connection-setup payload forwarded between peers.
// It never touches token or phase state and is not persisted.
type SignalRelayed struct {
	Room    meeting.RoomID
	Sender  meeting.ParticipantID
	Kind    meeting.SignalKind
	Payload []byte
	At      time.Time
}

// RoomSnapshot is sent to a joiner only, right after its own ParticipantJoined.
type RoomSnapshot struct {
	Room meeting.RoomID
	View meeting.View
	At   time.Time
}

func (e TokenChanged) RoomID() meeting.RoomID      { return e.Room }
func (e PhaseChanged) RoomID() meeting.RoomID      { return e.Room }
func (e ParticipantJoined) RoomID() meeting.RoomID { return e.Room }
func (e ParticipantLeft) RoomID() meeting.RoomID   { return e.Room }
func (e SignalRelayed) RoomID() meeting.RoomID     { return e.Room }
func (e RoomSnapshot) RoomID() meeting.RoomID      { return e.Room }

func (TokenChanged) domainEvent()      {}
func (PhaseChanged) domainEvent()      {}
func (ParticipantJoined) domainEvent() {}
func (ParticipantLeft) domainEvent()   {}
func (SignalRelayed) domainEvent()     {}
func (RoomSnapshot) domainEvent()      {}

// WithSeq stamps evt with its position in the history of its room.
// Relayed signals and snapshots are not part of that history and come back unchanged.
func WithSeq(e DomainEvent, seq uint64) DomainEvent {
	switch evt := e.(type) {
	case TokenChanged:
		evt.Seq = seq
		return evt
	case PhaseChanged:
		evt.Seq = seq
		return evt
	case ParticipantJoined:
		evt.Seq = seq
		return evt
	case ParticipantLeft:
		evt.Seq = seq
		return evt
	default:
		return e
	}
}

func NewTokenChanged(room meeting.RoomID, by meeting.ParticipantID, change meeting.TokenChange, at time.Time) TokenChanged {
	return TokenChanged{
		ID:       uuid.New(),
		Room:     room,
		Kind:     change.Kind,
		Holder:   change.Holder,
		Previous: change.Previous,
		By:       by,
		Version:  change.Version,
		At:       at,
	}
}
