package ws

import (
	"encoding/json"
	"fmt"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"orchestra/permission"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

var validate = validator.New()

// InboundFrame is every message a client may send on its connection.
type InboundFrame struct {
	Type            string          `json:"type" validate:"required"`
	RequestID       string          `json:"requestId" validate:"max=64"`
	Phase           string          `json:"phase"`
	ParticipantID   string          `json:"participantId" validate:"max=128"`
	ParticipantName string          `json:"participantName" validate:"max=128"`
	Kind            string          `json:"kind" validate:"required_if=Type signal"`
	Payload         json.RawMessage `json:"payload"`
}

type signalFrame struct {
	Kind    string          `validate:"oneof=offer answer candidate"`
	Payload json.RawMessage `validate:"required"`
}

// Decode turns a raw frame into a command. The request id is returned
// even on failure so the rejection can be correlated by the client.
func Decode(data []byte) (meeting.Command, string, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, f.RequestID, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	switch f.Type {
	case "claim":
		return meeting.ClaimToken{}, f.RequestID, nil
	case "release":
		return meeting.ReleaseToken{}, f.RequestID, nil
	case "force_release":
		return meeting.ForceReleaseToken{}, f.RequestID, nil
	case "change_phase":
		return meeting.ChangePhase{Phase: f.Phase}, f.RequestID, nil
	case "join":
		return meeting.Join{
			ParticipantID:   meeting.ParticipantID(f.ParticipantID),
			ParticipantName: f.ParticipantName,
		}, f.RequestID, nil
	case "leave":
		return meeting.Leave{ParticipantID: meeting.ParticipantID(f.ParticipantID)}, f.RequestID, nil
	case "signal":
		if err := validate.Struct(signalFrame{Kind: f.Kind, Payload: f.Payload}); err != nil {
			return nil, f.RequestID, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		kind := meeting.SignalKind(f.Kind)
		if err := checkSignal(kind, f.Payload); err != nil {
			return nil, f.RequestID, err
		}
		return meeting.Signal{Kind: kind, Payload: []byte(f.Payload)}, f.RequestID, nil
	default:
		return nil, f.RequestID, fmt.Errorf("%q: %w", f.Type, errors.ErrUnknownCommand)
	}
}

// checkSignal makes sure a relayed payload is a session description or an ICE candidate
// a peer can actually use. The payload itself is relayed untouched.
func checkSignal(kind meeting.SignalKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty %s: %w", kind, errors.ErrInvalidPayload)
	}
	switch kind {
	case meeting.SignalOffer, meeting.SignalAnswer:
		var desc struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		}
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("%s: %w", kind, errors.ErrInvalidPayload)
		}
		if desc.Type != "" && desc.Type != string(kind) {
			return fmt.Errorf("%s carries a %s: %w", kind, desc.Type, errors.ErrInvalidPayload)
		}
		sdpType := webrtc.SDPTypeOffer
		if kind == meeting.SignalAnswer {
			sdpType = webrtc.SDPTypeAnswer
		}
		description := webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}
		if _, err := description.Unmarshal(); err != nil {
			return fmt.Errorf("%s sdp: %v: %w", kind, err, errors.ErrInvalidPayload)
		}
	case meeting.SignalCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &candidate); err != nil || candidate.Candidate == "" {
			return fmt.Errorf("candidate: %w", errors.ErrInvalidPayload)
		}
	}
	return nil
}

// OutboundFrame is every message the server sends on a connection.
type OutboundFrame struct {
	Type      string          `json:"type"`
	Data      any             `json:"data,omitempty"`
	Version   *uint64         `json:"version,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

type tokenData struct {
	EventID        string                 `json:"event_id"`
	ParticipantID  *meeting.ParticipantID `json:"participant_id"`
	PreviousHolder *meeting.ParticipantID `json:"previous_holder"`
	EventType      string                 `json:"event_type"`
	IsActive       bool                   `json:"is_active"`
	By             meeting.ParticipantID  `json:"by,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

type phaseData struct {
	EventID       string                `json:"event_id"`
	PhaseName     meeting.Phase         `json:"phase_name"`
	PreviousPhase *meeting.Phase        `json:"previous_phase"`
	StartedBy     meeting.ParticipantID `json:"started_by,omitempty"`
	IsCurrent     bool                  `json:"is_current"`
	Timestamp     time.Time             `json:"timestamp"`
}

type memberData struct {
	ParticipantID   meeting.ParticipantID `json:"participant_id"`
	ParticipantName string                `json:"participant_name,omitempty"`
	Role            meeting.Role          `json:"role,omitempty"`
}

type phaseRecordData struct {
	Phase      meeting.Phase         `json:"phase"`
	StartedBy  meeting.ParticipantID `json:"started_by,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	Superseded bool                  `json:"superseded"`
}

type peersData struct {
	Participants []memberData `json:"participants"`
	Token        struct {
		Holder  *meeting.ParticipantID `json:"holder"`
		Version uint64                 `json:"version"`
	} `json:"token"`
	Phase struct {
		Current meeting.Phase     `json:"current"`
		History []phaseRecordData `json:"history"`
	} `json:"phase"`

	// Actions granted to the receiving connection, for the client to enable its controls.
	Actions []permission.Action `json:"actions"`
}

// Encode renders a room event for the connection of self.
// The peer list of a snapshot leaves self out.
func Encode(evt event.DomainEvent, self meeting.ParticipantID) (OutboundFrame, bool) {
	switch e := evt.(type) {
	case event.TokenChanged:
		return OutboundFrame{
			Type: "token_changed",
			Data: tokenData{
				EventID:        e.ID.String(),
				ParticipantID:  e.Holder,
				PreviousHolder: e.Previous,
				EventType:      string(e.Kind),
				IsActive:       e.Holder != nil,
				By:             e.By,
				Timestamp:      e.At,
			},
			Version: lo.ToPtr(e.Version),
		}, true
	case event.PhaseChanged:
		var previous *meeting.Phase
		if e.Previous != "" {
			previous = lo.ToPtr(e.Previous)
		}
		return OutboundFrame{
			Type: "phase_changed",
			Data: phaseData{
				EventID:       e.ID.String(),
				PhaseName:     e.Phase,
				PreviousPhase: previous,
				StartedBy:     e.StartedBy,
				IsCurrent:     true,
				Timestamp:     e.At,
			},
			Version: lo.ToPtr(e.Version),
		}, true
	case event.ParticipantJoined:
		return OutboundFrame{
			Type: "participant_joined",
			Data: memberData{ParticipantID: e.Participant, ParticipantName: e.Name, Role: e.Role},
		}, true
	case event.ParticipantLeft:
		return OutboundFrame{
			Type: "participant_left",
			Data: memberData{ParticipantID: e.Participant},
		}, true
	case event.SignalRelayed:
		return OutboundFrame{
			Type:    "signal",
			Sender:  string(e.Sender),
			Kind:    string(e.Kind),
			Payload: json.RawMessage(e.Payload),
		}, true
	case event.RoomSnapshot:
		return OutboundFrame{Type: "peers", Data: toPeers(e.View, self)}, true
	default:
		return OutboundFrame{}, false
	}
}

func toPeers(view meeting.View, self meeting.ParticipantID) peersData {
	var data peersData
	others := lo.Filter(view.Members, func(m meeting.Member, _ int) bool {
		return m.ParticipantID != self
	})
	data.Participants = lo.Map(others, func(m meeting.Member, _ int) memberData {
		return memberData{ParticipantID: m.ParticipantID, ParticipantName: m.Name, Role: m.Role}
	})
	data.Actions = []permission.Action{}
	if me, ok := lo.Find(view.Members, func(m meeting.Member) bool { return m.ParticipantID == self }); ok {
		data.Actions = permission.Actions(me.Role)
	}
	data.Token.Holder = view.Token.Holder
	data.Token.Version = view.Token.Version
	data.Phase.Current = view.Phase.Current
	data.Phase.History = lo.Map(view.Phase.History, func(r meeting.PhaseRecord, _ int) phaseRecordData {
		return phaseRecordData{Phase: r.Phase, StartedBy: r.StartedBy, StartedAt: r.StartedAt, Superseded: r.Superseded}
	})
	return data
}

// ErrorFrame is the rejection sent back to the connection that issued a failed action.
func ErrorFrame(requestID string, err error) OutboundFrame {
	return OutboundFrame{
		Type:      "error",
		Code:      errors.Code(err),
		Message:   err.Error(),
		RequestID: requestID,
	}
}
