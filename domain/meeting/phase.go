package meeting

import (
	"fmt"
	"orchestra/errors"
	"time"
)

type Phase string

const (
	PhaseIdeation      Phase = "ideation"
	PhaseClarification Phase = "clarification"
	PhaseDecision      Phase = "decision"
	PhaseFeedback      Phase = "feedback"
)

// phaseGraph lists every phase in forward-only order, feedback is terminal.
var phaseGraph = []Phase{PhaseIdeation, PhaseClarification, PhaseDecision, PhaseFeedback}

func ParsePhase(s string) (Phase, error) {
	for _, p := range phaseGraph {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, errors.ErrInvalidPhase)
}

// Next returns the immediate successor of p, false when p is terminal or unknown.
func (p Phase) Next() (Phase, bool) {
	for i, candidate := range phaseGraph {
		if candidate == p && i+1 < len(phaseGraph) {
			return phaseGraph[i+1], true
		}
	}
	return "", false
}

type PhaseRecord struct {
	Phase      Phase
	StartedBy  ParticipantID
	StartedAt  time.Time
	Superseded bool
}

// PhaseState keeps the current phase and an append-only history.
// Current always equals the phase of the last history record.
type PhaseState struct {
	Current Phase
	History []PhaseRecord
}

func NewPhaseState(startedBy ParticipantID, at time.Time) PhaseState {
	return PhaseState{
		Current: PhaseIdeation,
		History: []PhaseRecord{{Phase: PhaseIdeation, StartedBy: startedBy, StartedAt: at}},
	}
}

// Advance moves to requested if it is the immediate successor of the current phase.
// The previous record is marked superseded, never removed.
func (s *PhaseState) Advance(requested string, by ParticipantID, at time.Time) (PhaseRecord, error) {
	phase, err := ParsePhase(requested)
	if err != nil {
		return PhaseRecord{}, err
	}
	next, ok := s.Current.Next()
	if !ok || next != phase {
		return PhaseRecord{}, fmt.Errorf("%s -> %s: %w", s.Current, phase, errors.ErrIllegalTransition)
	}
	if n := len(s.History); n > 0 {
		s.History[n-1].Superseded = true
	}
	record := PhaseRecord{Phase: phase, StartedBy: by, StartedAt: at}
	s.History = append(s.History, record)
	s.Current = phase
	return record, nil
}

// Version is the number of phases the room went through.
func (s PhaseState) Version() uint64 {
	return uint64(len(s.History))
}

// Clone returns a copy whose history can be handed out of the critical section.
func (s PhaseState) Clone() PhaseState {
	history := make([]PhaseRecord, len(s.History))
	copy(history, s.History)
	return PhaseState{Current: s.Current, History: history}
}
