package meeting

import (
	"orchestra/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPhaseState_Forward_Only(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	state := NewPhaseState("", at)

	// Given a room in ideation
	req.Equal(PhaseIdeation, state.Current)

	// When skipping or staying, the transition is illegal
	_, err := state.Advance("decision", "facilitator", at)
	req.ErrorIs(err, errors.ErrIllegalTransition)
	_, err = state.Advance("ideation", "facilitator", at)
	req.ErrorIs(err, errors.ErrIllegalTransition)

	// When walking the graph in order, every step is accepted
	for _, next := range []Phase{PhaseClarification, PhaseDecision, PhaseFeedback} {
		record, err := state.Advance(string(next), "facilitator", at)
		req.NoError(err)
		req.Equal(next, record.Phase)
		req.Equal(next, state.Current)
	}

	// Then feedback is terminal
	_, err = state.Advance("ideation", "facilitator", at)
	req.ErrorIs(err, errors.ErrIllegalTransition)

	// And the history is append only with every previous record superseded
	req.Len(state.History, 4)
	for _, record := range state.History[:3] {
		req.True(record.Superseded)
	}
	req.False(state.History[3].Superseded)
	req.Equal(uint64(4), state.Version())
}

func TestPhaseState_Unknown_Phase(t *testing.T) {
	req := require.New(t)
	state := NewPhaseState("", time.Now())

	_, err := state.Advance("brainstorming", "facilitator", time.Now())

	req.ErrorIs(err, errors.ErrInvalidPhase)
	req.Len(state.History, 1)
}

func TestPhaseState_Clone_Does_Not_Share_History(t *testing.T) {
	req := require.New(t)
	state := NewPhaseState("", time.Now())
	clone := state.Clone()

	_, err := state.Advance("clarification", "facilitator", time.Now())
	req.NoError(err)

	req.Len(clone.History, 1)
	req.False(clone.History[0].Superseded)
}
