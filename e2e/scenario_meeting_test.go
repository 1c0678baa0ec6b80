//go:build e2e

package e2e

import (
	"context"
	"testing"

	"orchestra/domain/meeting"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type testMeetingSuite struct {
	BaseSuite
}

func TestMeetingSuite(t *testing.T) {
	suite.Run(t, &testMeetingSuite{})
}

func (s *testMeetingSuite) TestFullMeetingFlow() {
	meetingID := "e2e-" + uuid.NewString()

	s.Run("Step 0: Master is serving", func() {
		s.WithHealth("Health check", func(ctx context.Context, client grpc_health_v1.HealthClient) {
			resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
			s.Require().NoError(err)
			s.Require().Equal(grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
		})
	})

	alice := s.Connect(meetingID, "alice", meeting.RoleParticipant)
	bob := s.Connect(meetingID, "bob", meeting.RoleParticipant)
	carol := s.Connect(meetingID, "carol", meeting.RoleFacilitator)

	s.Run("Step 1: Everybody joins", func() {
		for _, p := range []*Peer{alice, bob, carol} {
			p.Send(map[string]any{"type": "join"})
			p.Expect("peers")
		}
	})

	s.Run("Step 2: Alice takes the token, Bob is refused", func() {
		alice.Send(map[string]any{"type": "claim"})
		for _, p := range []*Peer{alice, bob, carol} {
			f := p.Expect("token_changed")
			s.Equal("alice", f.Data["participant_id"])
		}
		bob.Send(map[string]any{"type": "claim", "requestId": "bob-1"})
		f := bob.Expect("error")
		s.Equal("already_held", f.Code)
		s.Equal("bob-1", f.RequestID)
	})

	s.Run("Step 3: Carol preempts and moves on", func() {
		carol.Send(map[string]any{"type": "force_release"})
		for _, p := range []*Peer{alice, bob, carol} {
			f := p.Expect("token_changed")
			s.Nil(f.Data["participant_id"])
			s.Equal("force_release", f.Data["event_type"])
		}
		carol.Send(map[string]any{"type": "change_phase", "phase": "clarification"})
		for _, p := range []*Peer{alice, bob, carol} {
			f := p.Expect("phase_changed")
			s.Equal("clarification", f.Data["phase_name"])
		}
	})

	s.Run("Step 4: Bob leaves", func() {
		bob.Send(map[string]any{"type": "leave"})
		for _, p := range []*Peer{alice, carol} {
			f := p.Expect("participant_left")
			s.Equal("bob", f.Data["participant_id"])
		}
	})
}
