// Package meeting contains the core concepts of a live meeting room:
// roles, the expression token, the phase graph and the inbound command set.
// No runtime, network or storage logic should be added here.
package meeting

import (
	"fmt"
	"orchestra/errors"
	"time"
)

type RoomID string

type ParticipantID string

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleFacilitator Role = "facilitator"
	RoleParticipant Role = "participant"
	RoleObserver    Role = "observer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleFacilitator, RoleParticipant, RoleObserver:
		return r, nil
	default:
		return "", fmt.Errorf("%q: %w", s, errors.ErrUnknownRole)
	}
}

// Caller is the identity resolved by the authentication provider for a single action.
type Caller struct {
	ParticipantID ParticipantID
	Name          string
	Role          Role
}

// Member is a participant currently connected to a room.
type Member struct {
	ParticipantID ParticipantID
	Name          string
	Role          Role
	JoinedAt      time.Time
}
