package meeting

import (
	"fmt"
	"orchestra/errors"
)

type TokenChangeKind string

const (
	TokenClaimed      TokenChangeKind = "claim"
	TokenReleased     TokenChangeKind = "release"
	TokenForceRelease TokenChangeKind = "force_release"
)

// TokenState is the expression token of a room.
// A nil Holder means the token is unheld.
type TokenState struct {
	Holder  *ParticipantID
	Version uint64
}

// TokenChange describes one accepted transition of the token.
type TokenChange struct {
	Kind     TokenChangeKind
	Holder   *ParticipantID
	Previous *ParticipantID
	Version  uint64
}

func (t TokenState) IsHeld() bool {
	return t.Holder != nil
}

func (t TokenState) HeldBy(p ParticipantID) bool {
	return t.Holder != nil && *t.Holder == p
}

// Claim moves the token from unheld to held by p.
// Re-claiming a token already held by p is rejected as well.
func (t *TokenState) Claim(p ParticipantID) (TokenChange, error) {
	if t.IsHeld() {
		return TokenChange{}, fmt.Errorf("held by %s: %w", *t.Holder, errors.ErrAlreadyHeld)
	}
	holder := p
	t.Holder = &holder
	t.Version++
	return TokenChange{Kind: TokenClaimed, Holder: t.Holder, Version: t.Version}, nil
}

// Release gives the token back. Only the current holder may do it.
func (t *TokenState) Release(p ParticipantID) (TokenChange, error) {
	if !t.HeldBy(p) {
		return TokenChange{}, errors.ErrNotHolder
	}
	previous := t.Holder
	t.Holder = nil
	t.Version++
	return TokenChange{Kind: TokenReleased, Previous: previous, Version: t.Version}, nil
}

// ForceRelease unconditionally moves the token to unheld.
// The permission check belongs to the caller.
func (t *TokenState) ForceRelease() TokenChange {
	previous := t.Holder
	t.Holder = nil
	t.Version++
	return TokenChange{Kind: TokenForceRelease, Previous: previous, Version: t.Version}
}
