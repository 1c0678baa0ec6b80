package meeting

import (
	"orchestra/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenState_Claim_Then_Release(t *testing.T) {
	req := require.New(t)
	token := TokenState{}

	// Given an unheld token
	req.False(token.IsHeld())

	// When alice claims it
	change, err := token.Claim("alice")

	// Then alice holds it and the version moved once
	req.NoError(err)
	req.Equal(TokenClaimed, change.Kind)
	req.Equal(ParticipantID("alice"), *change.Holder)
	req.Equal(uint64(1), change.Version)
	req.True(token.HeldBy("alice"))

	// When alice releases it
	change, err = token.Release("alice")

	// Then the token is unheld and alice is recorded as previous holder
	req.NoError(err)
	req.Equal(TokenReleased, change.Kind)
	req.Nil(change.Holder)
	req.Equal(ParticipantID("alice"), *change.Previous)
	req.Equal(uint64(2), token.Version)
	req.False(token.IsHeld())
}

func TestTokenState_Claim_Rejected_When_Held(t *testing.T) {
	req := require.New(t)
	token := TokenState{}
	_, err := token.Claim("alice")
	req.NoError(err)

	// When bob claims a token held by alice
	_, err = token.Claim("bob")
	req.ErrorIs(err, errors.ErrAlreadyHeld)

	// When alice claims her own token again
	_, err = token.Claim("alice")
	req.ErrorIs(err, errors.ErrAlreadyHeld)

	// Then nothing changed
	req.True(token.HeldBy("alice"))
	req.Equal(uint64(1), token.Version)
}

func TestTokenState_Release_By_Non_Holder(t *testing.T) {
	req := require.New(t)
	token := TokenState{}

	// Given an unheld token, release is rejected
	_, err := token.Release("alice")
	req.ErrorIs(err, errors.ErrNotHolder)

	// Given alice holds the token, bob cannot release it
	_, err = token.Claim("alice")
	req.NoError(err)
	_, err = token.Release("bob")
	req.ErrorIs(err, errors.ErrNotHolder)

	req.True(token.HeldBy("alice"))
	req.Equal(uint64(1), token.Version)
}

func TestTokenState_ForceRelease(t *testing.T) {
	req := require.New(t)
	token := TokenState{}
	_, err := token.Claim("alice")
	req.NoError(err)

	// When the token is forced back
	change := token.ForceRelease()

	// Then it is unheld and alice is kept for audit
	req.Equal(TokenForceRelease, change.Kind)
	req.Equal(ParticipantID("alice"), *change.Previous)
	req.False(token.IsHeld())
	req.Equal(uint64(2), change.Version)

	// Forcing an unheld token still moves the version
	change = token.ForceRelease()
	req.Nil(change.Previous)
	req.Equal(uint64(3), change.Version)
}
