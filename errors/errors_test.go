package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_Wrapped_Sentinels(t *testing.T) {
	req := require.New(t)

	req.Equal("already_held", Code(ErrAlreadyHeld))
	req.Equal("not_holder", Code(fmt.Errorf("room M1: %w", ErrNotHolder)))
	req.Equal("illegal_transition", Code(fmt.Errorf("decision: %w", ErrIllegalTransition)))
	req.Equal("permission_denied", Code(ErrIdentityMismatch))
	req.Equal("internal", Code(fmt.Errorf("disk is on fire")))
}
