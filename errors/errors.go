package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrPermissionDenied   = fmt.Errorf("permission denied")
	ErrAlreadyHeld        = fmt.Errorf("token already held")
	ErrNotHolder          = fmt.Errorf("caller does not hold the token")
	ErrInvalidPhase       = fmt.Errorf("invalid phase")
	ErrIllegalTransition  = fmt.Errorf("illegal phase transition")
	ErrUnknownRoom        = fmt.Errorf("unknown room")
	ErrUnknownConnection  = fmt.Errorf("unknown connection")
	ErrUnknownRole        = fmt.Errorf("unknown role")
	ErrUnknownCommand     = fmt.Errorf("unknown command")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrSlowConsumer       = fmt.Errorf("connection queue full")
	ErrCorruptedRoom      = fmt.Errorf("room state corrupted")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrIdentityMismatch   = fmt.Errorf("participant id does not match credential")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrPermissionDenied, "permission_denied"},
	{ErrAlreadyHeld, "already_held"},
	{ErrNotHolder, "not_holder"},
	{ErrInvalidPhase, "invalid_phase"},
	{ErrIllegalTransition, "illegal_transition"},
	{ErrUnknownRoom, "unknown_room"},
	{ErrUnknownConnection, "unknown_connection"},
	{ErrUnknownRole, "unknown_role"},
	{ErrUnknownCommand, "unknown_command"},
	{ErrInvalidToken, "invalid_token"},
	{ErrMissingCredentials, "invalid_token"},
	{ErrInvalidPayload, "invalid_payload"},
	{ErrIdentityMismatch, "permission_denied"},
	{ErrCorruptedRoom, "room_reset"},
}

// Code maps an error to the code sent back to a client in a rejection frame.
func Code(err error) string {
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
