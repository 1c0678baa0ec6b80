package auth

import (
	"fmt"
	"orchestra/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// identity is the part of the claims a caller is built from.
type identity struct {
	ParticipantID string `validate:"required,max=128,printascii"`
	Name          string `validate:"max=128"`
	Role          string `validate:"required"`
}

func validateIdentity(id identity) error {
	if err := validate.Struct(id); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return nil
}
