package auth

import (
	"context"
	"fmt"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is used when no issuer is configured.
const DefaultIssuer = "orchestra"

// CustomClaims defines the structure of the data stored inside the JWT.
// ParticipantID falls back to the standard subject when empty.
type CustomClaims struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a participant.
func GenerateToken(secret, issuer, participantID, name string, role meeting.Role, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		ParticipantID: participantID,
		Name:          name,
		Role:          string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// JWTAuthenticator resolves a bearer token into a caller.
// It is stateless: the same credential is checked again on every action,
// so an expired token stops working in the middle of a session.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (a *JWTAuthenticator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (meeting.Caller, error) {
	if credential == "" {
		return meeting.Caller{}, errors.ErrMissingCredentials
	}
	claims, err := a.ValidateToken(credential)
	if err != nil {
		return meeting.Caller{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	id := identity{ParticipantID: claims.ParticipantID, Name: claims.Name, Role: claims.Role}
	if id.ParticipantID == "" {
		id.ParticipantID = claims.Subject
	}
	if err := validateIdentity(id); err != nil {
		return meeting.Caller{}, err
	}
	role, err := meeting.ParseRole(id.Role)
	if err != nil {
		return meeting.Caller{}, err
	}
	return meeting.Caller{
		ParticipantID: meeting.ParticipantID(id.ParticipantID),
		Name:          id.Name,
		Role:          role,
	}, nil
}
