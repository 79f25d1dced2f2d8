package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload is the identity MintAccessToken encodes.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the decoded access token. The JTI (RegisteredClaims.ID)
// names the server-side session created at login.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}

func (c *AccessTokenClaims) validate(issuer string) error {
	switch {
	case c.Issuer != issuer:
		return fmt.Errorf("unexpected issuer %q", c.Issuer)
	case c.UserID == uuid.Nil:
		return errors.New("user id missing")
	case c.Subject != c.UserID.String():
		return errors.New("subject does not match user id")
	case !c.Role.IsValid():
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
