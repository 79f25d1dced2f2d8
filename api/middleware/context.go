package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Identity is the authenticated caller Auth attaches to the request.
// AccessID is the jti of the presented access token.
type Identity struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	AccessID string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// UserUUIDFromContext fails with UNAUTHORIZED when no user is attached.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id.UserID, nil
}
