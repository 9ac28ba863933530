package auth

import (
	"context"

	"github.com/dukerupert/recipebox/internal/model"
)

type contextKey struct{}

// AuthContext is the signed-in identity attached to a request.
type AuthContext struct {
	User    *model.User
	Profile *model.Profile
	Session *model.Session
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.User == nil {
		return ""
	}
	return ac.User.ID
}

// IsOwner reports whether the request's user is ownerID.
func IsOwner(ctx context.Context, ownerID string) bool {
	id := UserID(ctx)
	return id != "" && id == ownerID
}
