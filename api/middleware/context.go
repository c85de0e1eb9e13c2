package middleware

import "context"

// identity is what Auth learns from a verified access token.
type identity struct {
	userID string
	email  string
	role   string
}

type identityKey struct{}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// EmailFromContext returns the verified account email carried by the access token.
func EmailFromContext(ctx context.Context) string { return identityFrom(ctx).email }

// WithUserID sets only the user id, keeping any email and role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	id := identityFrom(ctx)
	id.userID = userID
	return withIdentity(ctx, id)
}

// WithIdentity seeds the full verified identity, as Auth does after validating a token.
func WithIdentity(ctx context.Context, userID, email, role string) context.Context {
	return withIdentity(ctx, identity{userID: userID, email: email, role: role})
}

func withIdentity(ctx context.Context, id identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}
