package auth

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey int

const (
	// identityKey is the context key for storing authenticated user identity.
	identityKey contextKey = iota
)

// WithIdentity returns a new context with the given user identity.
// Used by auth middleware to propagate authenticated user info.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated user identity from context.
// Returns empty string if no identity is set (unauthenticated request).
func IdentityFromContext(ctx context.Context) string {
	identity, ok := ctx.Value(identityKey).(string)
	if !ok {
		return ""
	}
	return identity
}

// ExtractToken extracts the bearer token from incoming gRPC metadata.
// Returns empty string if the header is missing.
func ExtractToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", nil
	}

	token, err := TokenFromAuthorizationHeader(authHeaders[0])
	if err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return token, nil
}

// validateGRPC validates token and converts failures to gRPC status errors.
func validateGRPC(ctx context.Context, token string, authenticator Authenticator) (context.Context, error) {
	ctx, err := ValidateToken(ctx, token, authenticator)
	switch {
	case err == nil:
		return ctx, nil
	case errors.Is(err, ErrTokenIsEmpty):
		return ctx, status.Error(codes.Unauthenticated, "missing bearer token")
	default:
		return ctx, status.Error(codes.Unauthenticated, "invalid token")
	}
}
