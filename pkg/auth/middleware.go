package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

type contextKey string

const (
	tokenHeader            = "Authorization"
	tokenPrefix            = "Bearer "
	identityKey contextKey = "identity"
)

// NewAuthInterceptor puts the caller's Identity into the context when the
// request carries a bearer token. Anonymous requests pass through; handlers
// that need a caller use RequireIdentity. A malformed or invalid token is
// always rejected.
func NewAuthInterceptor(verifier *Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get(tokenHeader)
			if authHeader == "" {
				return next(ctx, req)
			}

			if !strings.HasPrefix(authHeader, tokenPrefix) {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid authorization header format"))
			}

			id, err := verifier.Verify(strings.TrimPrefix(authHeader, tokenPrefix))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}

			return next(WithIdentity(ctx, id), req)
		}
	}
}

// WithIdentity returns a context carrying the caller's identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity retrieves the caller's identity from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireIdentity returns the caller or a connect Unauthenticated error.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return Identity{}, connect.NewError(connect.CodeUnauthenticated, errors.New("missing authorization header"))
	}
	return id, nil
}
