package auth

import (
	"context"
	"net/http"
)

// bearerAuthenticator wraps a user-provided validation function.
type bearerAuthenticator struct {
	validateFunc func(token string) (identity string, err error)
}

// BearerAuth creates an Authenticator from a validation function.
//
// Example:
//
//	auth := BearerAuth(func(token string) (string, error) {
//	    if token != "secret" {
//	        return "", auth.ErrUnauthenticated
//	    }
//	    return "demo", nil
//	})
func BearerAuth(validateFunc func(token string) (identity string, err error)) Authenticator {
	return &bearerAuthenticator{
		validateFunc: validateFunc,
	}
}

// Authenticate implements Authenticator for bearerAuthenticator.
func (b *bearerAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	return b.validateFunc(token)
}

// TokenSource supplies bearer tokens to outgoing requests.
// Implementations MUST be goroutine-safe.
type TokenSource interface {
	// Token returns the current token. An empty token means no authorization header.
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// SetAuthorization sets the authorization header of an HTTP request from ts.
// A nil source or empty token leaves the request unchanged.
func SetAuthorization(ctx context.Context, req *http.Request, ts TokenSource) error {
	if ts == nil {
		return nil
	}
	token, err := ts.Token(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", AuthorizationHeader(token))
	}
	return nil
}
