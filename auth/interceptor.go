package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// UnaryServerInterceptor creates a gRPC unary interceptor for authentication.
// Validates bearer tokens and propagates identity via context.
// If no authenticator is provided, requests pass through without auth.
func UnaryServerInterceptor(authenticator Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if authenticator == nil {
			return handler(ctx, req)
		}

		token, err := ExtractToken(ctx)
		if err != nil {
			return nil, err
		}

		ctx, err = validateGRPC(ctx, token, authenticator)
		if err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamServerInterceptor creates a gRPC stream interceptor for authentication.
// Validates bearer tokens and propagates identity via context.
// If no authenticator is provided, requests pass through without auth.
func StreamServerInterceptor(authenticator Authenticator) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if authenticator == nil {
			return handler(srv, ss)
		}

		token, err := ExtractToken(ss.Context())
		if err != nil {
			return err
		}

		ctx, err := validateGRPC(ss.Context(), token, authenticator)
		if err != nil {
			return err
		}

		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapper's custom context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// perRPCCredentials attaches bearer tokens to every gRPC call.
type perRPCCredentials struct {
	source     TokenSource
	requireTLS bool
}

// PerRPCCredentials returns gRPC credentials that send tokens from ts as
// "authorization: Bearer <token>" metadata. Use with grpc.WithPerRPCCredentials.
func PerRPCCredentials(ts TokenSource, requireTLS bool) credentials.PerRPCCredentials {
	return &perRPCCredentials{source: ts, requireTLS: requireTLS}
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c *perRPCCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := c.source.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": AuthorizationHeader(token)}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c *perRPCCredentials) RequireTransportSecurity() bool {
	return c.requireTLS
}
