// Package reqcontext carries per-fetch request metadata (request id and
// sequence number) through contexts, HTTP headers and gRPC metadata.
package reqcontext

import (
	"context"
	"net/http"
	"strconv"

	"google.golang.org/grpc/metadata"
)

const (
	// RequestIDHeader and RequestSeqHeader are the HTTP header names.
	RequestIDHeader  = "X-Request-Id"
	RequestSeqHeader = "X-Request-Seq"

	// RequestIDMetadata and RequestSeqMetadata are the gRPC metadata keys.
	RequestIDMetadata  = "pagefetch-request-id"
	RequestSeqMetadata = "pagefetch-request-seq"
)

// Request identifies a single fetch.
type Request struct {
	ID  string
	Seq uint64
}

// requestKey is the unexported context key for request metadata.
type requestKey struct{}

// WithRequest returns a new context with the request metadata stored.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// FromContext retrieves the request metadata if present.
func FromContext(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey{}).(Request)
	return req, ok
}

// SetHeaders copies the request metadata of ctx onto HTTP headers.
func SetHeaders(ctx context.Context, h http.Header) {
	req, ok := FromContext(ctx)
	if !ok {
		return
	}
	if req.ID != "" {
		h.Set(RequestIDHeader, req.ID)
	}
	h.Set(RequestSeqHeader, strconv.FormatUint(req.Seq, 10))
}

// FromHeaders extracts request metadata from HTTP headers.
func FromHeaders(h http.Header) (Request, bool) {
	id := h.Get(RequestIDHeader)
	if id == "" {
		return Request{}, false
	}
	seq, _ := strconv.ParseUint(h.Get(RequestSeqHeader), 10, 64)
	return Request{ID: id, Seq: seq}, true
}

// AppendToOutgoing adds the request metadata of ctx to the outgoing gRPC metadata.
// Returns ctx unchanged if no request metadata is stored.
func AppendToOutgoing(ctx context.Context) context.Context {
	req, ok := FromContext(ctx)
	if !ok {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx,
		RequestIDMetadata, req.ID,
		RequestSeqMetadata, strconv.FormatUint(req.Seq, 10),
	)
}

// ExtractIncoming extracts request metadata from incoming gRPC metadata.
func ExtractIncoming(ctx context.Context) (Request, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Request{}, false
	}

	ids := md.Get(RequestIDMetadata)
	if len(ids) == 0 || ids[0] == "" {
		return Request{}, false
	}

	req := Request{ID: ids[0]}
	if seqs := md.Get(RequestSeqMetadata); len(seqs) > 0 {
		req.Seq, _ = strconv.ParseUint(seqs[0], 10, 64)
	}
	return req, true
}

// ExtractAndStore extracts request metadata from incoming gRPC metadata and
// returns a new context with it stored. If none is present, returns ctx unchanged.
func ExtractAndStore(ctx context.Context) context.Context {
	req, ok := ExtractIncoming(ctx)
	if !ok {
		return ctx
	}
	return WithRequest(ctx, req)
}
