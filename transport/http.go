package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/internal/reqcontext"
	"github.com/hugr-lab/pagefetch/query"
)

// maxErrorBody bounds the response body quoted in backend errors.
const maxErrorBody = 512

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// Endpoint is the GraphQL endpoint URL.
	// REQUIRED.
	Endpoint string

	// Client sends requests.
	// OPTIONAL: defaults to a client without timeout (use context deadlines).
	Client *http.Client

	// Token supplies the bearer token.
	// OPTIONAL: no authorization header when nil.
	Token auth.TokenSource

	// Headers are added to every request.
	Headers map[string]string

	// Logger for request diagnostics.
	// OPTIONAL: defaults to slog.Default().
	Logger *slog.Logger
}

// HTTPTransport posts GraphQL documents to an HTTP endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	token    auth.TokenSource
	headers  map[string]string
	logger   *slog.Logger
}

// NewHTTP creates an HTTP GraphQL transport.
func NewHTTP(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("transport: HTTP endpoint is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		endpoint: cfg.Endpoint,
		client:   client,
		token:    cfg.Token,
		headers:  cfg.Headers,
		logger:   logger,
	}, nil
}

// graphqlRequest is the JSON body posted to the endpoint.
type graphqlRequest struct {
	Query string `json:"query"`
}

// GraphQLError is a single entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLResponse is the envelope returned by GraphQL endpoints.
type GraphQLResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []GraphQLError             `json:"errors,omitempty"`
}

// graphqlPage is the dataset payload of a GraphQL response.
type graphqlPage struct {
	TotalCount int      `json:"totalCount"`
	PageInfo   PageInfo `json:"pageInfo"`
	Nodes      []Node   `json:"nodes"`
	Edges      []struct {
		Cursor string `json:"cursor"`
		Node   Node   `json:"node"`
	} `json:"edges"`
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	body, err := json.Marshal(graphqlRequest{Query: q.Text})
	if err != nil {
		return nil, NewError(KindBackendError, "encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindNetworkFailure, "http", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	reqcontext.SetHeaders(ctx, req.Header)
	if err := auth.SetAuthorization(ctx, req, t.token); err != nil {
		return nil, NewError(KindNetworkFailure, "auth", err)
	}

	t.logger.Debug("HTTP fetch", "endpoint", t.endpoint, "dataset", q.Dataset)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, Classify("http", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify("http", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewError(KindBackendError, "http",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, maxErrorBody)))
	}

	return DecodeGraphQLResponse(q.Dataset, data)
}

// DecodeGraphQLResponse decodes the page of dataset from a GraphQL response body.
// GraphQL errors and a missing dataset are reported as KindBackendError.
func DecodeGraphQLResponse(dataset string, data []byte) (*Result, error) {
	var resp GraphQLResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, NewError(KindBackendError, "decode", err)
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, NewError(KindBackendError, "graphql", errors.New(strings.Join(msgs, "; ")))
	}

	raw, ok := resp.Data[dataset]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, NewError(KindBackendError, "decode", fmt.Errorf("dataset %q missing from response", dataset))
	}

	var page graphqlPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, NewError(KindBackendError, "decode", err)
	}

	nodes := page.Nodes
	if len(nodes) == 0 && len(page.Edges) > 0 {
		nodes = make([]Node, 0, len(page.Edges))
		for _, e := range page.Edges {
			if e.Node != nil {
				nodes = append(nodes, e.Node)
			}
		}
	}
	if nodes == nil {
		nodes = []Node{}
	}

	pi := page.PageInfo
	if n := len(page.Edges); n > 0 {
		if pi.StartCursor == "" {
			pi.StartCursor = page.Edges[0].Cursor
		}
		if pi.EndCursor == "" {
			pi.EndCursor = page.Edges[n-1].Cursor
		}
	}

	return &Result{
		Nodes:      nodes,
		PageInfo:   pi,
		TotalCount: page.TotalCount,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
