package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/internal/msgpack"
	"github.com/hugr-lab/pagefetch/internal/reqcontext"
	"github.com/hugr-lab/pagefetch/query"
)

// Schema metadata keys carrying page information in Flight responses.
const (
	MetadataTotalCount      = "total_count"
	MetadataHasNextPage     = "has_next_page"
	MetadataHasPreviousPage = "has_previous_page"
	MetadataStartCursor     = "start_cursor"
	MetadataEndCursor       = "end_cursor"
)

// Ticket is the MessagePack payload of a Flight DoGet ticket.
type Ticket struct {
	Dataset    string `msgpack:"dataset"`
	Query      string `msgpack:"query"`
	CountQuery string `msgpack:"count_query,omitempty"`
	Dialect    string `msgpack:"dialect,omitempty"`
	PageSize   int    `msgpack:"page_size,omitempty"`
	Offset     int    `msgpack:"offset,omitempty"`
}

// EncodeTicket creates an opaque ticket for a query.
func EncodeTicket(t Ticket) ([]byte, error) {
	if t.Dataset == "" {
		return nil, errors.New("ticket dataset cannot be empty")
	}
	data, err := msgpack.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}
	return data, nil
}

// DecodeTicket parses an opaque ticket.
func DecodeTicket(data []byte) (*Ticket, error) {
	var t Ticket
	if err := msgpack.Decode(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode ticket: %w", err)
	}
	if t.Dataset == "" {
		return nil, errors.New("decoded ticket has empty dataset")
	}
	return &t, nil
}

// FlightConfig configures a FlightTransport.
type FlightConfig struct {
	// Address is the Flight server address (host:port).
	// REQUIRED.
	Address string

	// DialOptions are passed to the gRPC client.
	// OPTIONAL: defaults to insecure transport credentials.
	DialOptions []grpc.DialOption

	// Token supplies the bearer token sent as per-RPC credentials.
	// OPTIONAL.
	Token auth.TokenSource

	// Allocator for decoding record batches.
	// OPTIONAL: defaults to memory.DefaultAllocator.
	Allocator memory.Allocator

	// Logger for request diagnostics.
	// OPTIONAL: defaults to slog.Default().
	Logger *slog.Logger
}

// FlightTransport fetches pages with Arrow Flight DoGet.
type FlightTransport struct {
	client flight.Client
	alloc  memory.Allocator
	logger *slog.Logger
}

// NewFlight dials a Flight server.
func NewFlight(cfg FlightConfig) (*FlightTransport, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport: Flight address is required")
	}

	opts := cfg.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	if cfg.Token != nil {
		opts = append(opts, grpc.WithPerRPCCredentials(auth.PerRPCCredentials(cfg.Token, false)))
	}

	client, err := flight.NewClientWithMiddleware(cfg.Address, nil, nil, opts...)
	if err != nil {
		return nil, NewError(KindNetworkFailure, "dial", err)
	}

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FlightTransport{client: client, alloc: alloc, logger: logger}, nil
}

// Close closes the underlying gRPC connection.
func (t *FlightTransport) Close() error {
	return t.client.Close()
}

// Fetch implements Transport.
func (t *FlightTransport) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	ticket, err := EncodeTicket(Ticket{
		Dataset:    q.Dataset,
		Query:      q.Text,
		CountQuery: q.CountText,
		Dialect:    string(q.Dialect),
		PageSize:   q.PageSize,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, NewError(KindBackendError, "encode", err)
	}

	ctx = reqcontext.AppendToOutgoing(ctx)
	t.logger.Debug("Flight fetch", "dataset", q.Dataset, "ticket_size", len(ticket))

	stream, err := t.client.DoGet(ctx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		return nil, classifyGRPC(ctx, "flight", err)
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(t.alloc))
	if err != nil {
		return nil, classifyGRPC(ctx, "flight", err)
	}
	defer reader.Release()

	res := &Result{Nodes: []Node{}}
	for reader.Next() {
		nodes, err := recordNodes(reader.RecordBatch())
		if err != nil {
			return nil, NewError(KindBackendError, "decode", err)
		}
		res.Nodes = append(res.Nodes, nodes...)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, classifyGRPC(ctx, "flight", err)
	}

	res.TotalCount = q.Offset + len(res.Nodes)
	readPageMetadata(reader.Schema(), res)
	return res, nil
}

// readPageMetadata fills page information from schema metadata.
func readPageMetadata(schema *arrow.Schema, res *Result) {
	if schema == nil {
		return
	}
	md := schema.Metadata()
	get := func(key string) (string, bool) {
		i := md.FindKey(key)
		if i < 0 {
			return "", false
		}
		return md.Values()[i], true
	}

	if v, ok := get(MetadataTotalCount); ok {
		if n, err := strconv.Atoi(v); err == nil {
			res.TotalCount = n
		}
	}
	if v, ok := get(MetadataHasNextPage); ok {
		res.PageInfo.HasNextPage, _ = strconv.ParseBool(v)
	}
	if v, ok := get(MetadataHasPreviousPage); ok {
		res.PageInfo.HasPreviousPage, _ = strconv.ParseBool(v)
	}
	if v, ok := get(MetadataStartCursor); ok {
		res.PageInfo.StartCursor = v
	}
	if v, ok := get(MetadataEndCursor); ok {
		res.PageInfo.EndCursor = v
	}
}

// recordNodes converts a record batch into nodes keyed by field name.
// Struct columns become nested maps.
func recordNodes(rec arrow.RecordBatch) ([]Node, error) {
	schema := rec.Schema()
	rows := int(rec.NumRows())
	nodes := make([]Node, rows)
	for i := range nodes {
		nodes[i] = make(Node, schema.NumFields())
	}

	for c := 0; c < int(rec.NumCols()); c++ {
		name := schema.Field(c).Name
		col := rec.Column(c)
		for i := 0; i < rows; i++ {
			v, err := arrowValue(col, i)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
			}
			nodes[i][name] = v
		}
	}
	return nodes, nil
}

// arrowValue returns the Go value of a single array element.
func arrowValue(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	v := arr.GetOneForMarshal(i)
	if raw, ok := v.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return v, nil
}

// classifyGRPC maps gRPC status codes to error kinds.
func classifyGRPC(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Classify(op, ctxErr)
	}
	st, ok := status.FromError(err)
	if !ok {
		return Classify(op, err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return NewError(KindNetworkFailure, op, err)
	case codes.DeadlineExceeded:
		return NewError(KindTimeout, op, err)
	case codes.Canceled:
		return NewError(KindCanceled, op, err)
	default:
		return NewError(KindBackendError, op, err)
	}
}
