package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/internal/reqcontext"
	"github.com/hugr-lab/pagefetch/transport"
)

// FlightServer serves pages of a Backend with Arrow Flight DoGet.
// Embeds BaseFlightServer; every other Flight RPC is unimplemented.
type FlightServer struct {
	flight.BaseFlightServer

	backend *Backend
	alloc   memory.Allocator
}

// FlightServer returns the Flight service of b.
func (b *Backend) FlightServer() *FlightServer {
	return &FlightServer{backend: b, alloc: b.alloc}
}

// ServerOptions returns gRPC server options with the backend's auth interceptors.
//
//	grpcServer := grpc.NewServer(b.ServerOptions()...)
//	b.RegisterFlight(grpcServer)
func (b *Backend) ServerOptions() []grpc.ServerOption {
	if b.auth == nil {
		return nil
	}
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(auth.UnaryServerInterceptor(b.auth)),
		grpc.StreamInterceptor(auth.StreamServerInterceptor(b.auth)),
	}
}

// RegisterFlight registers the Flight service on grpcServer.
// Does NOT start the server.
func (b *Backend) RegisterFlight(grpcServer *grpc.Server) {
	flight.RegisterFlightServiceServer(grpcServer, b.FlightServer())
}

// DoGet decodes a transport.Ticket, answers it and streams the page as a
// single record batch. Page information travels in the schema metadata.
func (s *FlightServer) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := stream.Context()

	ticket, err := transport.DecodeTicket(tkt.GetTicket())
	if err != nil {
		s.backend.logger.Error("Failed to decode ticket", "error", err)
		return status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
	}

	req := Request{
		Identity: auth.IdentityFromContext(ctx),
		Dataset:  ticket.Dataset,
		Query:    ticket.Query,
		PageSize: ticket.PageSize,
		Offset:   ticket.Offset,
	}
	if rc, ok := reqcontext.ExtractIncoming(ctx); ok {
		req.ID, req.Seq = rc.ID, rc.Seq
	}

	res, err := s.backend.answer(ctx, req)
	if err != nil {
		return statusError(err)
	}

	rec, err := buildRecord(s.alloc, res)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to build record: %v", err)
	}
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
	defer w.Close()

	if err := w.Write(rec); err != nil {
		return status.Errorf(codes.Internal, "failed to write record: %v", err)
	}
	return nil
}

// statusError maps a failed answer to a gRPC status.
func statusError(err error) error {
	kind, ok := transport.KindOf(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch kind {
	case transport.KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case transport.KindCanceled:
		return status.Error(codes.Canceled, err.Error())
	case transport.KindNetworkFailure:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// pageMetadata encodes page information as schema metadata.
func pageMetadata(res *transport.Result) arrow.Metadata {
	keys := []string{
		transport.MetadataTotalCount,
		transport.MetadataHasNextPage,
		transport.MetadataHasPreviousPage,
	}
	values := []string{
		strconv.Itoa(res.TotalCount),
		strconv.FormatBool(res.PageInfo.HasNextPage),
		strconv.FormatBool(res.PageInfo.HasPreviousPage),
	}
	if res.PageInfo.StartCursor != "" {
		keys = append(keys, transport.MetadataStartCursor)
		values = append(values, res.PageInfo.StartCursor)
	}
	if res.PageInfo.EndCursor != "" {
		keys = append(keys, transport.MetadataEndCursor)
		values = append(values, res.PageInfo.EndCursor)
	}
	return arrow.NewMetadata(keys, values)
}

// nodeSchema infers a schema from nodes. Fields are sorted by name and typed
// by the first non-nil value; nested values are carried as JSON strings.
func nodeSchema(nodes []transport.Node, md arrow.Metadata) *arrow.Schema {
	types := map[string]arrow.DataType{}
	for _, n := range nodes {
		for k, v := range n {
			if v == nil {
				if _, ok := types[k]; !ok {
					types[k] = nil
				}
				continue
			}
			if types[k] == nil {
				types[k] = valueType(v)
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	slices.Sort(names)

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		dt := types[name]
		if dt == nil {
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, &md)
}

func valueType(v any) arrow.DataType {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// buildRecord converts the nodes of res into a record batch.
func buildRecord(alloc memory.Allocator, res *transport.Result) (arrow.RecordBatch, error) {
	schema := nodeSchema(res.Nodes, pageMetadata(res))
	b := array.NewRecordBuilder(alloc, schema)
	defer b.Release()

	for i, f := range schema.Fields() {
		for _, n := range res.Nodes {
			if err := appendValue(b.Field(i), n[f.Name]); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	return b.NewRecordBatch(), nil
}

func appendValue(fb array.Builder, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch b := fb.(type) {
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		b.Append(x)
	case *array.Int64Builder:
		switch x := v.(type) {
		case int:
			b.Append(int64(x))
		case int32:
			b.Append(int64(x))
		case int64:
			b.Append(x)
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case float32:
			b.Append(float64(x))
		case float64:
			b.Append(x)
		default:
			return fmt.Errorf("expected float, got %T", v)
		}
	case *array.StringBuilder:
		if s, ok := v.(string); ok {
			b.Append(s)
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Append(string(data))
	default:
		return errors.New("unsupported builder")
	}
	return nil
}
