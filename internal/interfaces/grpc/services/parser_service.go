// Package services implements the sigparse gRPC services. Messages travel
// as google.protobuf.Struct so no generated code is needed.
package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ParserServiceName is the fully qualified gRPC service name.
const ParserServiceName = "sigparse.v1.Parser"

// Full method names, as used by clients and interceptors.
const (
	ParseMethod      = "/" + ParserServiceName + "/Parse"
	ParseBatchMethod = "/" + ParserServiceName + "/ParseBatch"
)

// ParserServer is the server API for sigparse.v1.Parser.
type ParserServer interface {
	// Parse takes {"id"?, "text"} and returns {"results": [...]}.
	Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// ParseBatch takes {"texts", "ids"?, "mode"?} and returns
	// {"batchId", "results": [...]}.
	ParseBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ParserServiceDesc describes sigparse.v1.Parser for grpc.Server.
var ParserServiceDesc = grpc.ServiceDesc{
	ServiceName: ParserServiceName,
	HandlerType: (*ParserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: parseHandler},
		{MethodName: "ParseBatch", Handler: parseBatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sigparse/v1/parser.proto",
}

func parseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParserServer).Parse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ParseMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ParserServer).Parse(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func parseBatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParserServer).ParseBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ParseBatchMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ParserServer).ParseBatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Parser is the slice of *parsing.Parser the service needs.
type Parser interface {
	ParseWithID(ctx context.Context, id *string, text string) []*instruction.StructuredInstruction
	ParseBatch(ctx context.Context, batchID string, inputs []parsing.Input, mode parsing.Mode) ([]*instruction.StructuredInstruction, error)
}

// ParseRequest is the JSON shape of a Parse request.
type ParseRequest struct {
	ID   *string `json:"id,omitempty"`
	Text *string `json:"text"`
}

// BatchRequest is the JSON shape of a ParseBatch request.
type BatchRequest struct {
	Texts []string `json:"texts"`
	IDs   []string `json:"ids,omitempty"`
	Mode  string   `json:"mode,omitempty"`
}

// ParseResponse is the JSON shape of both responses. BatchID is set by
// ParseBatch only.
type ParseResponse struct {
	BatchID string                               `json:"batchId,omitempty"`
	Results []*instruction.StructuredInstruction `json:"results"`
}

// ParserService implements ParserServer over a Parser.
type ParserService struct {
	parser Parser
	logger logging.Logger
	newID  func() string
}

var _ ParserServer = (*ParserService)(nil)

// NewParserService creates the service.
func NewParserService(parser Parser, logger logging.Logger) *ParserService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ParserService{parser: parser, logger: logger.Named("grpc_parser"), newID: uuid.NewString}
}

// Parse implements ParserServer.
func (s *ParserService) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ParseRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if in.Text == nil {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	results := s.parser.ParseWithID(ctx, in.ID, *in.Text)
	return s.respond(ParseResponse{Results: results})
}

// ParseBatch implements ParserServer.
func (s *ParserService) ParseBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in BatchRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	var mode parsing.Mode
	if in.Mode != "" {
		m, err := parsing.ParseMode(in.Mode)
		if err != nil {
			return nil, ToStatus(err)
		}
		mode = m
	}
	inputs, err := parsing.NewInputs(in.Texts, in.IDs)
	if err != nil {
		return nil, ToStatus(err)
	}

	batchID := s.newID()
	results, err := s.parser.ParseBatch(ctx, batchID, inputs, mode)
	if err != nil {
		s.logger.Warn("batch parse failed", logging.String("batch_id", batchID), logging.Err(err))
		return nil, ToStatus(err)
	}
	if results == nil {
		results = []*instruction.StructuredInstruction{}
	}
	return s.respond(ParseResponse{BatchID: batchID, Results: results})
}

func (s *ParserService) respond(resp ParseResponse) (*structpb.Struct, error) {
	out, err := ToStruct(resp)
	if err != nil {
		s.logger.Error("failed to encode response", logging.Err(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// ToStruct converts any JSON-marshalable value to a Struct.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStruct decodes s into v through its JSON form. A nil s decodes as {}.
func FromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ToStatus maps an AppError onto the closest gRPC status. Messages of
// server-side failures are replaced with the code's default.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := errors.GetCode(err)
	httpStatus := errors.HTTPStatusForCode(code)

	var grpcCode codes.Code
	switch httpStatus {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		grpcCode = codes.InvalidArgument
	case http.StatusNotFound:
		grpcCode = codes.NotFound
	case http.StatusConflict:
		grpcCode = codes.AlreadyExists
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		grpcCode = codes.ResourceExhausted
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		grpcCode = codes.Unavailable
	case http.StatusGatewayTimeout:
		grpcCode = codes.DeadlineExceeded
	default:
		grpcCode = codes.Internal
	}

	msg := err.Error()
	if httpStatus >= http.StatusInternalServerError {
		msg = errors.DefaultMessageForCode(code)
	}
	return status.Errorf(grpcCode, "[%s] %s", code, msg)
}

// ParserClient calls sigparse.v1.Parser.
type ParserClient struct {
	cc grpc.ClientConnInterface
}

// NewParserClient wraps an established connection.
func NewParserClient(cc grpc.ClientConnInterface) *ParserClient {
	return &ParserClient{cc: cc}
}

// Parse parses one instruction remotely.
func (c *ParserClient) Parse(ctx context.Context, id *string, text string, opts ...grpc.CallOption) (*ParseResponse, error) {
	return c.invoke(ctx, ParseMethod, ParseRequest{ID: id, Text: &text}, opts...)
}

// ParseBatch parses a batch remotely. A nil ids assigns row indices.
func (c *ParserClient) ParseBatch(ctx context.Context, texts, ids []string, mode string, opts ...grpc.CallOption) (*ParseResponse, error) {
	if texts == nil {
		texts = []string{}
	}
	return c.invoke(ctx, ParseBatchMethod, BatchRequest{Texts: texts, IDs: ids, Mode: mode}, opts...)
}

func (c *ParserClient) invoke(ctx context.Context, method string, req interface{}, opts ...grpc.CallOption) (*ParseResponse, error) {
	in, err := ToStruct(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode request")
	}
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	var resp ParseResponse
	if err := FromStruct(out, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode response")
	}
	return &resp, nil
}
