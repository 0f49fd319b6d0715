package handler

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/service"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "matters.v1.MattersService"

// UserIDMetadataKey carries the acting user's id on gRPC calls.
const UserIDMetadataKey = "x-user-id"

// MattersServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct documents shaped like the HTTP JSON bodies.
type MattersServer interface {
	ListMatters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetMatter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateMatterField(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTransitions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListFields(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// MattersServiceDesc describes MattersServer to grpc.Server.
var MattersServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MattersServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListMatters", MattersServer.ListMatters),
		unary("GetMatter", MattersServer.GetMatter),
		unary("UpdateMatterField", MattersServer.UpdateMatterField),
		unary("ListTransitions", MattersServer.ListTransitions),
		unary("ListFields", MattersServer.ListFields),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matters/v1/matters.proto",
}

// RegisterMattersServer registers srv on s.
func RegisterMattersServer(s grpc.ServiceRegistrar, srv MattersServer) {
	s.RegisterService(&MattersServiceDesc, srv)
}

func unary(method string, call func(MattersServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MattersServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MattersServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GRPCHandler implements MattersServer
type GRPCHandler struct {
	service MatterService
	log     *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(service MatterService, log *logger.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: service,
		log:     log.Component("grpc"),
	}
}

// ListMatters returns one page of matters.
func (h *GRPCHandler) ListMatters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()

	page, err := intField(in, "page", service.DefaultPage)
	if err != nil {
		return nil, h.mapError("ListMatters", err)
	}
	limit, err := intField(in, "limit", service.DefaultLimit)
	if err != nil {
		return nil, h.mapError("ListMatters", err)
	}

	resp, err := h.service.List(ctx, service.ListRequest{
		Page:      page,
		Limit:     limit,
		SortBy:    stringField(in, "sortBy"),
		SortOrder: stringField(in, "sortOrder"),
		Search:    stringField(in, "search"),
	})
	if err != nil {
		return nil, h.mapError("ListMatters", err)
	}

	return h.reply("ListMatters", resp)
}

// GetMatter returns one matter.
func (h *GRPCHandler) GetMatter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	matter, err := h.service.Get(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, h.mapError("GetMatter", err)
	}
	return h.reply("GetMatter", matter)
}

// UpdateMatterField writes one field and returns the refreshed matter.
func (h *GRPCHandler) UpdateMatterField(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()

	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.mapError("UpdateMatterField", err)
	}

	h.log.Info().
		Str("matter_id", stringField(in, "id")).
		Str("field_id", stringField(in, "fieldId")).
		Msg("gRPC UpdateMatterField called")

	matter, err := h.service.UpdateField(ctx, stringField(in, "id"), service.UpdateFieldRequest{
		FieldID:   stringField(in, "fieldId"),
		FieldType: stringField(in, "fieldType"),
		Value:     in["value"],
	}, actor)
	if err != nil {
		return nil, h.mapError("UpdateMatterField", err)
	}
	return h.reply("UpdateMatterField", matter)
}

// ListTransitions returns a matter's status history.
func (h *GRPCHandler) ListTransitions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	transitions, err := h.service.ListTransitions(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, h.mapError("ListTransitions", err)
	}
	return h.reply("ListTransitions", map[string]any{"data": transitions})
}

// ListFields returns the field catalog.
func (h *GRPCHandler) ListFields(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields, err := h.service.ListFields(ctx)
	if err != nil {
		return nil, h.mapError("ListFields", err)
	}
	return h.reply("ListFields", map[string]any{"data": fields})
}

func (h *GRPCHandler) reply(method string, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, h.mapError(method, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode response"))
	}
	return out, nil
}

// toStruct converts a JSON-serialisable value to a Struct using its JSON
// field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (h *GRPCHandler) mapError(method string, err error) error {
	code := errors.CodeOf(err)
	if code == errors.ErrCodeInternal {
		h.log.Error().Err(err).Str("method", method).Msg("gRPC request failed")
	}
	return mapErrorToGRPC(err)
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := errors.PublicMessage(err)
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Field != "" && appErr.Code != errors.ErrCodeInternal {
		msg = appErr.Field + ": " + msg
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeUnsupportedType:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func stringField(in map[string]any, key string) string {
	s, _ := in[key].(string)
	return s
}

func intField(in map[string]any, key string, def int) (int, error) {
	v, ok := in[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.InvalidInput(key, "must be an integer")
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, errors.InvalidInput(key, "must be an integer")
		}
		return i, nil
	default:
		return 0, errors.InvalidInput(key, "must be an integer")
	}
}

func actorFromMetadata(ctx context.Context) (*int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, nil
	}
	vals := md.Get(UserIDMetadataKey)
	if len(vals) == 0 {
		return nil, nil
	}
	return actorFromHeader(vals[0])
}
