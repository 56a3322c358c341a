package handler

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

// WorkflowServiceName is the fully-qualified gRPC service name.
const WorkflowServiceName = "docworkflows.v1.WorkflowService"

// WorkflowServiceServer is the server API for docworkflows.v1.WorkflowService.
// Messages are google.protobuf.Struct so callers need no generated stubs.
type WorkflowServiceServer interface {
	ProcessAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailableActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// WorkflowServiceDesc describes docworkflows.v1.WorkflowService.
var WorkflowServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkflowServiceName,
	HandlerType: (*WorkflowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessAction", Handler: unaryHandler("ProcessAction", WorkflowServiceServer.ProcessAction)},
		{MethodName: "GetAvailableActions", Handler: unaryHandler("GetAvailableActions", WorkflowServiceServer.GetAvailableActions)},
		{MethodName: "GetWorkflow", Handler: unaryHandler("GetWorkflow", WorkflowServiceServer.GetWorkflow)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docworkflows/v1/workflow_service.proto",
}

// RegisterWorkflowServiceServer registers srv on s.
func RegisterWorkflowServiceServer(s grpc.ServiceRegistrar, srv WorkflowServiceServer) {
	s.RegisterService(&WorkflowServiceDesc, srv)
}

func unaryHandler(
	method string,
	call func(WorkflowServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	fullMethod := "/" + WorkflowServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WorkflowServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(WorkflowServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements the WorkflowService gRPC interface
type GRPCHandler struct {
	engine *service.WorkflowEngine
	logger zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(engine *service.WorkflowEngine, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		engine: engine,
		logger: logger.With().Str("handler", "grpc").Logger(),
	}
}

// ProcessAction submits an action.
// Request fields: document_workflow_id, action_id, comments, attachments.
func (h *GRPCHandler) ProcessAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	actor := actorFromMetadata(ctx)

	h.logger.Info().
		Str("document_workflow_id", stringField(fields, "document_workflow_id")).
		Str("action_id", stringField(fields, "action_id")).
		Str("actor_id", actor.UserID).
		Msg("gRPC ProcessAction called")

	var comments *string
	if c := stringField(fields, "comments"); c != "" {
		comments = &c
	}

	wf, err := h.engine.ProcessAction(ctx, &service.ProcessActionRequest{
		DocumentWorkflowID: stringField(fields, "document_workflow_id"),
		ActionID:           stringField(fields, "action_id"),
		Actor:              actor,
		Comments:           comments,
		Attachments:        stringsField(fields, "attachments"),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	return toStruct(workflowSnapshot(ctx, h.engine, &h.logger, wf))
}

// GetAvailableActions lists the current stage's actions.
// Request fields: document_workflow_id.
func (h *GRPCHandler) GetAvailableActions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req.AsMap(), "document_workflow_id")
	h.logger.Debug().Str("document_workflow_id", id).Msg("gRPC GetAvailableActions called")

	actions, err := h.engine.GetAvailableActions(ctx, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	return toStruct(map[string]any{"actions": actionsView(actions)})
}

// GetWorkflow returns a workflow snapshot.
// Request fields: document_workflow_id.
func (h *GRPCHandler) GetWorkflow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req.AsMap(), "document_workflow_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "document_workflow_id is required")
	}
	h.logger.Debug().Str("document_workflow_id", id).Msg("gRPC GetWorkflow called")

	wf, err := h.engine.GetWorkflow(ctx, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	return toStruct(workflowSnapshot(ctx, h.engine, &h.logger, wf))
}

// actorFromMetadata reads the caller identity forwarded by the gateway.
func actorFromMetadata(ctx context.Context) service.ActorContext {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return service.ActorContext{}
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	var perms []string
	for _, v := range md.Get("x-user-permissions") {
		perms = append(perms, splitList(v)...)
	}
	return service.ActorContext{
		UserID:      first("x-user-id"),
		RoleCode:    first("x-user-role"),
		Permissions: perms,
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func stringsField(fields map[string]any, key string) []string {
	list, _ := fields[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeAlreadyExists:
		return status.Error(codes.AlreadyExists, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeInsufficientRole, errors.ErrCodeInsufficientPermission:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodeInvalidState, errors.ErrCodeActionMismatch, errors.ErrCodeConfiguration:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodePersistence:
		return status.Error(codes.Unavailable, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
