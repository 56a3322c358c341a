package handler

import (
	"context"
	stderrors "errors"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

func dialWorkflowService(t *testing.T, engine *service.WorkflowEngine) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterWorkflowServiceServer(srv, NewGRPCHandler(engine, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+WorkflowServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func TestGRPCProcessAction(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	wf, err := s.engine.StartWorkflow(ctx, &service.StartWorkflowRequest{
		DocumentID: "doc-1", DocumentType: "syllabus", InitiatedBy: "fac-1",
	})
	require.NoError(t, err)
	conn := dialWorkflowService(t, s.engine)

	got, err := invoke(ctx, conn, "GetAvailableActions", map[string]any{"document_workflow_id": wf.ID})
	require.NoError(t, err)
	require.Len(t, got["actions"], 1)

	submitID := s.tpl.Stages[0].Actions[0].ID
	_, err = invoke(ctx, conn, "ProcessAction", map[string]any{"document_workflow_id": wf.ID, "action_id": submitID})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "no actor metadata")

	authed := metadata.AppendToOutgoingContext(ctx, "x-user-id", "fac-1", "x-user-role", "FACULTY")
	got, err = invoke(authed, conn, "ProcessAction", map[string]any{
		"document_workflow_id": wf.ID,
		"action_id":            submitID,
		"comments":             "ready for review",
		"attachments":          []any{"s3://docs/syllabus.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, s.tpl.Stages[1].ID, got["current_stage_id"])
	assert.Equal(t, "rev-1", got["assignee"])

	_, err = invoke(authed, conn, "ProcessAction", map[string]any{"document_workflow_id": wf.ID, "action_id": submitID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	got, err = invoke(ctx, conn, "GetWorkflow", map[string]any{"document_workflow_id": wf.ID})
	require.NoError(t, err)
	assert.Equal(t, "In Progress", got["status"])
	assert.Equal(t, "rev-1", got["assignee"])

	_, err = invoke(ctx, conn, "GetWorkflow", map[string]any{"document_workflow_id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	history, err := s.engine.GetHistory(ctx, wf.ID)
	require.NoError(t, err)
	var found bool
	for _, h := range history {
		if h.Action == "submit" {
			found = true
			assert.Equal(t, []string{"s3://docs/syllabus.pdf"}, h.Attachments)
		}
	}
	assert.True(t, found)
}

func TestActorFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-user-id", "u1",
		"x-user-role", "ADMIN",
		"x-user-permissions", "a,b",
		"x-user-permissions", "c",
	))
	actor := actorFromMetadata(ctx)
	assert.Equal(t, "u1", actor.UserID)
	assert.Equal(t, "ADMIN", actor.RoleCode)
	assert.Equal(t, []string{"a", "b", "c"}, actor.Permissions)

	assert.Empty(t, actorFromMetadata(context.Background()).UserID)
}

func TestMapErrorToGRPC(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{errors.NotFound("document_workflow", "x"), codes.NotFound},
		{errors.AlreadyExists("document_workflow", "x"), codes.AlreadyExists},
		{errors.InvalidInput("id", "required"), codes.InvalidArgument},
		{errors.New(errors.ErrCodeInsufficientRole, "no"), codes.PermissionDenied},
		{errors.New(errors.ErrCodeInsufficientPermission, "no"), codes.PermissionDenied},
		{errors.New(errors.ErrCodeActionMismatch, "stale"), codes.FailedPrecondition},
		{errors.New(errors.ErrCodeInvalidState, "completed"), codes.FailedPrecondition},
		{errors.New(errors.ErrCodeConfiguration, "tie"), codes.FailedPrecondition},
		{errors.Wrap(stderrors.New("conn reset"), errors.ErrCodePersistence, "write"), codes.Unavailable},
		{stderrors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(mapErrorToGRPC(tt.err)), tt.err.Error())
	}
	assert.NoError(t, mapErrorToGRPC(nil))
}
