package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

func dialPlacement(t *testing.T, env *testEnv, opts ...grpc.DialOption) *PlacementClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingUnaryInterceptor(zerolog.Nop()),
		AuthUnaryInterceptor(env.jwt),
	))
	RegisterPlacementServiceServer(srv, NewGRPCHandler(env.svc.Workflow, env.svc.Companies, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts = append(opts,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewPlacementClient(conn)
}

func TestGRPCApproveAndCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	staffCtx := identity.WithActor(ctx, identity.Actor{ID: "staff-1", Role: identity.RoleStaff})
	view, err := env.svc.Companies.Create(staffCtx, &service.CompanyRequest{Name: "Acme", AvailableSlots: intPtr(1)})
	require.NoError(t, err)
	companyID := view.Company.ID
	appID := submittedApplication(t, env, "alice", companyID)

	grpcClient := dialPlacement(t, env, grpc.WithUnaryInterceptor(BearerToken(env.token(t, "staff-1", identity.RoleStaff))))

	out, err := grpcClient.Approve(ctx, appID, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "approved", out.GetFields()["application"].GetStructValue().GetFields()["status"].GetStringValue())

	capacity, err := grpcClient.GetCapacity(ctx, companyID)
	require.NoError(t, err)
	ledger := capacity.GetFields()["capacity"].GetStructValue().GetFields()
	assert.Equal(t, "Full", ledger["status"].GetStringValue())
	assert.Equal(t, float64(1), ledger["filled_slots"].GetNumberValue())

	_, err = grpcClient.Reject(ctx, appID, "", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = grpcClient.GetCapacity(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	anon := dialPlacement(t, env)
	_, err := anon.GetCapacity(ctx, "any")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := dialPlacement(t, env, grpc.WithUnaryInterceptor(BearerToken("garbage")))
	_, err = bad.GetCapacity(ctx, "any")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	student := dialPlacement(t, env, grpc.WithUnaryInterceptor(BearerToken(env.token(t, "alice", identity.RoleStudent))))
	_, err = student.Approve(ctx, "missing", "")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestForwardMetadataCopiesIncoming(t *testing.T) {
	in := metadata.Pairs("authorization", "Bearer abc")
	ctx := metadata.NewIncomingContext(context.Background(), in)

	var got metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		got, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	require.NoError(t, ForwardMetadata(ctx, "/svc/M", nil, nil, nil, invoker))
	assert.Equal(t, []string{"Bearer abc"}, got.Get("authorization"))
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := map[errors.Code]codes.Code{
		errors.ErrCodeCapacityExceeded:     codes.FailedPrecondition,
		errors.ErrCodeInvalidState:         codes.FailedPrecondition,
		errors.ErrCodeDuplicateApplication: codes.AlreadyExists,
		errors.ErrCodeConflict:             codes.Unavailable,
		errors.ErrCodeInvalidInput:         codes.InvalidArgument,
		errors.ErrCodePermissionDenied:     codes.PermissionDenied,
		errors.ErrCodeUnauthorized:         codes.Unauthenticated,
		errors.ErrCodeNotFound:             codes.NotFound,
		errors.ErrCodeInternal:             codes.Internal,
	}
	for code, want := range tests {
		assert.Equal(t, want, status.Code(mapErrorToGRPC(errors.New(code, "x"))), code)
	}
	assert.NoError(t, mapErrorToGRPC(nil))
}

func intPtr(n int) *int { return &n }

func submittedApplication(t *testing.T, env *testEnv, studentID, companyID string) string {
	t.Helper()
	ctx := identity.WithActor(context.Background(), identity.Actor{ID: studentID, Role: identity.RoleStudent})
	app, err := env.svc.Applications.Create(ctx, &service.CreateApplicationRequest{
		CompanyID: companyID, StartDate: "2026-07-01", EndDate: "2026-10-01", ProposedHours: 480,
	})
	require.NoError(t, err)
	for _, rt := range []string{"resume", "application_letter", "parents_consent"} {
		_, err := env.svc.Requirements.Attach(ctx, &service.AttachRequest{
			ApplicationID: app.ID, Type: rt, Filename: rt + ".pdf", Content: []byte("%PDF"),
		})
		require.NoError(t, err)
	}
	_, err = env.svc.Applications.Submit(ctx, app.ID)
	require.NoError(t, err)
	return app.ID
}
