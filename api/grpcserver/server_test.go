package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"waiterboard/domain/waiter"
	"waiterboard/infra/store/pebblestore"
	"waiterboard/service"
)

type fixture struct {
	client *Client
	now    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := service.NewWaiterService(st, service.WithClock(func() time.Time { return now }))

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewServer(svc, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{client: NewClient(conn), now: &now}
}

func newOrder() waiter.NewOrder {
	return waiter.NewOrder{
		MRN:              "MRN-10001",
		FirstName:        "James",
		LastName:         "Anderson",
		DOB:              "1985-03-15",
		Initials:         "JA",
		NumPrescriptions: 2,
	}
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.client.CreateOrder(ctx, newOrder())
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, waiter.TypeWaiter, o.Type)
	assert.Equal(t, f.now.Add(30*time.Minute), o.DueTime)

	got, err := f.client.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, got)

	ready := true
	updated, err := f.client.UpdateOrder(ctx, o.ID, waiter.Patch{Ready: &ready}, "RB")
	require.NoError(t, err)
	assert.True(t, updated.Ready)
	require.NotNil(t, updated.ReadyAt)

	board, err := f.client.PatientBoard(ctx)
	require.NoError(t, err)
	orders, ok := board["orders"].([]any)
	require.True(t, ok)
	require.Len(t, orders, 1)
	assert.Equal(t, "Ja*** And*****", orders[0].(map[string]any)["name"])

	require.NoError(t, f.client.DeleteOrder(ctx, o.ID, "RB"))

	_, err = f.client.GetOrder(ctx, o.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))

	entries, err := f.client.AuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, waiter.ActionDelete, entries[0].Action)
}

func TestInvalidArgument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateOrder(ctx, waiter.NewOrder{MRN: "X"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = f.client.UpdateSettings(ctx, map[string]any{"display_font_size": "huge"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, _, err = f.client.LookupPatient(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestProductionBoardAndSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.client.UpdateSettings(ctx, map[string]any{"waiter_due_minutes": 20})
	require.NoError(t, err)
	assert.Equal(t, 20, s.WaiterDueMinutes)

	got, err := f.client.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = f.client.CreateOrder(ctx, newOrder())
	require.NoError(t, err)

	board, err := f.client.ProductionBoard(ctx)
	require.NoError(t, err)
	orders := board["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, "20m 0s", orders[0].(map[string]any)["time_remaining"])
	assert.EqualValues(t, 0, board["overdue_count"])
}

func TestLookupPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, found, err := f.client.LookupPatient(ctx, "MRN-404")
	require.NoError(t, err)
	assert.False(t, found)
}
