package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"lobsim/domain/metrics"
	"lobsim/domain/orderbook"
	"lobsim/service"
)

func serve(t *testing.T, store *Store) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := New(store, nil)
	srv.Start(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func sampleResult() *service.Result {
	res := &service.Result{RunID: "run-1", Summary: metrics.Summary{Trades: 3, Volume: 9}}
	for i := 1; i <= 3; i++ {
		res.Trades = append(res.Trades, orderbook.Trade{ID: uint64(i), Price: 100, Qty: 3})
		res.Snapshots = append(res.Snapshots, metrics.BookSnapshot{Tick: int64(i - 1), Mid: 100})
	}
	return res
}

func TestGetSummary(t *testing.T) {
	store := NewStore()
	c := serve(t, store)
	ctx := context.Background()

	_, err := c.GetSummary(ctx)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	store.Publish(sampleResult())
	out, err := c.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.GetFields()["run_id"].GetStringValue())
	sum := out.GetFields()["summary"].GetStructValue()
	assert.Equal(t, 3.0, sum.GetFields()["trades"].GetNumberValue())
	assert.Equal(t, 9.0, sum.GetFields()["volume"].GetNumberValue())
}

func TestListTradesPages(t *testing.T) {
	store := NewStore()
	store.Publish(sampleResult())
	c := serve(t, store)
	ctx := context.Background()

	out, err := c.ListTrades(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.GetFields()["total"].GetNumberValue())
	trades := out.GetFields()["trades"].GetListValue().GetValues()
	require.Len(t, trades, 2)
	assert.Equal(t, 2.0, trades[0].GetStructValue().GetFields()["id"].GetNumberValue())

	out, err = c.ListTrades(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, out.GetFields()["trades"].GetListValue().GetValues())

	_, err = c.ListTrades(ctx, 0, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStreamSnapshotsFollowsLiveRun(t *testing.T) {
	store := NewStore()
	c := serve(t, store)
	store.OnTick(metrics.BookSnapshot{Tick: 0}, nil)

	got := make(chan float64, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- c.StreamSnapshots(context.Background(), func(s *structpb.Struct) error {
			got <- s.GetFields()["tick"].GetNumberValue()
			return nil
		})
	}()

	assert.Equal(t, 0.0, <-got)
	store.OnTick(metrics.BookSnapshot{Tick: 1}, []orderbook.Trade{{ID: 1, Qty: 1}})
	assert.Equal(t, 1.0, <-got)

	store.Publish(&service.Result{RunID: "live"})
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end with the run")
	}
	page, total := store.Trades(0, 10)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestStreamSnapshotsOfFinishedRun(t *testing.T) {
	store := NewStore()
	store.Publish(sampleResult())
	c := serve(t, store)

	var ticks []float64
	err := c.StreamSnapshots(context.Background(), func(s *structpb.Struct) error {
		ticks = append(ticks, s.GetFields()["tick"].GetNumberValue())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, ticks)
}
