package wsfeed

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/domain/metrics"
	"lobsim/domain/orderbook"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFeedStreamsTicksAndTrades(t *testing.T) {
	feed := New(nil)
	srv := httptest.NewServer(feed.Routes())
	defer srv.Close()

	books := dial(t, srv, "/ws/book")
	trades := dial(t, srv, "/ws/trades")
	require.Eventually(t, func() bool { return feed.Subscribers() == 2 }, 2*time.Second, 5*time.Millisecond)

	feed.OnTick(
		metrics.BookSnapshot{Tick: 3, BestBid: 99, BestAsk: 101, HasBid: true, HasAsk: true, Mid: 100},
		[]orderbook.Trade{{ID: 1, Price: 101, Qty: 2}},
	)

	var bm struct {
		Type string               `json:"type"`
		Data metrics.BookSnapshot `json:"data"`
	}
	require.NoError(t, books.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, books.ReadJSON(&bm))
	assert.Equal(t, "book", bm.Type)
	assert.Equal(t, int64(3), bm.Data.Tick)
	assert.Equal(t, 100.0, bm.Data.Mid)

	var tm struct {
		Type string          `json:"type"`
		Data orderbook.Trade `json:"data"`
	}
	require.NoError(t, trades.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, trades.ReadJSON(&tm))
	assert.Equal(t, "trade", tm.Type)
	assert.Equal(t, int64(2), tm.Data.Qty)
}

func TestCloseEndsStreams(t *testing.T) {
	feed := New(nil)
	srv := httptest.NewServer(feed.Routes())
	defer srv.Close()

	conn := dial(t, srv, "/ws/book")
	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	feed.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, feed.Subscribers())
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(1)
	h.Broadcast(1)
	h.Broadcast(2)
	assert.Equal(t, 1, <-sub.ch)
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Close()
	assert.Nil(t, h.Subscribe(1))
}
