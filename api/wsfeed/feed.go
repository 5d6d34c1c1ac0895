// Package wsfeed streams a running simulation over websockets: one message
// per tick on /ws/book and one per trade on /ws/trades. It is meant for
// paced runs; an unpaced run finishes before anyone can watch.
package wsfeed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lobsim/domain/metrics"
	"lobsim/domain/orderbook"
)

type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Feed struct {
	books    *hub[metrics.BookSnapshot]
	trades   *hub[orderbook.Trade]
	upgrader websocket.Upgrader
	buffer   int
	log      *zap.Logger
}

func New(log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		books:    newHub[metrics.BookSnapshot](),
		trades:   newHub[orderbook.Trade](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		buffer:   64,
		log:      log.Named("wsfeed"),
	}
}

// OnTick publishes the end-of-tick snapshot and the tick's trades.
func (f *Feed) OnTick(s metrics.BookSnapshot, trades []orderbook.Trade) {
	for _, tr := range trades {
		f.trades.Broadcast(tr)
	}
	f.books.Broadcast(s)
}

// Subscribers counts open book and trade streams.
func (f *Feed) Subscribers() int {
	return f.books.Len() + f.trades.Len()
}

// Close ends every open stream.
func (f *Feed) Close() {
	f.books.Close()
	f.trades.Close()
}

func (f *Feed) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/book", f.handleBookStream)
	mux.HandleFunc("/ws/trades", f.handleTradeStream)
	return mux
}

func (f *Feed) handleBookStream(w http.ResponseWriter, r *http.Request) {
	stream(f, w, r, f.books, "book")
}

func (f *Feed) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	stream(f, w, r, f.trades, "trade")
}

func stream[T any](f *Feed, w http.ResponseWriter, r *http.Request, h *hub[T], kind string) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.Subscribe(f.buffer)
	if sub == nil {
		return
	}
	defer h.Unsubscribe(sub)

	for v := range sub.ch {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(message{Type: kind, Data: v}); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}
