package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/domain/orderbook"
)

func TestPoolZeroesOnPut(t *testing.T) {
	p := NewPool(func() *orderbook.Order { return new(orderbook.Order) })
	o := p.Get()
	require.NotNil(t, o)

	o.ID, o.Qty, o.Owner = 9, 10, "mm"
	p.Put(o)
	assert.Zero(t, o.ID)
	assert.Zero(t, o.Qty)
	assert.Empty(t, o.Owner)

	p.Put(nil)
}

func TestPoolBacksOrderBook(t *testing.T) {
	p := NewPool(func() *orderbook.Order { return new(orderbook.Order) })
	book := orderbook.NewOrderBook(orderbook.Config{TickSize: 1, Alloc: p, VerifyIndex: true})

	for i := uint64(1); i <= 100; i++ {
		_, err := book.SubmitLimit(orderbook.Order{ID: i, Side: orderbook.Bid, Price: int64(100 + i%5), Qty: 1})
		require.NoError(t, err)
	}
	exec, err := book.SubmitMarket(orderbook.Order{ID: 1000, Side: orderbook.Ask, Qty: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(60), exec.Filled)

	for i := uint64(2000); i < 2060; i++ {
		_, err := book.SubmitLimit(orderbook.Order{ID: i, Side: orderbook.Ask, Price: 200, Qty: 1})
		require.NoError(t, err)
	}
	assert.Equal(t, 100, book.Len())
	require.NoError(t, book.CheckInvariants())
}
