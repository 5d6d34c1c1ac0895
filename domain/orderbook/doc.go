// Package orderbook implements the single-instrument limit order book used
// by the simulator. It keeps two red-black trees of price levels (bids and
// asks), each level holding a FIFO queue of resting orders, plus an id
// index so cancels never walk a queue.
//
// Matching follows strict price-time priority. The book is single-writer and
// deterministic: the same sequence of calls always yields the same trades.
package orderbook
