// Package memory provides typed object pools for hot-path allocations such
// as resting order nodes. The order book hands nodes back as soon as they
// leave the book, so a long run reuses a working set instead of growing the
// heap with every order.
package memory
