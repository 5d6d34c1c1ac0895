// Package wal is the run journal: an append-only, CRC-framed log of every
// order instruction the book accepted, split into numbered segments.
// Replaying it into a fresh book reproduces the run's trades exactly.
//
// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4], big endian. The
// CRC covers header and payload.
package wal
