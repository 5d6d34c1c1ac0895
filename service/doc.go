// Package service runs a simulation: it owns the book, the clock, the
// noise generator, the agents and the recorder, and drives them through
// one deterministic loop.
//
// Everything a run touches is reached from Simulator. The outer layers
// (journal, checkpoints, archive, live feed) hang off it as options and
// never feed anything back into the loop.
package service
