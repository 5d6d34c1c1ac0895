// Package snapshot checkpoints the resting orders of a book with gob and
// restores them into a fresh book, so a later run can start from the
// market a previous run left behind.
package snapshot
