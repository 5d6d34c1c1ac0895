package service

import (
	"time"

	"go.uber.org/zap"

	"lobsim/snapshot"
)

type truncater interface {
	TruncateBefore(seq uint64) error
}

type syncer interface {
	Sync() error
}

type checkpointer struct {
	w        *snapshot.Writer
	every    int64
	truncate bool
}

func (c *checkpointer) due(tick int64) bool {
	return c.every > 0 && (tick+1)%c.every == 0
}

// write checkpoints the book. The journal is synced first so the covered
// sequence is durable before segments are dropped.
func (c *checkpointer) write(s *Simulator, at time.Duration) error {
	var journalSeq uint64
	if s.journal != nil {
		journalSeq = s.journal.LastSeq()
	}
	if j, ok := s.journal.(syncer); ok {
		if err := j.Sync(); err != nil {
			return err
		}
	}
	path, err := c.w.Write(s.seq.Current(), journalSeq, at, s.book)
	if err != nil {
		return err
	}
	s.log.Debug("checkpoint written", zap.String("path", path), zap.Uint64("journal_seq", journalSeq))

	if t, ok := s.journal.(truncater); ok && c.truncate {
		return t.TruncateBefore(journalSeq)
	}
	return nil
}
