package wal

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const defaultSegmentSize = 64 << 20

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEvery fsyncs after that many appends. Zero syncs only on Close.
	SyncEvery int
}

// WAL is single-writer.
type WAL struct {
	dir      string
	segSize  int64
	syncN    int
	unsynced int
	current  *segment
	segIndex int
	lastSeq  uint64
}

// Open starts a fresh segment after any existing ones and continues their
// sequence.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "wal: create %s", cfg.Dir)
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	var lastSeq uint64
	for _, path := range files {
		seq, err := maxSeqInSegment(path)
		if err != nil {
			return nil, errors.Wrapf(err, "wal: scan %s", path)
		}
		lastSeq = max(lastSeq, seq)
	}

	index := 0
	if len(files) > 0 {
		index = segmentIndex(files[len(files)-1]) + 1
	}
	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, errors.Wrap(err, "wal: open segment")
	}

	return &WAL{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		syncN:    cfg.SyncEvery,
		current:  seg,
		segIndex: index,
		lastSeq:  lastSeq,
	}, nil
}

// Append assigns the next sequence number to r and writes it.
func (w *WAL) Append(r *Record) error {
	r.Seq = w.lastSeq + 1
	if err := w.current.append(r.frame()); err != nil {
		return errors.Wrap(err, "wal: append")
	}
	w.lastSeq = r.Seq

	w.unsynced++
	if w.syncN > 0 && w.unsynced >= w.syncN {
		if err := w.Sync(); err != nil {
			return err
		}
	}
	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) LastSeq() uint64 { return w.lastSeq }

func (w *WAL) Sync() error {
	w.unsynced = 0
	return w.current.sync()
}

func (w *WAL) Close() error {
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return errors.Wrap(err, "wal: rotate")
	}
	w.current = seg
	w.unsynced = 0
	return nil
}

// TruncateBefore removes closed segments whose records all have seq <= seq.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := segments(w.dir)
	if err != nil {
		return err
	}
	current := segmentPath(w.dir, w.segIndex)
	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func segments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
