// Package scheduler drives simulated time. Time advances in fixed steps;
// each step is a half-open window [Start, End). Agents park future actions
// as timers that fire in the window containing their due time.
package scheduler

import (
	"container/heap"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrInvalidClock = errors.New("scheduler: invalid clock")

// Window is one tick of simulated time.
type Window struct {
	Index int64         `json:"tick"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

func (w Window) Contains(t time.Duration) bool {
	return t >= w.Start && t < w.End
}

// Clamp pins t into the window.
func (w Window) Clamp(t time.Duration) time.Duration {
	if t < w.Start {
		return w.Start
	}
	if t >= w.End {
		return w.End - 1
	}
	return t
}

type TimerID uint64

// Timer is an agent-owned action due at At. Tag is opaque to the scheduler.
type Timer struct {
	ID    TimerID
	Owner string
	At    time.Duration
	Tag   uint64

	index int
}

type Scheduler struct {
	step    time.Duration
	horizon time.Duration
	win     Window
	started bool

	timers timerHeap
	live   map[TimerID]*Timer
	nextID TimerID
}

func New(step, horizon time.Duration) (*Scheduler, error) {
	if step <= 0 {
		return nil, errors.Wrapf(ErrInvalidClock, "step %s must be positive", step)
	}
	if horizon <= 0 {
		return nil, errors.Wrapf(ErrInvalidClock, "horizon %s must be positive", horizon)
	}
	return &Scheduler{
		step:    step,
		horizon: horizon,
		live:    make(map[TimerID]*Timer),
	}, nil
}

// Advance opens the next window. The first call opens [0, step). It returns
// false once the next window would start at or past the horizon.
func (s *Scheduler) Advance() bool {
	next := Window{Start: 0, End: s.step}
	if s.started {
		next = Window{Index: s.win.Index + 1, Start: s.win.End, End: s.win.End + s.step}
	}
	if next.Start >= s.horizon {
		return false
	}
	s.win = next
	s.started = true
	return true
}

// Now is the start of the current window.
func (s *Scheduler) Now() time.Duration { return s.win.Start }

func (s *Scheduler) Window() Window { return s.win }

func (s *Scheduler) Step() time.Duration { return s.step }

func (s *Scheduler) Horizon() time.Duration { return s.horizon }

// Ticks is the number of windows a full run opens.
func (s *Scheduler) Ticks() int64 {
	return int64((s.horizon + s.step - 1) / s.step)
}

// Schedule registers a timer. A due time inside an already collected window
// fires in the next one.
func (s *Scheduler) Schedule(owner string, at time.Duration, tag uint64) TimerID {
	s.nextID++
	t := &Timer{ID: s.nextID, Owner: owner, At: at, Tag: tag}
	heap.Push(&s.timers, t)
	s.live[t.ID] = t
	return t.ID
}

// Cancel removes a pending timer of owner. It is false for fired, unknown or
// foreign timers.
func (s *Scheduler) Cancel(owner string, id TimerID) bool {
	t, ok := s.live[id]
	if !ok || t.Owner != owner {
		return false
	}
	heap.Remove(&s.timers, t.index)
	delete(s.live, id)
	return true
}

// Due pops every timer whose time falls before the end of the current
// window, ordered by time then registration.
func (s *Scheduler) Due() []Timer {
	var out []Timer
	for len(s.timers) > 0 && s.timers[0].At < s.win.End {
		t := heap.Pop(&s.timers).(*Timer)
		delete(s.live, t.ID)
		out = append(out, *t)
	}
	return out
}

// Pending counts the timers owner still has queued.
func (s *Scheduler) Pending(owner string) int {
	n := 0
	for _, t := range s.timers {
		if t.Owner == owner {
			n++
		}
	}
	return n
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].At != h[j].At {
		return h[i].At < h[j].At
	}
	return h[i].ID < h[j].ID
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
