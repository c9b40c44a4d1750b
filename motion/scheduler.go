package motion

import (
	"container/heap"
	"fmt"
	"time"
)

// Slot names one kind of timer an entity can own. An entity has at most
// one pending timer per slot.
type Slot uint8

const (
	SlotWalkUpdate Slot = iota + 1
	SlotWalkFinishAnim
	SlotPreWalkTimeout
	SlotAutoWalkRetry
	SlotEffectExpiry
	SlotWalkLock
)

func (s Slot) String() string {
	switch s {
	case SlotWalkUpdate:
		return "walk-update"
	case SlotWalkFinishAnim:
		return "walk-finish-anim"
	case SlotPreWalkTimeout:
		return "prewalk-timeout"
	case SlotAutoWalkRetry:
		return "autowalk-retry"
	case SlotEffectExpiry:
		return "effect-expiry"
	case SlotWalkLock:
		return "walk-lock"
	}
	return fmt.Sprintf("slot(%d)", uint8(s))
}

type Key struct {
	ID   uint32
	Slot Slot
}

func (k Key) String() string { return fmt.Sprintf("%d/%v", k.ID, k.Slot) }

// Handle identifies one scheduled callback. It goes stale once the
// callback runs, is cancelled, or its key is rescheduled.
type Handle struct {
	key Key
	gen uint64
}

func (h Handle) Key() Key { return h.key }

type timer struct {
	key   Key
	gen   uint64
	due   time.Time
	fn    func(now time.Time)
	index int
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].gen < q[j].gen
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Scheduler runs callbacks at logical times. It is driven explicitly
// through RunDue and is not safe for concurrent use.
type Scheduler struct {
	clock  Clock
	gen    uint64
	queue  timerQueue
	active map[Key]*timer
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{clock: clock, active: make(map[Key]*timer)}
}

func (s *Scheduler) Clock() Clock   { return s.clock }
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Schedule arranges for fn to run delay from now. Any timer already
// pending on key is cancelled first.
func (s *Scheduler) Schedule(key Key, delay time.Duration, fn func(now time.Time)) Handle {
	s.Cancel(key)
	if delay < 0 {
		delay = 0
	}
	s.gen++
	t := &timer{key: key, gen: s.gen, due: s.clock.Now().Add(delay), fn: fn}
	heap.Push(&s.queue, t)
	s.active[key] = t
	return Handle{key: key, gen: t.gen}
}

// Cancel drops the pending timer on key. It reports whether one existed.
func (s *Scheduler) Cancel(key Key) bool {
	t, ok := s.active[key]
	if !ok {
		return false
	}
	delete(s.active, key)
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
	}
	return true
}

// CancelAll drops every timer owned by id.
func (s *Scheduler) CancelAll(id uint32) {
	for key := range s.active {
		if key.ID == id {
			s.Cancel(key)
		}
	}
}

func (s *Scheduler) Pending(key Key) bool {
	_, ok := s.active[key]
	return ok
}

// Live reports whether h has neither fired nor been replaced.
func (s *Scheduler) Live(h Handle) bool {
	t, ok := s.active[h.key]
	return ok && t.gen == h.gen
}

func (s *Scheduler) Len() int { return len(s.active) }

// RunDue fires every timer due at or before now, earliest first, and
// returns how many ran. Timers scheduled by the callbacks themselves wait
// for the next call, so a callback that reschedules with zero delay
// cannot spin.
func (s *Scheduler) RunDue(now time.Time) int {
	limit := s.gen
	ran := 0
	var deferred []*timer
	for len(s.queue) > 0 {
		t := s.queue[0]
		if t.due.After(now) {
			break
		}
		heap.Pop(&s.queue)
		if t.gen > limit {
			deferred = append(deferred, t)
			continue
		}
		if cur := s.active[t.key]; cur != t {
			continue
		}
		delete(s.active, t.key)
		t.fn(now)
		ran++
	}
	for _, t := range deferred {
		if s.active[t.key] == t {
			heap.Push(&s.queue, t)
		}
	}
	return ran
}

// Run fires what is due at the clock's current time.
func (s *Scheduler) Run() int { return s.RunDue(s.clock.Now()) }
