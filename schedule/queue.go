package schedule

import (
	"container/heap"
	"time"
)

// timerQueue is a min-heap of (fire time, reminder id) pairs. Arming an id
// bumps its generation; stale heap entries and cancelled ids are tombstoned
// by the live map and dropped when they surface, so at most one live timer
// exists per reminder id.
type timerQueue struct {
	entries []*timerEntry
	live    map[int64]uint64 // reminder id -> generation of its armed entry
	gen     uint64
}

type timerEntry struct {
	at  time.Time
	id  int64
	gen uint64
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{live: make(map[int64]uint64)}
	heap.Init(q)
	return q
}

func (q *timerQueue) Len() int { return len(q.entries) }

func (q *timerQueue) Less(i, j int) bool {
	return q.entries[i].at.Before(q.entries[j].at)
}

func (q *timerQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
}

func (q *timerQueue) Push(x any) {
	q.entries = append(q.entries, x.(*timerEntry))
}

func (q *timerQueue) Pop() any {
	n := len(q.entries)
	e := q.entries[n-1]
	q.entries[n-1] = nil
	q.entries = q.entries[:n-1]
	return e
}

// Arm registers a timer for the reminder id, replacing any existing one.
func (q *timerQueue) Arm(id int64, at time.Time) {
	q.gen++
	q.live[id] = q.gen
	heap.Push(q, &timerEntry{at: at, id: id, gen: q.gen})
}

// Cancel removes the outstanding timer for the id, if any. The heap entry
// stays behind as a tombstone and is skipped when popped.
func (q *timerQueue) Cancel(id int64) {
	delete(q.live, id)
}

// Armed reports whether the id has a live timer.
func (q *timerQueue) Armed(id int64) bool {
	_, ok := q.live[id]
	return ok
}

// PopDue returns the next reminder id whose fire time is not after now,
// discarding tombstoned entries along the way. ok is false when nothing is
// due.
func (q *timerQueue) PopDue(now time.Time) (int64, bool) {
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head.at.After(now) {
			return 0, false
		}

		e := heap.Pop(q).(*timerEntry)
		if gen, ok := q.live[e.id]; ok && gen == e.gen {
			delete(q.live, e.id)
			return e.id, true
		}
		// stale or cancelled entry, drop it
	}
	return 0, false
}
