// Package fake provides an in-memory, single-threaded discrete-event
// scheduler and loopback socket pair implementing the simkernel contract.
// It stands in for the real simulator kernel (explicitly out of scope,
// spec §1) just far enough to make the replay engine runnable and testable
// without one: a container/heap-ordered priority queue of events keyed by
// virtual time, advancing only when the queue at the current time is
// drained — the same cooperative model spec §5 requires.
package fake

import (
	"container/heap"
	"time"
)

type event struct {
	at  time.Duration
	seq uint64
	fn  func()
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler is a container/heap-backed discrete-event scheduler. It is not
// safe for concurrent use; callers run the whole simulation on one
// goroutine, per spec §5's single-threaded cooperative model.
type Scheduler struct {
	queue    eventQueue
	now      time.Duration
	seq      uint64
	stopTime time.Duration
}

// NewScheduler returns a scheduler that discards any event scheduled at or
// after stopTime, modeling the global stop-time teardown of spec §5
// ("Cancellation & timeout").
func NewScheduler(stopTime time.Duration) *Scheduler {
	return &Scheduler{stopTime: stopTime}
}

// Now implements simkernel.Clock.
func (s *Scheduler) Now() time.Duration { return s.now }

// Schedule implements simkernel.Scheduler.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	s.ScheduleAt(s.now+delay, fn)
}

// ScheduleAt implements simkernel.Scheduler.
func (s *Scheduler) ScheduleAt(at time.Duration, fn func()) {
	if at >= s.stopTime {
		return
	}
	heap.Push(&s.queue, &event{at: at, seq: s.seq, fn: fn})
	s.seq++
}

// Run drains the event queue in time order until it is empty or the clock
// reaches stopTime, then leaves the clock pinned at stopTime.
func (s *Scheduler) Run() {
	for s.queue.Len() > 0 {
		e := heap.Pop(&s.queue).(*event)
		s.now = e.at
		e.fn()
	}
	if s.now < s.stopTime {
		s.now = s.stopTime
	}
}

// Pending reports how many events remain queued.
func (s *Scheduler) Pending() int { return s.queue.Len() }
