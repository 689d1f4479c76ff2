// Package task is the runtime's default, injectable Scheduler. The host
// task scheduler is explicitly an external collaborator (spec.md §1, §6):
// a production embedding is expected to drive a real cooperative scheduler
// (TaskScheduler on the original firmware, FreeRTOS timers, whatever the
// host offers) through this same Scheduler interface. CoopScheduler is the
// reference implementation used by tests and by hosts that have nothing
// better to offer.
//
// Tasks are addressed by a generational slotmap.ID rather than a pointer or
// captured closure (spec.md §9): cancelling a task, or the task firing
// after its owner is gone, is a stale-ID lookup instead of a dangling
// reference, so nothing needs to be "intentionally leaked" the way the
// teacher source leaks its AsyncClient cleanup Task objects.
package task

import (
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/slotmap"
)

// ID identifies one scheduled task.
type ID = slotmap.ID

// Scheduler is the seam between the mesh runtime and whatever cooperative
// loop the host embeds it in. Everything here must be safe to call only
// from within the host's single cooperative thread/goroutine; there is no
// internal locking.
type Scheduler interface {
	// Now returns the scheduler's notion of current time. Production
	// schedulers should return the real wall clock; tests may use a
	// virtual clock to drive convergence without sleeping.
	Now() time.Time

	// After schedules fn to run once, no earlier than d from now.
	After(d time.Duration, fn func()) ID

	// Every schedules fn to run repeatedly every interval, starting
	// after the first interval elapses.
	Every(interval time.Duration, fn func()) ID

	// DelayedEvery schedules fn to run first after initialDelay, then
	// repeatedly every interval. The connection layer does not use it:
	// conn.Start schedules node-sync with Every, on station-side
	// connections only, and AP-side connections never initiate one.
	DelayedEvery(initialDelay, interval time.Duration, fn func()) ID

	// Cancel disables a task. Cancelling an already-fired one-shot task,
	// or an unknown/stale ID, is a no-op.
	Cancel(id ID)

	// Rearm resets a task's next-fire time to now+interval (its original
	// After/Every/DelayedEvery interval), without changing its callback.
	// This implements the node-sync-driven timeout reset of spec.md §4.2
	// and §4.5 step 3.
	Rearm(id ID)

	// RunPending must be called by the host's cooperative loop (directly
	// or via Session.Update). It fires every task whose deadline is <=
	// now, including recurring tasks' next occurrence.
	RunPending(now time.Time)
}

type taskKind int

const (
	kindOnce taskKind = iota
	kindEvery
)

type scheduledTask struct {
	kind     taskKind
	fn       func()
	interval time.Duration
	deadline time.Time
	disabled bool
}

// CoopScheduler is the default Scheduler: a flat table of tasks advanced by
// a single RunPending call, with no goroutines of its own. It is safe to
// use directly as the Scheduler for an embedded single-threaded Session, or
// wrapped by a host integration that calls RunPending from its own loop.
type CoopScheduler struct {
	tasks *slotmap.Map[*scheduledTask]
	now   time.Time
}

// NewCoopScheduler creates a scheduler whose clock starts at start. Callers
// that don't care about a virtual clock should pass time.Now().
func NewCoopScheduler(start time.Time) *CoopScheduler {
	return &CoopScheduler{
		tasks: slotmap.New[*scheduledTask](),
		now:   start,
	}
}

func (s *CoopScheduler) Now() time.Time { return s.now }

func (s *CoopScheduler) After(d time.Duration, fn func()) ID {
	return s.tasks.Insert(&scheduledTask{
		kind:     kindOnce,
		fn:       fn,
		interval: d,
		deadline: s.now.Add(d),
	})
}

func (s *CoopScheduler) Every(interval time.Duration, fn func()) ID {
	return s.tasks.Insert(&scheduledTask{
		kind:     kindEvery,
		fn:       fn,
		interval: interval,
		deadline: s.now.Add(interval),
	})
}

func (s *CoopScheduler) DelayedEvery(initialDelay, interval time.Duration, fn func()) ID {
	return s.tasks.Insert(&scheduledTask{
		kind:     kindEvery,
		fn:       fn,
		interval: interval,
		deadline: s.now.Add(initialDelay),
	})
}

func (s *CoopScheduler) Cancel(id ID) {
	if t, ok := s.tasks.Get(id); ok {
		t.disabled = true
	}
	s.tasks.Remove(id)
}

func (s *CoopScheduler) Rearm(id ID) {
	if t, ok := s.tasks.Get(id); ok {
		t.deadline = s.now.Add(t.interval)
	}
}

// RunPending fires every due task in slot order. A task firing may itself
// insert or cancel tasks; newly inserted tasks are not visited in the same
// RunPending pass, matching how a real timer wheel would behave.
func (s *CoopScheduler) RunPending(now time.Time) {
	s.now = now

	var due []ID
	s.tasks.Each(func(id ID, t *scheduledTask) {
		if !t.disabled && !now.Before(t.deadline) {
			due = append(due, id)
		}
	})

	for _, id := range due {
		t, ok := s.tasks.Get(id)
		if !ok || t.disabled {
			continue
		}
		switch t.kind {
		case kindOnce:
			s.tasks.Remove(id)
			t.fn()
		case kindEvery:
			t.deadline = now.Add(t.interval)
			t.fn()
		}
	}
}
