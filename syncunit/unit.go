// Package syncunit implements the inter-core synchronization unit:
// mailboxes, counting semaphores, and barriers. Blocked callers are parked
// as continuations and resumed through scheduled events, so the unit never
// busy-polls and a run replays deterministically.
package syncunit

import (
	"errors"

	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/sim"
)

// ErrCoreReset is delivered to a parked continuation when its core is reset
// while waiting.
var ErrCoreReset = errors.New("core reset while waiting")

// ErrNoSuchPrimitive is returned for an operation on an unconfigured
// mailbox, semaphore, or barrier id.
var ErrNoSuchPrimitive = errors.New("no such synchronization primitive")

// A Unit hosts the synchronization primitives shared by all cores. The unit
// is driven by the engine's event thread; operations mutate primitive state
// synchronously and deliver continuations through scheduled events.
type Unit struct {
	name     string
	engine   sim.Engine
	freq     sim.Freq
	reporter health.Reporter
	opCost   uint64

	mailboxes  map[int]*mailbox
	semaphores map[int]*semaphore
	barriers   map[int]*barrier
}

// Name returns the name of the unit.
func (u *Unit) Name() string {
	return u.name
}

// wakeEvent resumes one parked continuation.
type wakeEvent struct {
	*sim.EventBase

	do func()
}

// Handle runs the continuation carried by a wake event.
func (u *Unit) Handle(e sim.Event) error {
	e.(*wakeEvent).do()
	return nil
}

// resume schedules a continuation opCost cycles from now.
func (u *Unit) resume(do func()) {
	u.resumeAt(u.freq.NCyclesLater(int(u.opCost), u.engine.CurrentTime()), do)
}

// resumeAt schedules a continuation at an exact time. Barrier release uses
// this to wake every waiter in the same instant.
func (u *Unit) resumeAt(t sim.VTimeInSec, do func()) {
	u.engine.Schedule(&wakeEvent{
		EventBase: sim.NewEventBase(t, u),
		do:        do,
	})
}

// ResetCore releases everything the core holds in the unit: parked sends,
// receives, semaphore waits, and barrier arrivals. Parked continuations of
// the core complete with ErrCoreReset; the remaining cores observe intact
// primitives.
func (u *Unit) ResetCore(core int) {
	for _, mb := range u.mailboxes {
		mb.dropCore(u, core)
	}
	for _, s := range u.semaphores {
		s.dropCore(u, core)
	}
	for _, b := range u.barriers {
		b.dropCore(u, core)
	}
}

func (u *Unit) misuse(where, format string, args ...interface{}) *health.Error {
	err := health.Errorf(health.SyncPrimitiveMisuse, where, format, args...)
	u.reporter.Report(err)
	return err
}
