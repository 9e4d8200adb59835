package syncunit

import "fmt"

// A semaphore is a non-negative counter with a FIFO wait queue. The count
// never goes below zero; an acquire at zero parks instead.
type semaphore struct {
	id    int
	count int
	max   int

	waiters []*parkedAcquire
}

type parkedAcquire struct {
	core     int
	callback func(err error)
}

// Acquire decrements the semaphore on behalf of a core, parking the caller
// while the count is zero. Wakeup order among parked cores is FIFO.
func (u *Unit) Acquire(id, core int, callback func(err error)) {
	s, found := u.semaphores[id]
	if !found {
		u.resume(func() { callback(ErrNoSuchPrimitive) })
		return
	}

	if s.count > 0 {
		s.count--
		u.resume(func() { callback(nil) })
		return
	}

	s.waiters = append(s.waiters, &parkedAcquire{
		core:     core,
		callback: callback,
	})
}

// Release increments the semaphore, waking the oldest parked core if any. A
// release that would push the count past the configured maximum is a fatal
// misuse.
func (u *Unit) Release(id, core int) error {
	s, found := u.semaphores[id]
	if !found {
		return ErrNoSuchPrimitive
	}

	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]

		// The count stays unchanged: the release is consumed by the
		// waiter's pending acquire.
		u.resume(func() { w.callback(nil) })
		return nil
	}

	if s.count >= s.max {
		return u.misuse(
			fmt.Sprintf("%s.semaphore[%d]", u.name, id),
			"release by core %d past maximum %d", core, s.max)
	}

	s.count++
	return nil
}

// SemaphoreCount returns the current count, for inspection.
func (u *Unit) SemaphoreCount(id int) int {
	if s, found := u.semaphores[id]; found {
		return s.count
	}
	return 0
}

func (s *semaphore) dropCore(u *Unit, core int) {
	waiters := s.waiters[:0]
	for _, w := range s.waiters {
		if w.core == core {
			cb := w.callback
			u.resume(func() { cb(ErrCoreReset) })
			continue
		}
		waiters = append(waiters, w)
	}
	s.waiters = waiters
}
