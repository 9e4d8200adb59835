package syncunit

import "fmt"

// A barrier gathers a fixed member set. The Nth arrival of a round wakes
// every waiter at the same instant and resets the round before any of them
// can re-arrive.
type barrier struct {
	id      int
	members map[int]bool

	round   int
	arrived []*parkedArrival
}

type parkedArrival struct {
	core     int
	callback func(err error)
}

// Arrive registers a core at the barrier, parking the caller until every
// member of the round has arrived. Arrival by a non-member core is a fatal
// misuse; arriving twice in the same round is likewise misuse.
func (u *Unit) Arrive(id, core int, callback func(err error)) {
	b, found := u.barriers[id]
	if !found {
		u.resume(func() { callback(ErrNoSuchPrimitive) })
		return
	}

	where := fmt.Sprintf("%s.barrier[%d]", u.name, id)

	if !b.members[core] {
		err := u.misuse(where, "arrival by non-member core %d", core)
		u.resume(func() { callback(err) })
		return
	}

	for _, a := range b.arrived {
		if a.core == core {
			err := u.misuse(where,
				"core %d arrived twice in round %d", core, b.round)
			u.resume(func() { callback(err) })
			return
		}
	}

	b.arrived = append(b.arrived, &parkedArrival{
		core:     core,
		callback: callback,
	})

	if len(b.arrived) < len(b.members) {
		return
	}

	// Round complete. Reset first, then wake everyone at the same time, so
	// a waiter that re-arrives from its continuation joins the next round.
	released := b.arrived
	b.arrived = nil
	b.round++

	t := u.freq.NCyclesLater(int(u.opCost), u.engine.CurrentTime())
	for _, a := range released {
		cb := a.callback
		u.resumeAt(t, func() { cb(nil) })
	}
}

// BarrierRound returns the completed round count, for inspection.
func (u *Unit) BarrierRound(id int) int {
	if b, found := u.barriers[id]; found {
		return b.round
	}
	return 0
}

func (b *barrier) dropCore(u *Unit, core int) {
	arrived := b.arrived[:0]
	for _, a := range b.arrived {
		if a.core == core {
			cb := a.callback
			u.resume(func() { cb(ErrCoreReset) })
			continue
		}
		arrived = append(arrived, a)
	}
	b.arrived = arrived
}
