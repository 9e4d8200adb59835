package syncunit

import (
	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/sim"
)

type mailboxCfg struct {
	id       int
	capacity int
}

type semaphoreCfg struct {
	id      int
	initial int
	max     int
}

type barrierCfg struct {
	id      int
	members []int
}

// Builder can build synchronization units.
type Builder struct {
	engine   sim.Engine
	freq     sim.Freq
	reporter health.Reporter
	opCost   uint64

	mailboxes  []mailboxCfg
	semaphores []semaphoreCfg
	barriers   []barrierCfg
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:   1 * sim.GHz,
		opCost: 2,
	}
}

// WithEngine sets the event engine that drives the unit.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the unit.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithHealthReporter sets the reporter that receives misuse conditions.
func (b Builder) WithHealthReporter(r health.Reporter) Builder {
	b.reporter = r
	return b
}

// WithOpCost sets the cycle cost of one primitive operation.
func (b Builder) WithOpCost(cost uint64) Builder {
	b.opCost = cost
	return b
}

// WithMailbox adds a mailbox channel with the given queue capacity.
func (b Builder) WithMailbox(id, capacity int) Builder {
	b.mailboxes = append(b.mailboxes, mailboxCfg{id, capacity})
	return b
}

// WithSemaphore adds a counting semaphore with an initial count and a
// maximum the count may never exceed.
func (b Builder) WithSemaphore(id, initial, max int) Builder {
	b.semaphores = append(b.semaphores, semaphoreCfg{id, initial, max})
	return b
}

// WithBarrier adds a barrier over the given member cores.
func (b Builder) WithBarrier(id int, members []int) Builder {
	b.barriers = append(b.barriers, barrierCfg{id, members})
	return b
}

// Build creates a synchronization unit.
func (b Builder) Build(name string) *Unit {
	u := &Unit{
		name:       name,
		engine:     b.engine,
		freq:       b.freq,
		reporter:   b.reporter,
		opCost:     b.opCost,
		mailboxes:  make(map[int]*mailbox),
		semaphores: make(map[int]*semaphore),
		barriers:   make(map[int]*barrier),
	}

	if u.reporter == nil {
		u.reporter = health.NewLog()
	}

	for _, c := range b.mailboxes {
		u.mailboxes[c.id] = &mailbox{id: c.id, capacity: c.capacity}
	}

	for _, c := range b.semaphores {
		u.semaphores[c.id] = &semaphore{
			id:    c.id,
			count: c.initial,
			max:   c.max,
		}
	}

	for _, c := range b.barriers {
		members := make(map[int]bool, len(c.members))
		for _, m := range c.members {
			members[m] = true
		}
		u.barriers[c.id] = &barrier{id: c.id, members: members}
	}

	return u
}
