package cores

import (
	"github.com/sarchlab/octacore/cache"
	"github.com/sarchlab/octacore/coherence"
	"github.com/sarchlab/octacore/intdist"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/sim"
	"github.com/sarchlab/octacore/syncunit"
)

// A Core replays a workload script against the memory system and the
// synchronization unit. At most one operation is outstanding at a time, so
// the core's own accesses complete in strict program order.
type Core struct {
	*sim.TickingComponent

	id   int
	asid mem.ASID

	hierarchy *cache.Hierarchy
	syncUnit  *syncunit.Unit
	intDist   *intdist.Distributor

	script []Op
	next   int
	busy   bool

	records    []Record
	interrupts []intdist.Delivery
	autoAck    bool
}

// ID returns the core id.
func (c *Core) ID() int {
	return c.id
}

// SetScript replaces the workload script. The core starts issuing on its
// next tick.
func (c *Core) SetScript(script []Op) {
	c.script = script
	c.next = 0
	c.records = c.records[:0]
	c.TickLater()
}

// Records returns the completions collected so far, in completion order.
func (c *Core) Records() []Record {
	return c.records
}

// Interrupts returns the deliveries the core has received.
func (c *Core) Interrupts() []intdist.Delivery {
	return c.interrupts
}

// Done tells if every script step has been issued and completed.
func (c *Core) Done() bool {
	return !c.busy && c.next >= len(c.script)
}

// Tick issues the next script step when the previous one has completed.
func (c *Core) Tick() bool {
	if c.busy || c.next >= len(c.script) {
		return false
	}

	index := c.next
	c.next++
	c.busy = true

	c.issue(index, c.script[index])

	return true
}

func (c *Core) issue(index int, op Op) {
	switch op.Kind {
	case OpRead:
		c.hierarchy.Read(c.id, c.asid, op.Addr, op.Size, op.Secure,
			func(data []byte, cost uint64, err error) {
				c.finish(Record{
					Index: index, Kind: op.Kind,
					Data: data, Cost: cost, Err: err,
				})
			})

	case OpWrite:
		c.hierarchy.Write(c.id, c.asid, op.Addr, op.Data, op.Secure,
			func(cost uint64, err error) {
				c.finish(Record{
					Index: index, Kind: op.Kind, Cost: cost, Err: err,
				})
			})

	case OpAtomicCAS, OpAtomicAdd:
		atomicOp := coherence.AtomicOp{
			Kind:    coherence.AtomicCAS,
			Compare: op.Compare,
			Operand: op.Word,
		}
		if op.Kind == OpAtomicAdd {
			atomicOp.Kind = coherence.AtomicFetchAdd
		}

		c.hierarchy.Atomic(c.id, c.asid, op.Addr, atomicOp,
			func(old uint64, swapped bool, cost uint64, err error) {
				c.finish(Record{
					Index: index, Kind: op.Kind,
					Word: old, Swapped: swapped, Cost: cost, Err: err,
				})
			})

	case OpEvict:
		c.hierarchy.Evict(c.id, c.asid, op.Addr,
			func(cost uint64, err error) {
				c.finish(Record{
					Index: index, Kind: op.Kind, Cost: cost, Err: err,
				})
			})

	case OpSend:
		c.syncUnit.Send(op.ID, c.id, op.Word, func(err error) {
			c.finish(Record{Index: index, Kind: op.Kind, Err: err})
		})

	case OpReceive:
		c.syncUnit.Receive(op.ID, c.id, func(msg uint64, err error) {
			c.finish(Record{
				Index: index, Kind: op.Kind, Word: msg, Err: err,
			})
		})

	case OpAcquire:
		c.syncUnit.Acquire(op.ID, c.id, func(err error) {
			c.finish(Record{Index: index, Kind: op.Kind, Err: err})
		})

	case OpRelease:
		err := c.syncUnit.Release(op.ID, c.id)
		c.finish(Record{Index: index, Kind: op.Kind, Err: err})

	case OpArrive:
		c.syncUnit.Arrive(op.ID, c.id, func(err error) {
			c.finish(Record{Index: index, Kind: op.Kind, Err: err})
		})
	}
}

func (c *Core) finish(r Record) {
	r.Time = c.CurrentTime()
	c.records = append(c.records, r)
	c.busy = false
	c.TickLater()
}

// OnInterrupt receives a delivery from the interrupt distributor.
func (c *Core) OnInterrupt(d intdist.Delivery) {
	c.interrupts = append(c.interrupts, d)

	if c.autoAck {
		c.intDist.Ack(c.id)
	}
}

// Builder can build cores.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	id   int
	asid mem.ASID

	hierarchy *cache.Hierarchy
	syncUnit  *syncunit.Unit
	intDist   *intdist.Distributor

	autoAck bool
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:    1 * sim.GHz,
		autoAck: true,
	}
}

// WithEngine sets the event engine that drives the core.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the core.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithID sets the core id.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithASID sets the address space the core issues in.
func (b Builder) WithASID(asid mem.ASID) Builder {
	b.asid = asid
	return b
}

// WithHierarchy sets the cache hierarchy the core accesses memory through.
func (b Builder) WithHierarchy(h *cache.Hierarchy) Builder {
	b.hierarchy = h
	return b
}

// WithSyncUnit sets the synchronization unit the core uses.
func (b Builder) WithSyncUnit(u *syncunit.Unit) Builder {
	b.syncUnit = u
	return b
}

// WithIntDist sets the interrupt distributor the core acknowledges to.
func (b Builder) WithIntDist(d *intdist.Distributor) Builder {
	b.intDist = d
	return b
}

// WithAutoAck controls whether the core acknowledges interrupts as soon as
// they are delivered.
func (b Builder) WithAutoAck(autoAck bool) Builder {
	b.autoAck = autoAck
	return b
}

// Build creates a core.
func (b Builder) Build(name string) *Core {
	c := &Core{
		id:        b.id,
		asid:      b.asid,
		hierarchy: b.hierarchy,
		syncUnit:  b.syncUnit,
		intDist:   b.intDist,
		autoAck:   b.autoAck,
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	return c
}
