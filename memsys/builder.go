package memsys

import (
	"github.com/sarchlab/octacore/cache"
	"github.com/sarchlab/octacore/numa"
	"github.com/sarchlab/octacore/sim"
	"github.com/sarchlab/octacore/syncunit"
)

// Builder can build memory system components.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	hierarchy *cache.Hierarchy
	syncUnit  *syncunit.Unit

	congestionThreshold int
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:                1 * sim.GHz,
		congestionThreshold: 4,
	}
}

// WithEngine sets the event engine that drives the component.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the component.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithHierarchy sets the cache hierarchy behind the façade.
func (b Builder) WithHierarchy(h *cache.Hierarchy) Builder {
	b.hierarchy = h
	return b
}

// WithSyncUnit sets the synchronization unit whose per-core state is
// released when a core goes offline.
func (b Builder) WithSyncUnit(u *syncunit.Unit) Builder {
	b.syncUnit = u
	return b
}

// WithCongestionThreshold sets the admission queue depth at which QoS
// ordering activates.
func (b Builder) WithCongestionThreshold(threshold int) Builder {
	b.congestionThreshold = threshold
	return b
}

// Build creates a memory system component.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		hierarchy: b.hierarchy,
		syncUnit:  b.syncUnit,
		admission: numa.NewArbiter(b.congestionThreshold),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.topPort = sim.NewPort(c, 8, 8, name+".TopPort")
	c.AddPort("Top", c.topPort)

	c.ctrlPort = sim.NewPort(c, 4, 4, name+".CtrlPort")
	c.AddPort("Ctrl", c.ctrlPort)

	return c
}
