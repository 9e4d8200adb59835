package intdist

import (
	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/sim"
)

// Builder can build interrupt distributors.
type Builder struct {
	engine   sim.Engine
	freq     sim.Freq
	reporter health.Reporter

	numCores    int
	numClusters int

	capacity           int
	migrationThreshold int
	deliverCost        uint64

	sources []Source
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:               1 * sim.GHz,
		numCores:           8,
		numClusters:        2,
		capacity:           32,
		migrationThreshold: 8,
		deliverCost:        4,
	}
}

// WithEngine sets the event engine that drives the distributor.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the distributor.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithHealthReporter sets the reporter that receives storm conditions.
func (b Builder) WithHealthReporter(r health.Reporter) Builder {
	b.reporter = r
	return b
}

// WithTopology sets the number of cores and clusters.
func (b Builder) WithTopology(numCores, numClusters int) Builder {
	b.numCores = numCores
	b.numClusters = numClusters
	return b
}

// WithCapacity sets the pending queue capacity.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithMigrationThreshold sets the core load above which migration-eligible
// sources move off their affinity core.
func (b Builder) WithMigrationThreshold(threshold int) Builder {
	b.migrationThreshold = threshold
	return b
}

// WithDeliverCost sets the cycle cost of handing a delivery to a core.
func (b Builder) WithDeliverCost(cost uint64) Builder {
	b.deliverCost = cost
	return b
}

// WithSource adds an interrupt source.
func (b Builder) WithSource(s Source) Builder {
	b.sources = append(b.sources, s)
	return b
}

// Build creates a distributor.
func (b Builder) Build(name string) *Distributor {
	d := &Distributor{
		name:               name,
		engine:             b.engine,
		freq:               b.freq,
		reporter:           b.reporter,
		sources:            make(map[int]*Source),
		capacity:           b.capacity,
		migrationThreshold: b.migrationThreshold,
		inFlight:           make(map[int]bool),
		directWaiting:      make(map[int][]*Delivery),
		loads:              make([]int, b.numCores),
		deliverCost:        b.deliverCost,
	}

	if d.reporter == nil {
		d.reporter = health.NewLog()
	}

	coresPerCluster := b.numCores / b.numClusters
	for c := 0; c < b.numCores; c++ {
		d.coreCluster = append(d.coreCluster, c/coresPerCluster)
	}

	for i := range b.sources {
		src := b.sources[i]
		d.sources[src.ID] = &src
	}

	return d
}
