package coherence

import (
	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/sim"
)

// Builder can build directories.
type Builder struct {
	engine   sim.Engine
	freq     sim.Freq
	storage  *mem.Storage
	reporter health.Reporter

	numShards    int
	log2LineSize uint
	maxSharers   int
	ownedOnShare bool

	lookupCost     uint64
	writeBackCost  uint64
	invalidateCost uint64
	atomicCost     uint64
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numShards:      64,
		log2LineSize:   6,
		maxSharers:     8,
		ownedOnShare:   true,
		lookupCost:     2,
		writeBackCost:  16,
		invalidateCost: 4,
		atomicCost:     6,
	}
}

// WithEngine sets the engine that schedules completions.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the directory.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithStorage sets the backing storage.
func (b Builder) WithStorage(storage *mem.Storage) Builder {
	b.storage = storage
	return b
}

// WithHealthReporter sets the reporter for protocol violations and
// overflow conditions.
func (b Builder) WithHealthReporter(r health.Reporter) Builder {
	b.reporter = r
	return b
}

// WithNumShards sets the number of independently locked entry shards.
func (b Builder) WithNumShards(n int) Builder {
	b.numShards = n
	return b
}

// WithLog2LineSize sets the log2 of the cache line size.
func (b Builder) WithLog2LineSize(n uint) Builder {
	b.log2LineSize = n
	return b
}

// WithMaxSharers sets the sharer capacity per line. Zero disables the
// capacity limit.
func (b Builder) WithMaxSharers(n int) Builder {
	b.maxSharers = n
	return b
}

// WithOwnedOnShare selects whether a read of a Modified line leaves the
// previous owner in Owned (true) or demotes everyone to Shared (false).
func (b Builder) WithOwnedOnShare(ownedOnShare bool) Builder {
	b.ownedOnShare = ownedOnShare
	return b
}

// WithCosts sets the cycle costs of the directory operations.
func (b Builder) WithCosts(lookup, writeBack, invalidate, atomic uint64) Builder {
	b.lookupCost = lookup
	b.writeBackCost = writeBack
	b.invalidateCost = invalidate
	b.atomicCost = atomic
	return b
}

// Build creates a directory.
func (b Builder) Build(name string) *Directory {
	if b.reporter == nil {
		b.reporter = health.NewLog()
	}

	d := &Directory{
		name:           name,
		engine:         b.engine,
		freq:           b.freq,
		storage:        b.storage,
		reporter:       b.reporter,
		log2LineSize:   b.log2LineSize,
		maxSharers:     b.maxSharers,
		ownedOnShare:   b.ownedOnShare,
		lookupCost:     b.lookupCost,
		writeBackCost:  b.writeBackCost,
		invalidateCost: b.invalidateCost,
		atomicCost:     b.atomicCost,
		offline:        make(map[int]bool),
		secureCopies:   make(map[lineKey][]byte),
	}

	d.shards = make([]*dirShard, b.numShards)
	for i := range d.shards {
		d.shards[i] = &dirShard{entries: make(map[lineKey]*entry)}
	}

	return d
}
