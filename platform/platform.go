// Package platform assembles the full eight-core system: backing storage,
// NUMA router, coherence directory, cache hierarchy, synchronization unit,
// interrupt distributor, memory system façade, cores, and a DMA engine, all
// driven by one event engine.
package platform

import (
	"fmt"

	"github.com/sarchlab/octacore/cache"
	"github.com/sarchlab/octacore/coherence"
	"github.com/sarchlab/octacore/cores"
	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/intdist"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/memsys"
	"github.com/sarchlab/octacore/numa"
	"github.com/sarchlab/octacore/sim"
	"github.com/sarchlab/octacore/syncunit"
)

// A Platform is a fully wired system.
type Platform struct {
	Engine    sim.Engine
	HealthLog *health.Log

	Storage   *mem.Storage
	Router    *numa.Router
	Directory *coherence.Directory
	Hierarchy *cache.Hierarchy
	SyncUnit  *syncunit.Unit
	IntDist   *intdist.Distributor
	MemSys    *memsys.Comp

	Cores []*cores.Core
	DMA   *cores.DMAEngine

	Conn *sim.DirectConnection
}

// Run processes events until the system drains.
func (p *Platform) Run() error {
	return p.Engine.Run()
}

// Builder can build platforms.
type Builder struct {
	engine   sim.Engine
	freq     sim.Freq
	reporter *health.Log

	numCores    int
	numClusters int
	numNodes    int

	memBytesPerNode uint64
	localCost       uint64
	remoteFactor    uint64

	maxSharers int

	syncCfg func(syncunit.Builder) syncunit.Builder
	intCfg  func(intdist.Builder) intdist.Builder
}

// MakeBuilder creates a builder with default parameters: eight cores in two
// clusters over four NUMA nodes.
func MakeBuilder() Builder {
	return Builder{
		freq:            1 * sim.GHz,
		numCores:        8,
		numClusters:     2,
		numNodes:        4,
		memBytesPerNode: 4 * mem.MB,
		localCost:       30,
		remoteFactor:    3,
		maxSharers:      8,
	}
}

// WithEngine sets the event engine. A serial engine is created when unset.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of every component.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithHealthLog sets the log that receives reported conditions.
func (b Builder) WithHealthLog(l *health.Log) Builder {
	b.reporter = l
	return b
}

// WithTopology sets the number of cores, clusters, and NUMA nodes.
func (b Builder) WithTopology(numCores, numClusters, numNodes int) Builder {
	b.numCores = numCores
	b.numClusters = numClusters
	b.numNodes = numNodes
	return b
}

// WithMemBytesPerNode sets the bytes of memory each NUMA node owns.
func (b Builder) WithMemBytesPerNode(bytes uint64) Builder {
	b.memBytesPerNode = bytes
	return b
}

// WithNumaCosts sets the local access cost and the remote multiplier.
func (b Builder) WithNumaCosts(localCost, remoteFactor uint64) Builder {
	b.localCost = localCost
	b.remoteFactor = remoteFactor
	return b
}

// WithMaxSharers sets the directory sharer capacity.
func (b Builder) WithMaxSharers(n int) Builder {
	b.maxSharers = n
	return b
}

// WithSyncConfig customizes the synchronization unit, adding mailboxes,
// semaphores, and barriers.
func (b Builder) WithSyncConfig(
	f func(syncunit.Builder) syncunit.Builder,
) Builder {
	b.syncCfg = f
	return b
}

// WithInterruptConfig customizes the interrupt distributor, adding sources.
func (b Builder) WithInterruptConfig(
	f func(intdist.Builder) intdist.Builder,
) Builder {
	b.intCfg = f
	return b
}

// Build creates a platform.
func (b Builder) Build(name string) *Platform {
	p := &Platform{}

	p.Engine = b.engine
	if p.Engine == nil {
		p.Engine = sim.NewSerialEngine()
	}

	p.HealthLog = b.reporter
	if p.HealthLog == nil {
		p.HealthLog = health.NewLog()
	}

	b.buildMemoryPath(p, name)
	b.buildSyncAndInterrupts(p, name)
	b.buildAgents(p, name)

	return p
}

func (b Builder) buildMemoryPath(p *Platform, name string) {
	totalBytes := b.memBytesPerNode * uint64(b.numNodes)
	p.Storage = mem.NewStorage(totalBytes)

	routerBuilder := numa.MakeBuilder().WithHealthReporter(p.HealthLog)
	for i := 0; i < b.numNodes; i++ {
		routerBuilder = routerBuilder.WithNode(numa.Node{
			ID:           i,
			LowAddr:      uint64(i) * b.memBytesPerNode,
			HighAddr:     uint64(i+1) * b.memBytesPerNode,
			LocalCost:    b.localCost,
			RemoteFactor: b.remoteFactor,
		})
	}

	router, err := routerBuilder.Build()
	if err != nil {
		panic(err)
	}
	p.Router = router

	p.Directory = coherence.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithStorage(p.Storage).
		WithHealthReporter(p.HealthLog).
		WithMaxSharers(b.maxSharers).
		Build(name + ".Directory")

	p.Hierarchy = cache.MakeBuilder().
		WithDirectory(p.Directory).
		WithRouter(p.Router).
		WithStorage(p.Storage).
		WithTopology(b.numCores, b.numClusters).
		Build(name + ".Caches")
}

func (b Builder) buildSyncAndInterrupts(p *Platform, name string) {
	syncBuilder := syncunit.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithHealthReporter(p.HealthLog)
	if b.syncCfg != nil {
		syncBuilder = b.syncCfg(syncBuilder)
	}
	p.SyncUnit = syncBuilder.Build(name + ".SyncUnit")

	intBuilder := intdist.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithHealthReporter(p.HealthLog).
		WithTopology(b.numCores, b.numClusters)
	if b.intCfg != nil {
		intBuilder = b.intCfg(intBuilder)
	}
	p.IntDist = intBuilder.Build(name + ".IntDist")
}

func (b Builder) buildAgents(p *Platform, name string) {
	p.MemSys = memsys.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithHierarchy(p.Hierarchy).
		WithSyncUnit(p.SyncUnit).
		Build(name + ".MemSys")

	for c := 0; c < b.numCores; c++ {
		core := cores.MakeBuilder().
			WithEngine(p.Engine).
			WithFreq(b.freq).
			WithID(c).
			WithHierarchy(p.Hierarchy).
			WithSyncUnit(p.SyncUnit).
			WithIntDist(p.IntDist).
			Build(fmt.Sprintf("%s.Core[%d]", name, c))
		p.Cores = append(p.Cores, core)
	}

	p.IntDist.RegisterDeliverer(func(d intdist.Delivery) {
		if d.Core >= 0 && d.Core < len(p.Cores) {
			p.Cores[d.Core].OnInterrupt(d)
		}
	})

	p.DMA = cores.MakeDMABuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithMemPort(p.MemSys.TopPort().AsRemote()).
		Build(name + ".DMA")

	p.Conn = sim.NewDirectConnection(name+".Conn", p.Engine, b.freq)
	p.Conn.PlugIn(p.MemSys.TopPort())
	p.Conn.PlugIn(p.MemSys.CtrlPort())
	p.Conn.PlugIn(p.DMA.GetPortByName("Top"))
}
