package cache

import (
	"fmt"

	"github.com/sarchlab/octacore/coherence"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/numa"
)

// Builder can build cache hierarchies.
type Builder struct {
	directory *coherence.Directory
	router    *numa.Router
	storage   *mem.Storage

	numCores    int
	numClusters int

	l1Capacity, l2Capacity, l3Capacity, l4Capacity int
	l1Cost, l2Cost, l3Cost, l4Cost                 uint64
	memCost                                        uint64
}

// MakeBuilder creates a builder with default parameters: eight cores in two
// clusters, with level capacities growing by roughly 4x per level.
func MakeBuilder() Builder {
	return Builder{
		numCores:    8,
		numClusters: 2,
		l1Capacity:  64,
		l2Capacity:  256,
		l3Capacity:  1024,
		l4Capacity:  4096,
		l1Cost:      1,
		l2Cost:      4,
		l3Cost:      12,
		l4Cost:      24,
		memCost:     60,
	}
}

// WithDirectory sets the coherence directory to consult.
func (b Builder) WithDirectory(d *coherence.Directory) Builder {
	b.directory = d
	return b
}

// WithRouter sets the NUMA router.
func (b Builder) WithRouter(r *numa.Router) Builder {
	b.router = r
	return b
}

// WithStorage sets the backing storage.
func (b Builder) WithStorage(s *mem.Storage) Builder {
	b.storage = s
	return b
}

// WithTopology sets the number of cores and clusters.
func (b Builder) WithTopology(numCores, numClusters int) Builder {
	b.numCores = numCores
	b.numClusters = numClusters
	return b
}

// WithLevelCapacities sets the per-level capacities in lines.
func (b Builder) WithLevelCapacities(l1, l2, l3, l4 int) Builder {
	b.l1Capacity = l1
	b.l2Capacity = l2
	b.l3Capacity = l3
	b.l4Capacity = l4
	return b
}

// WithLevelCosts sets the per-level lookup costs and the storage access
// cost, all in cycles.
func (b Builder) WithLevelCosts(l1, l2, l3, l4, memCost uint64) Builder {
	b.l1Cost = l1
	b.l2Cost = l2
	b.l3Cost = l3
	b.l4Cost = l4
	b.memCost = memCost
	return b
}

// Build creates a hierarchy. Cores are assigned to clusters round-robin in
// contiguous blocks, and each core's home NUMA node is the node owning the
// first address of its cluster's partition.
func (b Builder) Build(name string) *Hierarchy {
	h := &Hierarchy{
		directory: b.directory,
		router:    b.router,
		storage:   b.storage,
		memCost:   b.memCost,
		l3:        NewLevel(name+".L3", b.l3Capacity, b.l3Cost),
		l4s:       make(map[int]*Level),
	}

	coresPerCluster := b.numCores / b.numClusters
	numNodes := b.router.NumNodes()

	for c := 0; c < b.numCores; c++ {
		h.l1s = append(h.l1s, NewLevel(
			nameForCore(name, "L1", c), b.l1Capacity, b.l1Cost))
		h.coreCluster = append(h.coreCluster, c/coresPerCluster)
		h.coreHome = append(h.coreHome, c*numNodes/b.numCores)
	}

	for cl := 0; cl < b.numClusters; cl++ {
		h.l2s = append(h.l2s, NewLevel(
			nameForCore(name, "L2", cl), b.l2Capacity, b.l2Cost))
	}

	for i := 0; i < numNodes; i++ {
		h.l4s[i] = NewLevel(nameForCore(name, "L4", i), b.l4Capacity, b.l4Cost)
	}

	b.directory.RegisterCacheOps(h)

	return h
}

func nameForCore(base, level string, id int) string {
	return fmt.Sprintf("%s.%s[%d]", base, level, id)
}
