// Package numa maps addresses to their owning memory node and annotates
// accesses with local or remote cost.
package numa

import (
	"fmt"
	"sort"

	"github.com/sarchlab/octacore/health"
)

// A Node is a memory domain that owns a contiguous address range.
type Node struct {
	ID        int
	LowAddr   uint64 // inclusive
	HighAddr  uint64 // exclusive
	LocalCost uint64 // access cost in cycles for cores homed on this node
	RemoteFactor uint64 // multiplier applied for cores homed elsewhere
}

// A Resolution is the outcome of routing one address.
type Resolution struct {
	NodeID     int
	AccessCost uint64
	IsRemote   bool
}

// A Router resolves addresses to owning nodes. Resolution is a pure function
// of the address: the same address always resolves to the same node.
type Router struct {
	nodes    []Node // sorted by LowAddr
	reporter health.Reporter
}

// MakeBuilder creates a Router builder.
func MakeBuilder() Builder {
	return Builder{}
}

// Builder can build NUMA routers.
type Builder struct {
	nodes    []Node
	reporter health.Reporter
}

// WithNode adds a memory node to the router to build.
func (b Builder) WithNode(n Node) Builder {
	b.nodes = append(b.nodes, n)
	return b
}

// WithHealthReporter sets the reporter that receives range faults.
func (b Builder) WithHealthReporter(r health.Reporter) Builder {
	b.reporter = r
	return b
}

// Build validates the node table and creates the router. The node ranges
// must partition the address space from 0 without overlap or gap.
func (b Builder) Build() (*Router, error) {
	if b.reporter == nil {
		b.reporter = health.NewLog()
	}

	r := &Router{
		nodes:    append([]Node(nil), b.nodes...),
		reporter: b.reporter,
	}

	if err := r.validate(); err != nil {
		b.reporter.Report(err)
		return nil, err
	}

	return r, nil
}

func (r *Router) validate() *health.Error {
	if len(r.nodes) == 0 {
		return health.Errorf(health.NumaRangeFault, "numa",
			"no nodes configured")
	}

	sort.Slice(r.nodes, func(i, j int) bool {
		return r.nodes[i].LowAddr < r.nodes[j].LowAddr
	})

	expected := uint64(0)
	for _, n := range r.nodes {
		if n.LowAddr != expected {
			return health.Errorf(health.NumaRangeFault, "numa",
				"node %d range starts at 0x%x, expected 0x%x",
				n.ID, n.LowAddr, expected)
		}
		if n.HighAddr <= n.LowAddr {
			return health.Errorf(health.NumaRangeFault, "numa",
				"node %d range is empty", n.ID)
		}
		expected = n.HighAddr
	}

	return nil
}

// NumNodes returns the number of configured nodes.
func (r *Router) NumNodes() int {
	return len(r.nodes)
}

// AddressSpaceSize returns the total number of bytes covered by the nodes.
func (r *Router) AddressSpaceSize() uint64 {
	return r.nodes[len(r.nodes)-1].HighAddr
}

// NodeByID returns the node with the given ID.
func (r *Router) NodeByID(id int) (Node, bool) {
	for _, n := range r.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OwnerOf returns the id of the node owning the address.
func (r *Router) OwnerOf(addr uint64) (int, error) {
	i := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].HighAddr > addr
	})

	if i == len(r.nodes) {
		err := health.Errorf(health.NumaRangeFault, "numa",
			"address 0x%x outside all configured node ranges", addr)
		r.reporter.Report(err)
		return 0, err
	}

	return r.nodes[i].ID, nil
}

// Resolve routes an address on behalf of a requester homed on the given
// node. It returns the owning node, the access cost, and whether the access
// crosses node boundaries.
func (r *Router) Resolve(addr uint64, homeNode int) (Resolution, error) {
	i := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].HighAddr > addr
	})

	if i == len(r.nodes) {
		err := health.Errorf(health.NumaRangeFault, "numa",
			"address 0x%x outside all configured node ranges", addr)
		r.reporter.Report(err)
		return Resolution{}, err
	}

	node := r.nodes[i]
	res := Resolution{
		NodeID:     node.ID,
		AccessCost: node.LocalCost,
	}

	if node.ID != homeNode {
		res.IsRemote = true
		res.AccessCost = node.LocalCost * node.RemoteFactor
	}

	return res, nil
}

func (n Node) String() string {
	return fmt.Sprintf("node %d [0x%x, 0x%x)", n.ID, n.LowAddr, n.HighAddr)
}
