package cache

import (
	"errors"

	"github.com/sarchlab/octacore/coherence"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/numa"
)

// ErrCrossLineAccess marks an access that spans a cache line boundary,
// which the hierarchy does not model.
var ErrCrossLineAccess = errors.New("access crosses a cache line boundary")

// A Hierarchy binds the private L1s, the per-cluster L2s, the global L3,
// and the NUMA-distributed L4 slices, and escalates misses level by level.
// The directory is consulted before any access that could conflict with
// another core's copy; L1 hits need no consultation because a resident L1
// line is, by construction, a registered holder.
//
// The hierarchy is driven by the engine's event thread. Cross-line
// serialization happens in the directory's shards, not here.
type Hierarchy struct {
	directory *coherence.Directory
	router    *numa.Router
	storage   *mem.Storage

	l1s []*Level
	l2s []*Level
	l3  *Level
	l4s map[int]*Level

	coreCluster []int
	coreHome    []int

	memCost uint64
}

// NumCores returns the number of cores served by the hierarchy.
func (h *Hierarchy) NumCores() int {
	return len(h.l1s)
}

// HomeNode returns the home NUMA node of a core.
func (h *Hierarchy) HomeNode(core int) int {
	return h.coreHome[core]
}

// Cluster returns the cluster a core belongs to.
func (h *Hierarchy) Cluster(core int) int {
	return h.coreCluster[core]
}

func (h *Hierarchy) lineSpan(addr, size uint64) (uint64, uint64, error) {
	lineAddr := h.directory.LineAddr(addr)
	if size == 0 || addr+size > lineAddr+h.directory.LineSize() {
		return 0, 0, ErrCrossLineAccess
	}
	return lineAddr, addr - lineAddr, nil
}

// Read fetches data for a core. The callback may run synchronously on an L1
// hit, or from a directory completion event on a miss.
func (h *Hierarchy) Read(
	core int,
	asid mem.ASID,
	addr, size uint64,
	secure bool,
	callback func(data []byte, cost uint64, err error),
) {
	lineAddr, offset, err := h.lineSpan(addr, size)
	if err != nil {
		callback(nil, 0, err)
		return
	}

	if secure {
		h.secureRead(core, asid, addr, size, callback)
		return
	}

	l1 := h.l1s[core]
	if data, ok := l1.Lookup(asid, lineAddr); ok {
		out := make([]byte, size)
		copy(out, data[offset:offset+size])

		callback(out, l1.AccessCost(), nil)
		return
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessRead,
		Core: core,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(nil, res.Cost, res.Err)
				return
			}

			cost := l1.AccessCost() + res.Cost

			lineData, err := h.fetchLine(core, asid, lineAddr, &cost)
			if err != nil {
				callback(nil, cost, err)
				return
			}

			h.installL1(core, asid, lineAddr, lineData, false)

			out := make([]byte, size)
			copy(out, lineData[offset:offset+size])

			callback(out, cost, nil)
		},
	})
}

// Write stores data on behalf of a core. Exclusive rights are acquired
// through the directory unless the core already holds the line dirty.
func (h *Hierarchy) Write(
	core int,
	asid mem.ASID,
	addr uint64,
	data []byte,
	secure bool,
	callback func(cost uint64, err error),
) {
	size := uint64(len(data))
	lineAddr, offset, err := h.lineSpan(addr, size)
	if err != nil {
		callback(0, err)
		return
	}

	if secure {
		h.secureWrite(core, asid, addr, data, callback)
		return
	}

	l1 := h.l1s[core]
	if l1.IsDirty(asid, lineAddr) {
		lineData, _ := l1.Peek(asid, lineAddr)
		copy(lineData[offset:offset+size], data)

		callback(l1.AccessCost(), nil)
		return
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessWrite,
		Core: core,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(res.Cost, res.Err)
				return
			}

			cost := l1.AccessCost() + res.Cost

			lineData, ok := l1.Peek(asid, lineAddr)
			if !ok {
				fetched, err := h.fetchLine(core, asid, lineAddr, &cost)
				if err != nil {
					callback(cost, err)
					return
				}
				lineData = fetched
			}

			updated := make([]byte, len(lineData))
			copy(updated, lineData)
			copy(updated[offset:offset+size], data)

			h.installL1(core, asid, lineAddr, updated, true)

			callback(cost, nil)
		},
	})
}

// Atomic performs a compare-and-swap or fetch-and-add serialized through
// the directory.
func (h *Hierarchy) Atomic(
	core int,
	asid mem.ASID,
	addr uint64,
	op coherence.AtomicOp,
	callback func(old uint64, swapped bool, cost uint64, err error),
) {
	h.directory.Submit(&coherence.Transaction{
		Kind:   coherence.AccessAtomic,
		Core:   core,
		ASID:   asid,
		Addr:   addr,
		Atomic: &op,
		Callback: func(res coherence.Result) {
			callback(res.OldValue, res.Swapped, res.Cost, res.Err)
		},
	})
}

// Evict drops a line from a core's L1, writing dirty data back, and
// notifies the directory.
func (h *Hierarchy) Evict(
	core int,
	asid mem.ASID,
	addr uint64,
	callback func(cost uint64, err error),
) {
	lineAddr := h.directory.LineAddr(addr)

	data, dirty, found := h.l1s[core].Invalidate(asid, lineAddr)
	if found && dirty {
		_ = h.storage.Write(lineAddr, data)
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessEvict,
		Core: core,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if callback != nil {
				callback(res.Cost, res.Err)
			}
		},
	})
}

// InvalidateAddr drops a line from every holder system-wide.
func (h *Hierarchy) InvalidateAddr(
	asid mem.ASID,
	addr uint64,
	callback func(cost uint64, err error),
) {
	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessInvalidate,
		Core: -1,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if callback != nil {
				callback(res.Cost, res.Err)
			}
		},
	})
}

// UncachedRead fetches data for an agent without an L1, such as a DMA
// engine. Any cached copies are written back and dropped first, so the data
// returned is current. The node hint sets the requester's vantage point for
// cost; mem.NoNodeHint means the access enters at the owning node.
func (h *Hierarchy) UncachedRead(
	asid mem.ASID,
	addr, size uint64,
	nodeHint int,
	callback func(data []byte, cost uint64, err error),
) {
	if _, _, err := h.lineSpan(addr, size); err != nil {
		callback(nil, 0, err)
		return
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessInvalidate,
		Core: -1,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(nil, res.Cost, res.Err)
				return
			}

			cost := res.Cost

			numaCost, err := h.uncachedCost(addr, nodeHint)
			if err != nil {
				callback(nil, cost, err)
				return
			}
			cost += numaCost + h.memCost

			data, err := h.storage.Read(addr, size)
			callback(data, cost, err)
		},
	})
}

// UncachedWrite stores data for an agent without an L1, dropping any cached
// copies so no core can later read stale data.
func (h *Hierarchy) UncachedWrite(
	asid mem.ASID,
	addr uint64,
	data []byte,
	nodeHint int,
	callback func(cost uint64, err error),
) {
	if _, _, err := h.lineSpan(addr, uint64(len(data))); err != nil {
		callback(0, err)
		return
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessInvalidate,
		Core: -1,
		ASID: asid,
		Addr: addr,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(res.Cost, res.Err)
				return
			}

			cost := res.Cost

			numaCost, err := h.uncachedCost(addr, nodeHint)
			if err != nil {
				callback(cost, err)
				return
			}
			cost += numaCost + h.memCost

			callback(cost, h.storage.Write(addr, data))
		},
	})
}

func (h *Hierarchy) uncachedCost(addr uint64, nodeHint int) (uint64, error) {
	home := nodeHint
	if home == mem.NoNodeHint {
		owner, err := h.router.OwnerOf(addr)
		if err != nil {
			return 0, err
		}
		home = owner
	}

	res, err := h.router.Resolve(addr, home)
	if err != nil {
		return 0, err
	}

	return res.AccessCost, nil
}

// FlushCore writes back and drops everything a core holds, then excludes
// the core from directory service. Used when the power controller takes the
// core offline or when the core is reset.
func (h *Hierarchy) FlushCore(core int) {
	for _, v := range h.l1s[core].DrainAll() {
		if v.Dirty {
			_ = h.storage.Write(v.LineAddr, v.Data)
		}
	}

	h.directory.SetCoreOffline(core)
}

// RestoreCore readmits a core to directory service.
func (h *Hierarchy) RestoreCore(core int) {
	h.directory.SetCoreOnline(core)
}

// fetchLine walks L2, L3, L4, and storage for a line, filling the levels it
// passed on the way.
func (h *Hierarchy) fetchLine(
	core int,
	asid mem.ASID,
	lineAddr uint64,
	cost *uint64,
) ([]byte, error) {
	lineSize := h.directory.LineSize()

	l2 := h.l2s[h.coreCluster[core]]
	*cost += l2.AccessCost()
	if data, ok := l2.Lookup(asid, lineAddr); ok {
		return cloneBytes(data), nil
	}

	*cost += h.l3.AccessCost()
	if data, ok := h.l3.Lookup(asid, lineAddr); ok {
		h.fillShared(l2, nil, asid, lineAddr, data)
		return cloneBytes(data), nil
	}

	res, err := h.router.Resolve(lineAddr, h.coreHome[core])
	if err != nil {
		return nil, err
	}
	*cost += res.AccessCost

	l4 := h.l4s[res.NodeID]
	*cost += l4.AccessCost()
	if data, ok := l4.Lookup(asid, lineAddr); ok {
		h.fillShared(l2, h.l3, asid, lineAddr, data)
		return cloneBytes(data), nil
	}

	*cost += h.memCost
	data, err := h.storage.Read(lineAddr, lineSize)
	if err != nil {
		return nil, err
	}

	l4.Fill(asid, lineAddr, cloneBytes(data), false)
	h.fillShared(l2, h.l3, asid, lineAddr, data)

	return data, nil
}

// fillShared installs clean copies into the shared levels that missed.
func (h *Hierarchy) fillShared(
	l2, l3 *Level,
	asid mem.ASID,
	lineAddr uint64,
	data []byte,
) {
	if l3 != nil {
		l3.Fill(asid, lineAddr, cloneBytes(data), false)
	}
	if l2 != nil {
		l2.Fill(asid, lineAddr, cloneBytes(data), false)
	}
}

// installL1 places a line into a core's L1, handling the displaced victim.
func (h *Hierarchy) installL1(
	core int,
	asid mem.ASID,
	lineAddr uint64,
	data []byte,
	dirty bool,
) {
	victim := h.l1s[core].Fill(asid, lineAddr, data, dirty)
	if victim == nil {
		return
	}

	if victim.Dirty {
		_ = h.storage.Write(victim.LineAddr, victim.Data)
	}

	h.directory.Submit(&coherence.Transaction{
		Kind: coherence.AccessEvict,
		Core: core,
		ASID: victim.ASID,
		Addr: victim.LineAddr,
	})
}

func (h *Hierarchy) secureRead(
	core int,
	asid mem.ASID,
	addr, size uint64,
	callback func(data []byte, cost uint64, err error),
) {
	h.directory.Submit(&coherence.Transaction{
		Kind:   coherence.AccessRead,
		Core:   core,
		ASID:   asid,
		Addr:   addr,
		Secure: true,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(nil, res.Cost, res.Err)
				return
			}

			data, err := h.directory.SecureRead(asid, addr, size)
			callback(data, res.Cost, err)
		},
	})
}

func (h *Hierarchy) secureWrite(
	core int,
	asid mem.ASID,
	addr uint64,
	data []byte,
	callback func(cost uint64, err error),
) {
	h.directory.Submit(&coherence.Transaction{
		Kind:   coherence.AccessWrite,
		Core:   core,
		ASID:   asid,
		Addr:   addr,
		Secure: true,
		Callback: func(res coherence.Result) {
			if res.Err != nil {
				callback(res.Cost, res.Err)
				return
			}

			err := h.directory.SecureWrite(asid, addr, data)
			callback(res.Cost, err)
		},
	})
}

// LineData implements coherence.CacheOps.
func (h *Hierarchy) LineData(
	core int,
	asid mem.ASID,
	lineAddr uint64,
) ([]byte, bool) {
	return h.l1s[core].Peek(asid, lineAddr)
}

// InvalidateLine implements coherence.CacheOps.
func (h *Hierarchy) InvalidateLine(core int, asid mem.ASID, lineAddr uint64) {
	h.l1s[core].Invalidate(asid, lineAddr)
}

// InvalidateShared implements coherence.CacheOps.
func (h *Hierarchy) InvalidateShared(asid mem.ASID, lineAddr uint64) {
	for _, l2 := range h.l2s {
		l2.Invalidate(asid, lineAddr)
	}
	h.l3.Invalidate(asid, lineAddr)
	for _, l4 := range h.l4s {
		l4.Invalidate(asid, lineAddr)
	}
}

func cloneBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
