// Package memsys binds the cache hierarchy, the coherence directory, and
// the NUMA router behind one component. The top port accepts read and write
// requests from DMA and peripheral agents; the control port accepts power
// and thermal commands to take cores offline and bring them back.
package memsys

import (
	"github.com/sarchlab/octacore/cache"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/numa"
	"github.com/sarchlab/octacore/sim"
	"github.com/sarchlab/octacore/syncunit"
)

// A Comp is the memory system façade.
type Comp struct {
	*sim.TickingComponent

	topPort  sim.Port
	ctrlPort sim.Port

	hierarchy *cache.Hierarchy
	syncUnit  *syncunit.Unit

	admission *numa.Arbiter

	// respondQueue holds responses built by completion callbacks until the
	// tick loop can push them out through their ports.
	respondQueue []respondEntry
}

type respondEntry struct {
	port sim.Port
	msg  sim.Msg
}

// TopPort returns the port that accepts access requests.
func (c *Comp) TopPort() sim.Port {
	return c.topPort
}

// CtrlPort returns the port that accepts core control commands.
func (c *Comp) CtrlPort() sim.Port {
	return c.ctrlPort
}

// Tick drains responses, admits new requests, and serves admitted ones.
func (c *Comp) Tick() bool {
	madeProgress := c.sendResponses()
	madeProgress = c.handleCtrl() || madeProgress
	madeProgress = c.admitTop() || madeProgress
	madeProgress = c.serveAdmitted() || madeProgress

	return madeProgress
}

func (c *Comp) sendResponses() bool {
	if len(c.respondQueue) == 0 {
		return false
	}

	entry := c.respondQueue[0]
	if err := entry.port.Send(entry.msg); err != nil {
		return false
	}

	c.respondQueue = c.respondQueue[1:]

	return true
}

// handleCtrl serves one core control command. The offline acknowledgment is
// sent only after the core's lines are written back and invalidated and its
// synchronization state is released.
func (c *Comp) handleCtrl() bool {
	msg := c.ctrlPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	ctrl := msg.(*mem.CoreCtrlMsg)

	switch ctrl.Action {
	case mem.CoreCtrlOffline:
		c.hierarchy.FlushCore(ctrl.CoreID)
		if c.syncUnit != nil {
			c.syncUnit.ResetCore(ctrl.CoreID)
		}
	case mem.CoreCtrlOnline:
		c.hierarchy.RestoreCore(ctrl.CoreID)
	}

	rsp := sim.GeneralRspBuilder{}.
		WithSrc(c.ctrlPort.AsRemote()).
		WithDst(ctrl.Src).
		WithOriginalReq(ctrl).
		Build()
	c.respond(c.ctrlPort, rsp)

	return true
}

// admitTop moves incoming access requests into the QoS admission queue.
func (c *Comp) admitTop() bool {
	msg := c.topPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	req := msg.(mem.AccessReq)
	c.admission.Enqueue(req, req.GetQoS())

	return true
}

// serveAdmitted starts service for the next admitted request.
func (c *Comp) serveAdmitted() bool {
	item := c.admission.Dequeue()
	if item == nil {
		return false
	}

	switch req := item.(type) {
	case *mem.ReadReq:
		c.serveRead(req)
	case *mem.WriteReq:
		c.serveWrite(req)
	}

	return true
}

func (c *Comp) serveRead(req *mem.ReadReq) {
	c.hierarchy.UncachedRead(
		req.ASID, req.Address, req.AccessByteSize, req.NodeHint,
		func(data []byte, cost uint64, err error) {
			rsp := mem.DataReadyRspBuilder{}.
				WithSrc(c.topPort.AsRemote()).
				WithDst(req.Src).
				WithRspTo(req.ID).
				WithData(data).
				Build()
			c.respond(c.topPort, rsp)
		})
}

func (c *Comp) serveWrite(req *mem.WriteReq) {
	c.hierarchy.UncachedWrite(
		req.ASID, req.Address, req.Data, req.NodeHint,
		func(cost uint64, err error) {
			rsp := mem.WriteDoneRspBuilder{}.
				WithSrc(c.topPort.AsRemote()).
				WithDst(req.Src).
				WithRspTo(req.ID).
				Build()
			c.respond(c.topPort, rsp)
		})
}

func (c *Comp) respond(port sim.Port, msg sim.Msg) {
	c.respondQueue = append(c.respondQueue, respondEntry{port: port, msg: msg})
	c.TickLater()
}
