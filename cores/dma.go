package cores

import (
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/sim"
)

// A Transfer is one DMA request: a read or a write tagged with a QoS class
// and an optional NUMA node hint.
type Transfer struct {
	IsWrite  bool
	Addr     uint64
	Size     uint64
	Data     []byte
	ASID     mem.ASID
	QoS      mem.QoSClass
	NodeHint int
}

// A TransferResult is the completion of one DMA transfer.
type TransferResult struct {
	Index int
	Data  []byte
	Err   error
}

// A DMAEngine issues transfers to the memory system through a port. Once
// admitted, its requests are indistinguishable from core requests.
type DMAEngine struct {
	*sim.TickingComponent

	topPort sim.Port
	memPort sim.RemotePort

	transfers []Transfer
	next      int

	outstanding string // request id awaiting a response
	results     []TransferResult
}

// SetTransfers replaces the transfer list. The engine starts issuing on its
// next tick.
func (d *DMAEngine) SetTransfers(transfers []Transfer) {
	d.transfers = transfers
	d.next = 0
	d.results = d.results[:0]
	d.TickLater()
}

// Results returns the completions collected so far.
func (d *DMAEngine) Results() []TransferResult {
	return d.results
}

// Done tells if every transfer has completed.
func (d *DMAEngine) Done() bool {
	return d.outstanding == "" && d.next >= len(d.transfers)
}

// Tick consumes responses and issues the next transfer.
func (d *DMAEngine) Tick() bool {
	madeProgress := d.consumeRsp()
	madeProgress = d.issueNext() || madeProgress

	return madeProgress
}

func (d *DMAEngine) consumeRsp() bool {
	msg := d.topPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	index := d.next - 1

	switch rsp := msg.(type) {
	case *mem.DataReadyRsp:
		d.results = append(d.results, TransferResult{
			Index: index,
			Data:  rsp.Data,
		})
	case *mem.WriteDoneRsp:
		d.results = append(d.results, TransferResult{Index: index})
	}

	d.outstanding = ""

	return true
}

func (d *DMAEngine) issueNext() bool {
	if d.outstanding != "" || d.next >= len(d.transfers) {
		return false
	}

	t := d.transfers[d.next]

	var req sim.Msg
	if t.IsWrite {
		req = mem.MakeWriteReqBuilder().
			WithSrc(d.topPort.AsRemote()).
			WithDst(d.memPort).
			WithAddress(t.Addr).
			WithData(t.Data).
			WithASID(t.ASID).
			WithQoS(t.QoS).
			WithNodeHint(t.NodeHint).
			Build()
	} else {
		req = mem.MakeReadReqBuilder().
			WithSrc(d.topPort.AsRemote()).
			WithDst(d.memPort).
			WithAddress(t.Addr).
			WithByteSize(t.Size).
			WithASID(t.ASID).
			WithQoS(t.QoS).
			WithNodeHint(t.NodeHint).
			Build()
	}

	if err := d.topPort.Send(req); err != nil {
		return false
	}

	d.outstanding = req.Meta().ID
	d.next++

	return true
}

// DMABuilder can build DMA engines.
type DMABuilder struct {
	engine sim.Engine
	freq   sim.Freq

	memPort sim.RemotePort
}

// MakeDMABuilder creates a builder with default parameters.
func MakeDMABuilder() DMABuilder {
	return DMABuilder{freq: 1 * sim.GHz}
}

// WithEngine sets the event engine that drives the DMA engine.
func (b DMABuilder) WithEngine(engine sim.Engine) DMABuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the DMA engine.
func (b DMABuilder) WithFreq(freq sim.Freq) DMABuilder {
	b.freq = freq
	return b
}

// WithMemPort sets the memory system port the engine sends to.
func (b DMABuilder) WithMemPort(port sim.RemotePort) DMABuilder {
	b.memPort = port
	return b
}

// Build creates a DMA engine.
func (b DMABuilder) Build(name string) *DMAEngine {
	d := &DMAEngine{memPort: b.memPort}
	d.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, d)

	d.topPort = sim.NewPort(d, 4, 4, name+".TopPort")
	d.AddPort("Top", d.topPort)

	return d
}
