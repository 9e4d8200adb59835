package mem

import (
	"github.com/sarchlab/octacore/sim"
)

// ASID identifies the address space that a request belongs to. The
// virtualization layer attaches one to every request; lines with different
// ASIDs never share coherence state even at the same physical address.
type ASID uint16

// QoSClass is the relative priority used to arbitrate among contending
// requests under congestion. Larger values are serviced first.
type QoSClass uint8

// NoNodeHint marks a request that does not carry a NUMA node hint.
const NoNodeHint = -1

// AccessReq abstracts read and write requests that are sent to the memory
// system.
type AccessReq interface {
	sim.Msg
	GetAddress() uint64
	GetByteSize() uint64
	GetASID() ASID
	GetQoS() QoSClass
}

// A ReadReq is a request sent to the memory system to fetch data.
type ReadReq struct {
	sim.MsgMeta

	Address        uint64
	AccessByteSize uint64
	ASID           ASID
	QoS            QoSClass
	Secure         bool
	NodeHint       int
	Info           interface{}
}

// Meta returns the message meta.
func (r *ReadReq) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a cloned ReadReq with a different ID.
func (r *ReadReq) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()
	return &cloneMsg
}

// GetAddress returns the address that the request is accessing.
func (r *ReadReq) GetAddress() uint64 { return r.Address }

// GetByteSize returns the number of bytes that the request is accessing.
func (r *ReadReq) GetByteSize() uint64 { return r.AccessByteSize }

// GetASID returns the address space that the request works in.
func (r *ReadReq) GetASID() ASID { return r.ASID }

// GetQoS returns the QoS class of the request.
func (r *ReadReq) GetQoS() QoSClass { return r.QoS }

// ReadReqBuilder can build read requests.
type ReadReqBuilder struct {
	src, dst          sim.RemotePort
	address, byteSize uint64
	asid              ASID
	qos               QoSClass
	secure            bool
	nodeHint          int
}

// MakeReadReqBuilder creates a builder with default fields.
func MakeReadReqBuilder() ReadReqBuilder {
	return ReadReqBuilder{nodeHint: NoNodeHint}
}

// WithSrc sets the source of the request to build.
func (b ReadReqBuilder) WithSrc(src sim.RemotePort) ReadReqBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the request to build.
func (b ReadReqBuilder) WithDst(dst sim.RemotePort) ReadReqBuilder {
	b.dst = dst
	return b
}

// WithAddress sets the address of the request to build.
func (b ReadReqBuilder) WithAddress(address uint64) ReadReqBuilder {
	b.address = address
	return b
}

// WithByteSize sets the byte size of the request to build.
func (b ReadReqBuilder) WithByteSize(byteSize uint64) ReadReqBuilder {
	b.byteSize = byteSize
	return b
}

// WithASID sets the address space of the request to build.
func (b ReadReqBuilder) WithASID(asid ASID) ReadReqBuilder {
	b.asid = asid
	return b
}

// WithQoS sets the QoS class of the request to build.
func (b ReadReqBuilder) WithQoS(qos QoSClass) ReadReqBuilder {
	b.qos = qos
	return b
}

// WithSecure marks the request as requiring isolation.
func (b ReadReqBuilder) WithSecure() ReadReqBuilder {
	b.secure = true
	return b
}

// WithNodeHint sets the NUMA node hint of the request to build.
func (b ReadReqBuilder) WithNodeHint(node int) ReadReqBuilder {
	b.nodeHint = node
	return b
}

// Build creates a new ReadReq.
func (b ReadReqBuilder) Build() *ReadReq {
	r := &ReadReq{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.Address = b.address
	r.AccessByteSize = b.byteSize
	r.ASID = b.asid
	r.QoS = b.qos
	r.Secure = b.secure
	r.NodeHint = b.nodeHint
	return r
}

// A WriteReq is a request sent to the memory system to write data.
type WriteReq struct {
	sim.MsgMeta

	Address  uint64
	Data     []byte
	ASID     ASID
	QoS      QoSClass
	Secure   bool
	NodeHint int
	Info     interface{}
}

// Meta returns the message meta.
func (r *WriteReq) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a cloned WriteReq with a different ID.
func (r *WriteReq) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()
	return &cloneMsg
}

// GetAddress returns the address that the request is accessing.
func (r *WriteReq) GetAddress() uint64 { return r.Address }

// GetByteSize returns the number of bytes that the request is writing.
func (r *WriteReq) GetByteSize() uint64 { return uint64(len(r.Data)) }

// GetASID returns the address space that the request works in.
func (r *WriteReq) GetASID() ASID { return r.ASID }

// GetQoS returns the QoS class of the request.
func (r *WriteReq) GetQoS() QoSClass { return r.QoS }

// WriteReqBuilder can build write requests.
type WriteReqBuilder struct {
	src, dst sim.RemotePort
	address  uint64
	data     []byte
	asid     ASID
	qos      QoSClass
	secure   bool
	nodeHint int
}

// MakeWriteReqBuilder creates a builder with default fields.
func MakeWriteReqBuilder() WriteReqBuilder {
	return WriteReqBuilder{nodeHint: NoNodeHint}
}

// WithSrc sets the source of the request to build.
func (b WriteReqBuilder) WithSrc(src sim.RemotePort) WriteReqBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the request to build.
func (b WriteReqBuilder) WithDst(dst sim.RemotePort) WriteReqBuilder {
	b.dst = dst
	return b
}

// WithAddress sets the address of the request to build.
func (b WriteReqBuilder) WithAddress(address uint64) WriteReqBuilder {
	b.address = address
	return b
}

// WithData sets the data of the request to build.
func (b WriteReqBuilder) WithData(data []byte) WriteReqBuilder {
	b.data = data
	return b
}

// WithASID sets the address space of the request to build.
func (b WriteReqBuilder) WithASID(asid ASID) WriteReqBuilder {
	b.asid = asid
	return b
}

// WithQoS sets the QoS class of the request to build.
func (b WriteReqBuilder) WithQoS(qos QoSClass) WriteReqBuilder {
	b.qos = qos
	return b
}

// WithSecure marks the request as requiring isolation.
func (b WriteReqBuilder) WithSecure() WriteReqBuilder {
	b.secure = true
	return b
}

// WithNodeHint sets the NUMA node hint of the request to build.
func (b WriteReqBuilder) WithNodeHint(node int) WriteReqBuilder {
	b.nodeHint = node
	return b
}

// Build creates a new WriteReq.
func (b WriteReqBuilder) Build() *WriteReq {
	r := &WriteReq{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.Address = b.address
	r.Data = b.data
	r.ASID = b.asid
	r.QoS = b.qos
	r.Secure = b.secure
	r.NodeHint = b.nodeHint
	return r
}

// A DataReadyRsp is the response to a ReadReq, carrying the data read.
type DataReadyRsp struct {
	sim.MsgMeta

	RespondTo string
	Data      []byte
}

// Meta returns the message meta.
func (r *DataReadyRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a cloned DataReadyRsp with a different ID.
func (r *DataReadyRsp) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()
	return &cloneMsg
}

// GetRspTo returns the ID of the request that the respond is responding to.
func (r *DataReadyRsp) GetRspTo() string { return r.RespondTo }

// DataReadyRspBuilder can build data ready responses.
type DataReadyRspBuilder struct {
	src, dst sim.RemotePort
	rspTo    string
	data     []byte
}

// WithSrc sets the source of the response to build.
func (b DataReadyRspBuilder) WithSrc(src sim.RemotePort) DataReadyRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the response to build.
func (b DataReadyRspBuilder) WithDst(dst sim.RemotePort) DataReadyRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the request that the response is responding to.
func (b DataReadyRspBuilder) WithRspTo(id string) DataReadyRspBuilder {
	b.rspTo = id
	return b
}

// WithData sets the data to carry.
func (b DataReadyRspBuilder) WithData(data []byte) DataReadyRspBuilder {
	b.data = data
	return b
}

// Build creates a new DataReadyRsp.
func (b DataReadyRspBuilder) Build() *DataReadyRsp {
	r := &DataReadyRsp{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.RespondTo = b.rspTo
	r.Data = b.data
	return r
}

// A WriteDoneRsp is the response to a WriteReq.
type WriteDoneRsp struct {
	sim.MsgMeta

	RespondTo string
}

// Meta returns the message meta.
func (r *WriteDoneRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a cloned WriteDoneRsp with a different ID.
func (r *WriteDoneRsp) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()
	return &cloneMsg
}

// GetRspTo returns the ID of the request that the respond is responding to.
func (r *WriteDoneRsp) GetRspTo() string { return r.RespondTo }

// WriteDoneRspBuilder can build write done responses.
type WriteDoneRspBuilder struct {
	src, dst sim.RemotePort
	rspTo    string
}

// WithSrc sets the source of the response to build.
func (b WriteDoneRspBuilder) WithSrc(src sim.RemotePort) WriteDoneRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the response to build.
func (b WriteDoneRspBuilder) WithDst(dst sim.RemotePort) WriteDoneRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the request that the response is responding to.
func (b WriteDoneRspBuilder) WithRspTo(id string) WriteDoneRspBuilder {
	b.rspTo = id
	return b
}

// Build creates a new WriteDoneRsp.
func (b WriteDoneRspBuilder) Build() *WriteDoneRsp {
	r := &WriteDoneRsp{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.RespondTo = b.rspTo
	return r
}

// CoreCtrlAction is an action that the power or thermal controller can
// request on a core.
type CoreCtrlAction int

// Actions that a CoreCtrlMsg can carry.
const (
	CoreCtrlOffline CoreCtrlAction = iota
	CoreCtrlOnline
)

// A CoreCtrlMsg commands the memory system to take a core offline or bring
// it back online. The offline acknowledgment is sent only after every line
// the core holds has been written back and invalidated.
type CoreCtrlMsg struct {
	sim.MsgMeta

	Action CoreCtrlAction
	CoreID int
}

// Meta returns the message meta.
func (m *CoreCtrlMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone returns a cloned CoreCtrlMsg with a different ID.
func (m *CoreCtrlMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()
	return &cloneMsg
}

// CoreCtrlMsgBuilder can build core control messages.
type CoreCtrlMsgBuilder struct {
	src, dst sim.RemotePort
	action   CoreCtrlAction
	coreID   int
}

// WithSrc sets the source of the message to build.
func (b CoreCtrlMsgBuilder) WithSrc(src sim.RemotePort) CoreCtrlMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the message to build.
func (b CoreCtrlMsgBuilder) WithDst(dst sim.RemotePort) CoreCtrlMsgBuilder {
	b.dst = dst
	return b
}

// WithAction sets the action of the message to build.
func (b CoreCtrlMsgBuilder) WithAction(
	action CoreCtrlAction,
) CoreCtrlMsgBuilder {
	b.action = action
	return b
}

// WithCoreID sets the core that the message controls.
func (b CoreCtrlMsgBuilder) WithCoreID(coreID int) CoreCtrlMsgBuilder {
	b.coreID = coreID
	return b
}

// Build creates a new CoreCtrlMsg.
func (b CoreCtrlMsgBuilder) Build() *CoreCtrlMsg {
	m := &CoreCtrlMsg{}
	m.ID = sim.GetIDGenerator().Generate()
	m.Src = b.src
	m.Dst = b.dst
	m.Action = b.action
	m.CoreID = b.coreID
	return m
}
