package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

type sampleMsg struct {
	MsgMeta
}

func newSampleMsg() *sampleMsg {
	m := &sampleMsg{}
	m.ID = GetIDGenerator().Generate()
	return m
}

func (m *sampleMsg) Meta() *MsgMeta {
	return &m.MsgMeta
}

func (m *sampleMsg) Clone() Msg {
	cloneMsg := *m
	cloneMsg.ID = GetIDGenerator().Generate()

	return &cloneMsg
}

var _ = Describe("DefaultPort", func() {
	var (
		mockCtrl *gomock.Controller
		comp     *MockComponent
		conn     *MockConnection
		port     *defaultPort
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		comp = NewMockComponent(mockCtrl)
		conn = NewMockConnection(mockCtrl)
		port = NewPort(comp, 4, 4, "Port").(*defaultPort)
		port.SetConnection(conn)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should return component", func() {
		Expect(port.Component()).To(BeIdenticalTo(comp))
	})

	It("should return name", func() {
		Expect(port.Name()).To(Equal("Port"))
	})

	It("should set connection", func() {
		Expect(port.conn).To(BeIdenticalTo(conn))
	})

	It("should panic when setting a second connection", func() {
		conn2 := NewMockConnection(mockCtrl)
		conn.EXPECT().Name().Return("Conn").AnyTimes()
		conn2.EXPECT().Name().Return("Conn2").AnyTimes()

		Expect(func() { port.SetConnection(conn2) }).To(Panic())
	})

	It("should panic if port is not msg src", func() {
		msg := newSampleMsg()

		Expect(func() { port.Send(msg) }).To(Panic())
	})

	It("should panic if msg dst is not set", func() {
		msg := newSampleMsg()
		msg.Src = port.AsRemote()

		Expect(func() { port.Send(msg) }).To(Panic())
	})

	It("should panic if msg src is the same as dst", func() {
		msg := newSampleMsg()
		msg.Src = port.AsRemote()
		msg.Dst = port.AsRemote()

		Expect(func() { port.Send(msg) }).To(Panic())
	})

	It("should send successfully", func() {
		msg := newSampleMsg()
		msg.Src = port.AsRemote()
		msg.Dst = "DstPort"
		conn.EXPECT().NotifySend()

		err := port.Send(msg)

		Expect(err).To(BeNil())
		Expect(port.PeekOutgoing()).To(BeIdenticalTo(msg))
	})

	It("should propagate error when outgoing buf is full", func() {
		msg := newSampleMsg()
		msg.Src = port.AsRemote()
		msg.Dst = "DstPort"

		port.outgoingBuf.Push(msg)
		port.outgoingBuf.Push(msg)
		port.outgoingBuf.Push(msg)
		port.outgoingBuf.Push(msg)

		errRet := port.Send(msg)

		Expect(errRet).NotTo(BeNil())
	})

	It("should deliver when successful", func() {
		msg := newSampleMsg()

		comp.EXPECT().NotifyRecv(port)

		errRet := port.Deliver(msg)

		Expect(errRet).To(BeNil())
	})

	It("should fail to deliver when incoming buffer is full", func() {
		msg := newSampleMsg()
		port.incomingBuf = NewBuffer("Buf", 4)
		port.incomingBuf.Push(msg)
		port.incomingBuf.Push(msg)
		port.incomingBuf.Push(msg)
		port.incomingBuf.Push(msg)

		errRet := port.Deliver(msg)

		Expect(errRet).NotTo(BeNil())
	})

	It("should return nil when peeking empty incoming buffer", func() {
		msg := port.PeekIncoming()

		Expect(msg).To(BeNil())
	})

	It("should allow component to peek message from incoming buffer", func() {
		msg := newSampleMsg()
		port.incomingBuf.Push(msg)

		msgRet := port.PeekIncoming()

		Expect(msgRet).To(BeIdenticalTo(msg))
	})

	It("should return nil when peeking empty outgoing buffer", func() {
		msg := port.PeekOutgoing()

		Expect(msg).To(BeNil())
	})

	It("should return nil when retrieving empty incoming buffer", func() {
		msg := port.RetrieveIncoming()

		Expect(msg).To(BeNil())
	})

	It("should allow component to retrieve message from incoming buffer",
		func() {
			msg := newSampleMsg()
			port.incomingBuf.Push(msg)

			msgRet := port.RetrieveIncoming()

			Expect(msgRet).To(BeIdenticalTo(msg))
		})

	It("should notify the connection when a full incoming buffer drains",
		func() {
			msg := newSampleMsg()
			port.incomingBuf.Push(msg)
			port.incomingBuf.Push(msg)
			port.incomingBuf.Push(msg)
			port.incomingBuf.Push(msg)

			conn.EXPECT().NotifyAvailable(port)

			msgRet := port.RetrieveIncoming()

			Expect(msgRet).To(BeIdenticalTo(msg))
		})

	It("should allow connection to retrieve message from outgoing buffer",
		func() {
			msg := newSampleMsg()
			port.outgoingBuf.Push(msg)

			msgRet := port.RetrieveOutgoing()

			Expect(msgRet).To(BeIdenticalTo(msg))
		})

	It("should notify the component when a full outgoing buffer drains",
		func() {
			msg := newSampleMsg()
			port.outgoingBuf.Push(msg)
			port.outgoingBuf.Push(msg)
			port.outgoingBuf.Push(msg)
			port.outgoingBuf.Push(msg)

			comp.EXPECT().NotifyPortFree(port)

			msgRet := port.RetrieveOutgoing()

			Expect(msgRet).To(BeIdenticalTo(msg))
		})

	It("should notify the component when the connection is available again",
		func() {
			comp.EXPECT().NotifyPortFree(port)

			port.NotifyAvailable()
		})
})
