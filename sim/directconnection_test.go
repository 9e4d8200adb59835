package sim

import (
	"fmt"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("DirectConnection", func() {
	var (
		mockCtrl   *gomock.Controller
		port1      *MockPort
		port2      *MockPort
		engine     *MockEngine
		connection *DirectConnection
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		port1 = NewMockPort(mockCtrl)
		port2 = NewMockPort(mockCtrl)
		engine = NewMockEngine(mockCtrl)
		connection = NewDirectConnection("Conn", engine, 1)

		port1.EXPECT().AsRemote().Return(RemotePort("Port1")).AnyTimes()
		port2.EXPECT().AsRemote().Return(RemotePort("Port2")).AnyTimes()

		port1.EXPECT().SetConnection(connection)
		connection.PlugIn(port1)

		port2.EXPECT().SetConnection(connection)
		connection.PlugIn(port2)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule a secondary tick when notified of a send", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).AnyTimes()
		engine.EXPECT().Schedule(gomock.Any()).Do(func(e Event) {
			Expect(e.Time()).To(Equal(VTimeInSec(10)))
			Expect(e.IsSecondary()).To(BeTrue())
		})

		connection.NotifySend()
	})

	It("should forward messages when ticking", func() {
		msg := newSampleMsg()
		msg.Src = "Port1"
		msg.Dst = "Port2"

		port1.EXPECT().PeekOutgoing().Return(msg)
		port1.EXPECT().RetrieveOutgoing().Return(msg)
		port1.EXPECT().PeekOutgoing().Return(nil)
		port2.EXPECT().PeekOutgoing().Return(nil)
		port2.EXPECT().Deliver(msg).Return(nil)

		madeProgress := connection.Tick()

		Expect(madeProgress).To(BeTrue())
	})

	It("should stop forwarding when the destination rejects", func() {
		msg := newSampleMsg()
		msg.Src = "Port1"
		msg.Dst = "Port2"

		port1.EXPECT().PeekOutgoing().Return(msg)
		port2.EXPECT().PeekOutgoing().Return(nil)
		port2.EXPECT().Deliver(msg).Return(NewSendError())

		madeProgress := connection.Tick()

		Expect(madeProgress).To(BeFalse())
	})

	It("should panic when the destination is not plugged in", func() {
		msg := newSampleMsg()
		msg.Src = "Port1"
		msg.Dst = "Nowhere"

		port1.EXPECT().PeekOutgoing().Return(msg).AnyTimes()

		Expect(func() { connection.Tick() }).To(Panic())
	})
})

type agent struct {
	*TickingComponent

	msgsOut []Msg
	msgsIn  []Msg

	OutPort Port
}

func newAgent(engine Engine, freq Freq, name string) *agent {
	a := new(agent)
	a.TickingComponent = NewTickingComponent(name, engine, freq, a)
	a.OutPort = NewPort(a, 4, 4, name+".OutPort")
	a.AddPort("Out", a.OutPort)
	return a
}

func (a *agent) Tick() bool {
	madeProgress := false

	msgIn := a.OutPort.RetrieveIncoming()
	if msgIn != nil {
		a.msgsIn = append(a.msgsIn, msgIn)
		madeProgress = true
	}

	if len(a.msgsOut) > 0 {
		err := a.OutPort.Send(a.msgsOut[0])
		if err == nil {
			madeProgress = true
			a.msgsOut = a.msgsOut[1:]
		}
	}

	return madeProgress
}

var _ = Describe("Direct Connection Integration", func() {
	var (
		engine          Engine
		connection      *DirectConnection
		agents          []*agent
		numAgents       = 10
		numMsgsPerAgent = 100
	)

	BeforeEach(func() {
		engine = NewSerialEngine()
		connection = NewDirectConnection("Conn", engine, 1)
		agents = nil
		for i := 0; i < numAgents; i++ {
			a := newAgent(engine, 1, fmt.Sprintf("Agent[%d]", i))
			agents = append(agents, a)
			connection.PlugIn(a.OutPort)
		}
	})

	It("should deliver all messages", func() {
		rng := rand.New(rand.NewSource(1))
		for _, a := range agents {
			for i := 0; i < numMsgsPerAgent; i++ {
				msg := newSampleMsg()
				msg.Src = a.OutPort.AsRemote()
				msg.Dst = agents[rng.Intn(len(agents))].OutPort.AsRemote()
				for msg.Dst == msg.Src {
					msg.Dst = agents[rng.Intn(len(agents))].
						OutPort.AsRemote()
				}
				a.msgsOut = append(a.msgsOut, msg)
			}
			a.TickLater()
		}

		err := engine.Run()

		Expect(err).To(BeNil())

		totalRecvedMsgCount := 0
		for _, a := range agents {
			totalRecvedMsgCount += len(a.msgsIn)
		}
		Expect(totalRecvedMsgCount).To(Equal(numAgents * numMsgsPerAgent))
	})

	It("should run deterministically", func() {
		seed := int64(42)
		time1 := directConnectionTest(seed)
		time2 := directConnectionTest(seed)

		Expect(time1).To(Equal(time2))
	})
})

func directConnectionTest(seed int64) VTimeInSec {
	rng := rand.New(rand.NewSource(seed))
	numAgents := 20
	numMsgsPerAgent := 100
	engine := NewSerialEngine()
	connection := NewDirectConnection("Conn", engine, 1)
	agents := make([]*agent, 0, numAgents)

	for i := 0; i < numAgents; i++ {
		a := newAgent(engine, 1, fmt.Sprintf("Agent[%d]", i))
		agents = append(agents, a)
		connection.PlugIn(a.OutPort)
	}

	for _, a := range agents {
		for i := 0; i < numMsgsPerAgent; i++ {
			msg := newSampleMsg()
			msg.Src = a.OutPort.AsRemote()
			msg.Dst = agents[rng.Intn(len(agents))].OutPort.AsRemote()
			for msg.Dst == msg.Src {
				msg.Dst = agents[rng.Intn(len(agents))].OutPort.AsRemote()
			}
			a.msgsOut = append(a.msgsOut, msg)
		}
		a.TickLater()
	}

	_ = engine.Run()

	return engine.CurrentTime()
}
