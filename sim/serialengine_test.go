package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should handle events in time order", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		evt1 := NewMockEvent(mockCtrl)
		evt2 := NewMockEvent(mockCtrl)
		evt3 := NewMockEvent(mockCtrl)
		evt4 := NewMockEvent(mockCtrl)

		evt1.EXPECT().Time().Return(VTimeInSec(4.0)).AnyTimes()
		evt1.EXPECT().Handler().Return(handler1).AnyTimes()
		evt1.EXPECT().IsSecondary().Return(false).AnyTimes()
		evt2.EXPECT().Time().Return(VTimeInSec(2.0)).AnyTimes()
		evt2.EXPECT().Handler().Return(handler2).AnyTimes()
		evt2.EXPECT().IsSecondary().Return(false).AnyTimes()
		evt3.EXPECT().Time().Return(VTimeInSec(3.0)).AnyTimes()
		evt3.EXPECT().Handler().Return(handler1).AnyTimes()
		evt3.EXPECT().IsSecondary().Return(false).AnyTimes()
		evt4.EXPECT().Time().Return(VTimeInSec(5.0)).AnyTimes()
		evt4.EXPECT().Handler().Return(handler1).AnyTimes()
		evt4.EXPECT().IsSecondary().Return(false).AnyTimes()

		handleEvt2 := handler2.EXPECT().Handle(evt2).Do(func(_ Event) {
			engine.Schedule(evt3)
			engine.Schedule(evt4)
		})
		handleEvt3 := handler1.EXPECT().
			Handle(evt3).Do(func(_ Event) {}).After(handleEvt2)
		handleEvt1 := handler1.EXPECT().
			Handle(evt1).Do(func(_ Event) {}).After(handleEvt3)
		handler1.EXPECT().
			Handle(evt4).Do(func(_ Event) {}).After(handleEvt1)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		err := engine.Run()

		Expect(err).To(BeNil())
		Expect(engine.CurrentTime()).To(BeNumerically("~", 5.0, 1e-12))
	})

	It("should handle same-time secondary events after primary events",
		func() {
			handler := NewMockHandler(mockCtrl)
			primary := NewMockEvent(mockCtrl)
			secondary := NewMockEvent(mockCtrl)

			primary.EXPECT().Time().Return(VTimeInSec(2.0)).AnyTimes()
			primary.EXPECT().Handler().Return(handler).AnyTimes()
			primary.EXPECT().IsSecondary().Return(false).AnyTimes()
			secondary.EXPECT().Time().Return(VTimeInSec(2.0)).AnyTimes()
			secondary.EXPECT().Handler().Return(handler).AnyTimes()
			secondary.EXPECT().IsSecondary().Return(true).AnyTimes()

			handlePrimary := handler.EXPECT().Handle(primary)
			handler.EXPECT().Handle(secondary).After(handlePrimary)

			engine.Schedule(secondary)
			engine.Schedule(primary)

			err := engine.Run()

			Expect(err).To(BeNil())
		})

	It("should panic when scheduling an event in the past", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := NewMockEvent(mockCtrl)
		evt2 := NewMockEvent(mockCtrl)

		evt1.EXPECT().Time().Return(VTimeInSec(2.0)).AnyTimes()
		evt1.EXPECT().Handler().Return(handler).AnyTimes()
		evt1.EXPECT().IsSecondary().Return(false).AnyTimes()
		evt2.EXPECT().Time().Return(VTimeInSec(1.0)).AnyTimes()

		handler.EXPECT().Handle(evt1).Do(func(_ Event) {
			Expect(func() { engine.Schedule(evt2) }).To(Panic())
		})

		engine.Schedule(evt1)

		err := engine.Run()

		Expect(err).To(BeNil())
	})

	It("should invoke simulation end handlers on Finished", func() {
		handler := &signalEndHandler{}

		engine.RegisterSimulationEndHandler(handler)
		engine.Finished()

		Expect(handler.called).To(BeTrue())
	})
})

type signalEndHandler struct {
	called bool
}

func (h *signalEndHandler) Handle(_ VTimeInSec) {
	h.called = true
}
