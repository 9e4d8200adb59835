package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("EventQueue", func() {
	var (
		mockCtrl *gomock.Controller
		queue    EventQueue
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	makeEvent := func(t VTimeInSec) Event {
		evt := NewMockEvent(mockCtrl)
		evt.EXPECT().Time().Return(t).AnyTimes()
		return evt
	}

	It("should pop events in time order", func() {
		evt1 := makeEvent(3.0)
		evt2 := makeEvent(1.0)
		evt3 := makeEvent(2.0)

		queue.Push(evt1)
		queue.Push(evt2)
		queue.Push(evt3)

		Expect(queue.Pop().Time()).To(Equal(VTimeInSec(1.0)))
		Expect(queue.Pop().Time()).To(Equal(VTimeInSec(2.0)))
		Expect(queue.Pop().Time()).To(Equal(VTimeInSec(3.0)))
	})

	It("should peek the earliest event without removing it", func() {
		evt1 := makeEvent(2.0)
		evt2 := makeEvent(1.0)

		queue.Push(evt1)
		queue.Push(evt2)

		Expect(queue.Peek().Time()).To(Equal(VTimeInSec(1.0)))
		Expect(queue.Len()).To(Equal(2))
	})

	It("should report the number of events", func() {
		Expect(queue.Len()).To(Equal(0))

		queue.Push(makeEvent(1.0))

		Expect(queue.Len()).To(Equal(1))
	})
})
