package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("Ticking Component", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		ticker   *MockTicker
		tc       *TickingComponent
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		ticker = NewMockTicker(mockCtrl)
		tc = NewTickingComponent("TC", engine, 1, ticker)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start ticking when notified of receiving a request", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).AnyTimes()
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(e Event) {
				Expect(e.Time()).To(Equal(VTimeInSec(11)))
			})

		tc.NotifyRecv(nil)
	})

	It("should start ticking when notified of a port becoming available",
		func() {
			engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).AnyTimes()
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(e Event) {
					Expect(e.Time()).To(Equal(VTimeInSec(11)))
				})

			tc.NotifyPortFree(nil)
		})

	It("should tick again when the ticker makes progress", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).AnyTimes()
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(e Event) {
				Expect(e.Time()).To(Equal(VTimeInSec(11)))
			})
		ticker.EXPECT().Tick().Return(true)

		tc.Handle(MakeTickEvent(tc, 10))
	})

	It("should not tick if there is another tick scheduled in the future",
		func() {
			engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).AnyTimes()
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(e Event) {
					Expect(e.Time()).To(Equal(VTimeInSec(11)))
				})

			ticker.EXPECT().Tick().Return(true)
			tc.Handle(MakeTickEvent(tc, 10))

			ticker.EXPECT().Tick().Return(true)
			tc.Handle(MakeTickEvent(tc, 10))
		})

	It("should stop ticking if no progress is made", func() {
		ticker.EXPECT().Tick().Return(false)

		tc.Handle(MakeTickEvent(tc, 10))
	})
})
