package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Buffer", func() {
	var buf Buffer

	BeforeEach(func() {
		buf = NewBuffer("Buf", 2)
	})

	It("should return name", func() {
		Expect(buf.Name()).To(Equal("Buf"))
	})

	It("should push and pop in FIFO order", func() {
		buf.Push(1)
		buf.Push(2)

		Expect(buf.Pop()).To(Equal(1))
		Expect(buf.Pop()).To(Equal(2))
		Expect(buf.Pop()).To(BeNil())
	})

	It("should peek without removing", func() {
		buf.Push(1)

		Expect(buf.Peek()).To(Equal(1))
		Expect(buf.Size()).To(Equal(1))
	})

	It("should return nil when peeking an empty buffer", func() {
		Expect(buf.Peek()).To(BeNil())
	})

	It("should report capacity and size", func() {
		buf.Push(1)

		Expect(buf.Capacity()).To(Equal(2))
		Expect(buf.Size()).To(Equal(1))
		Expect(buf.CanPush()).To(BeTrue())
	})

	It("should refuse push when full", func() {
		buf.Push(1)
		buf.Push(2)

		Expect(buf.CanPush()).To(BeFalse())
		Expect(func() { buf.Push(3) }).To(Panic())
	})

	It("should clear all elements", func() {
		buf.Push(1)
		buf.Push(2)

		buf.Clear()

		Expect(buf.Size()).To(Equal(0))
		Expect(buf.CanPush()).To(BeTrue())
	})
})
