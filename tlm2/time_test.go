package tlm2_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/tlm2"
)

var _ = Describe("Time", func() {
	var (
		collector *report.Collector
		t         *tlm2.Time
	)

	BeforeEach(func() {
		collector = report.NewCollector()
		report.SetDefault(report.NewServer(collector))
		t = tlm2.NewTime("delay", 1e-12)
	})

	It("should read back an increment in the same timescale", func() {
		t.Incr(3.5, 1, 1e-9)

		Expect(t.RealTime(1, 1e-9)).To(BeNumerically("~", 3.5, 1e-12))
		Expect(t.Value()).To(Equal(int64(3500)))
	})

	It("should agree across timescales", func() {
		t.Incr(2, 1, 1e-9)
		t.Incr(500, 1, 1e-12)

		Expect(t.RealTime(1, 1e-9)).To(BeNumerically("~", 2.5, 1e-12))
		Expect(t.RealTime(1, 1e-12)).To(BeNumerically("~", 2500, 1e-9))
		Expect(t.AbsTime(1)).To(BeNumerically("~", 2.5e-9, 1e-21))
	})

	It("should undo an increment with a matching decrement", func() {
		t.Incr(7, 1, 1e-9)
		t.Incr(3, 1, 1e-9)
		t.Decr(3, 1, 1e-9)

		Expect(t.RealTime(1, 1e-9)).To(BeNumerically("~", 7, 1e-12))
	})

	It("should reject negative values", func() {
		t.Incr(1, 1, 1e-9)
		t.Incr(-1, 1, 1e-9)
		t.Decr(-1, 1, 1e-9)

		Expect(t.RealTime(1, 1e-9)).To(BeNumerically("~", 1, 1e-12))
		Expect(collector.Messages("UVM/TLM/TIMENEG")).To(HaveLen(2))
	})

	It("should clamp at zero when decremented too far", func() {
		t.Incr(1, 1, 1e-9)
		t.Decr(2, 1, 1e-9)

		Expect(t.Value()).To(BeZero())
		Expect(collector.Contains("UVM/TLM/TOODECR",
			"to a negative value")).To(BeTrue())
	})

	It("should fail on a zero scale", func() {
		Expect(func() { t.Incr(1, 0, 1e-9) }).To(
			PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
		Expect(func() { t.Decr(1, 0, 1e-9) }).To(
			PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
	})

	It("should set the absolute time", func() {
		t.SetAbsTime(4, 1e-9)
		Expect(t.AbsTime(1e-9)).To(BeNumerically("~", 4, 1e-12))

		t.Reset()
		Expect(t.AbsTime(1e-9)).To(BeZero())
		Expect(t.Name()).To(Equal("delay"))
	})

	It("should use the default resolution", func() {
		old := tlm2.TimeResolution()
		defer tlm2.SetTimeResolution(old)

		tlm2.SetTimeResolution(1e-9)
		coarse := tlm2.NewTime("coarse", 0)
		coarse.Incr(1500, 1, 1e-12)

		Expect(coarse.Resolution()).To(Equal(1e-9))
		Expect(coarse.Value()).To(Equal(int64(2)))
	})
})
