package tlm2_test

import (
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/component"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/tlm2"
)

var _ = Describe("Socket", func() {
	var (
		mockCtrl  *gomock.Controller
		collector *report.Collector
		top       *component.Base
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		collector = report.NewCollector()
		report.SetDefault(report.NewServer(collector))
		top = component.NewBase("top", nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("blocking", func() {
		var (
			imp       *MockBlockingTransport
			initiator *tlm2.Socket
			target    *tlm2.Socket
		)

		BeforeEach(func() {
			imp = NewMockBlockingTransport(mockCtrl)
			initiator = tlm2.NewBInitiatorSocket("initiator", top)
			target = tlm2.NewBTargetSocket("target", top, imp)
		})

		It("should deliver a transaction to the target", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			p := newWrite(0x40, 1, 2, 3, 4)
			delay := tlm2.NewTime("delay", 0)

			imp.EXPECT().BTransport(p, delay).
				Do(func(t *tlm2.GenericPayload, d *tlm2.Time) {
					d.Incr(10, 1, 1e-9)
					t.Response = tlm2.ResponseOK
				})

			initiator.BTransport(p, delay)

			Expect(p.IsResponseOK()).To(BeTrue())
			Expect(delay.RealTime(1, 1e-9)).To(BeNumerically("~", 10, 1e-9))
		})

		It("should pass through hierarchical sockets", func() {
			child := component.NewBase("child", top)
			other := component.NewBase("other", top)

			childInit := tlm2.NewBInitiatorSocket("out", child)
			exportInit := tlm2.NewBPassthroughInitiatorSocket("out", top)
			exportTarget := tlm2.NewBPassthroughTargetSocket("in", other)
			leaf := tlm2.NewBTargetSocket("in", other, imp)

			Expect(childInit.Connect(exportInit)).To(Succeed())
			Expect(exportInit.Connect(exportTarget)).To(Succeed())
			Expect(exportTarget.Connect(leaf)).To(Succeed())

			p := newWrite(0, 1)
			imp.EXPECT().BTransport(p, gomock.Any())

			childInit.BTransport(p, tlm2.NewTime("delay", 0))

			Expect(childInit.FullName()).To(Equal("top.child.out"))
			Expect(exportInit.Provider()).To(BeIdenticalTo(exportTarget))
		})

		It("should fail on a null delay", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			Expect(func() { initiator.BTransport(newWrite(0, 1), nil) }).To(
				PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
			Expect(collector.Contains("UVM/TLM2/NULLDELAY",
				"top.initiator.b_transport() called with 'null' delay")).
				To(BeTrue())
		})

		It("should fail when not connected", func() {
			Expect(func() {
				initiator.BTransport(newWrite(0, 1), tlm2.NewTime("d", 0))
			}).To(PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
		})

		It("should refuse to connect a target", func() {
			err := target.Connect(initiator)

			var connErr *tlm2.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Reason).To(ContainSubstring(
				"You cannot call connect() on a target termination socket"))
		})

		It("should refuse a second connection", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			other := tlm2.NewBTargetSocket("other", top, imp)
			Expect(initiator.Connect(other)).NotTo(Succeed())
		})

		It("should name both kinds on a mismatch", func() {
			nbTarget := tlm2.NewNBTargetSocket("nb", top, NewMockFwTransport(mockCtrl))

			err := initiator.Connect(nbTarget)

			var connErr *tlm2.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Actual).To(Equal(tlm2.NBTarget))
			Expect(connErr.Expected).To(ContainElement(tlm2.BTarget))
			Expect(err.Error()).To(ContainSubstring("uvm_tlm_nb_target_socket"))
			Expect(collector.Contains("uvm_tlm_b_initiator_socket",
				"type mismatch in connect")).To(BeTrue())
		})

		It("should not let a pass-through target connect to an initiator side", func() {
			pt := tlm2.NewBPassthroughTargetSocket("pt", top)
			ptInit := tlm2.NewBPassthroughInitiatorSocket("pti", top)

			Expect(pt.Connect(ptInit)).NotTo(Succeed())
			Expect(pt.Connect(target)).To(Succeed())
		})

		It("should fire a hook on the target", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			hook := NewMockHook(mockCtrl)
			target.AcceptHook(hook)

			p := newWrite(0, 1)
			imp.EXPECT().BTransport(p, gomock.Any())
			hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(tlm2.HookPosBTransport))
				Expect(ctx.Item).To(BeIdenticalTo(p))
				Expect(ctx.Domain).To(BeIdenticalTo(target))
			})

			initiator.BTransport(p, tlm2.NewTime("delay", 0))
		})
	})

	Context("non-blocking", func() {
		var (
			fwImp     *MockFwTransport
			bwImp     *MockBwTransport
			initiator *tlm2.Socket
			target    *tlm2.Socket
		)

		BeforeEach(func() {
			fwImp = NewMockFwTransport(mockCtrl)
			bwImp = NewMockBwTransport(mockCtrl)
			initiator = tlm2.NewNBInitiatorSocket("initiator", top, bwImp)
			target = tlm2.NewNBTargetSocket("target", top, fwImp)
		})

		It("should carry calls both ways", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			p := newWrite(0, 1)
			phase := tlm2.BeginReq
			delay := tlm2.NewTime("delay", 0)

			fwImp.EXPECT().NBTransportFw(p, &phase, delay).
				DoAndReturn(func(
					_ *tlm2.GenericPayload, ph *tlm2.Phase, _ *tlm2.Time,
				) tlm2.Sync {
					*ph = tlm2.EndReq
					return tlm2.Updated
				})

			Expect(initiator.NBTransportFw(p, &phase, delay)).
				To(Equal(tlm2.Updated))
			Expect(phase).To(Equal(tlm2.EndReq))

			phase = tlm2.BeginResp
			bwImp.EXPECT().NBTransportBw(p, &phase, delay).
				Return(tlm2.Completed)

			Expect(target.NBTransportBw(p, &phase, delay)).
				To(Equal(tlm2.Completed))
		})

		It("should carry backward calls through pass-through sockets", func() {
			ptInit := tlm2.NewNBPassthroughInitiatorSocket("pti", top)
			ptTarget := tlm2.NewNBPassthroughTargetSocket("ptt", top)

			Expect(initiator.Connect(ptInit)).To(Succeed())
			Expect(ptInit.Connect(ptTarget)).To(Succeed())
			Expect(ptTarget.Connect(target)).To(Succeed())

			p := newWrite(0, 1)
			phase := tlm2.BeginResp
			bwImp.EXPECT().NBTransportBw(p, &phase, gomock.Any()).
				Return(tlm2.Accepted)

			Expect(target.NBTransportBw(p, &phase, tlm2.NewTime("d", 0))).
				To(Equal(tlm2.Accepted))
		})

		It("should fail on a null delay in both directions", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			phase := tlm2.BeginReq
			Expect(func() { initiator.NBTransportFw(newWrite(0, 1), &phase, nil) }).
				To(PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
			Expect(func() { target.NBTransportBw(newWrite(0, 1), &phase, nil) }).
				To(PanicWith(BeAssignableToTypeOf(&report.FatalError{})))

			Expect(collector.Contains("UVM/TLM2/NULLDELAY",
				"top.initiator.nb_transport_fw() called with 'null' delay")).
				To(BeTrue())
			Expect(collector.Contains("UVM/TLM2/NULLDELAY",
				"top.target.nb_transport_bw() called with 'null' delay")).
				To(BeTrue())
		})

		It("should refuse blocking calls", func() {
			Expect(initiator.Connect(target)).To(Succeed())

			Expect(func() {
				initiator.BTransport(newWrite(0, 1), tlm2.NewTime("d", 0))
			}).To(PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
		})
	})
})
