package seq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/seq"
)

// hookedSeq records the callbacks it receives.
type hookedSeq struct {
	*seq.SequenceBase
	calls []string
	child seq.Sequence
}

func newHookedSeq(name string) *hookedSeq {
	s := &hookedSeq{}
	s.SequenceBase = seq.NewSequenceBase(name, s)

	return s
}

func (s *hookedSeq) PreStart()  { s.calls = append(s.calls, "pre_start") }
func (s *hookedSeq) PreBody()   { s.calls = append(s.calls, "pre_body") }
func (s *hookedSeq) PostBody()  { s.calls = append(s.calls, "post_body") }
func (s *hookedSeq) PostStart() { s.calls = append(s.calls, "post_start") }
func (s *hookedSeq) DoKill()    { s.calls = append(s.calls, "kill") }

func (s *hookedSeq) PreDo(isItem bool) {
	if isItem {
		s.calls = append(s.calls, "pre_do_item")
		return
	}

	s.calls = append(s.calls, "pre_do_seq")
}

func (s *hookedSeq) MidDo(seq.Item)  { s.calls = append(s.calls, "mid_do") }
func (s *hookedSeq) PostDo(seq.Item) { s.calls = append(s.calls, "post_do") }

func (s *hookedSeq) Body() {
	s.calls = append(s.calls, "body")

	if s.child != nil {
		s.child.Seq().Start(s.Sequencer(), s, -1, false)
		return
	}

	s.Do(newTxn("t", 0))
}

// echoDriver answers each item with a response carrying twice its data.
func echoDriver(sched *kernel.Scheduler, sqr *seq.Sequencer, n int) {
	sched.Fork("echo_driver", func() {
		for i := 0; i < n; i++ {
			req := sqr.GetNextItem().(*txn)
			rsp := newTxn("rsp", req.data*2)
			rsp.SetIDInfo(req)

			sched.Delay(1e-9)
			sqr.ItemDone(rsp)
		}
	})
}

type handlerSeq struct {
	*seq.SequenceBase
	got []int
}

func newHandlerSeq(name string) *handlerSeq {
	s := &handlerSeq{}
	s.SequenceBase = seq.NewSequenceBase(name, s)
	s.UseResponseHandler(true)

	return s
}

func (s *handlerSeq) Body() {
	s.Do(newTxn("t", 21))
}

func (s *handlerSeq) HandleResponse(rsp seq.Item) {
	s.got = append(s.got, rsp.(*txn).data)
}

var _ = Describe("Sequence", func() {
	var (
		tb  *testbench
		log []grant
	)

	BeforeEach(func() {
		tb = newTestbench("FIFO")
		log = nil
	})

	AfterEach(func() {
		tb.sched.Shutdown()
	})

	It("should run the callbacks in order", func() {
		s := newHookedSeq("s")

		tb.start(s, -1)
		driver(tb.sched, tb.sqr, 1, &log)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(s.calls).To(Equal([]string{
			"pre_start", "pre_body", "body",
			"pre_do_item", "mid_do", "post_do",
			"post_body", "post_start",
		}))
		Expect(s.State()).To(Equal(seq.StateFinished))
	})

	It("should skip pre and post body when asked", func() {
		parent := newHookedSeq("parent")
		child := newHookedSeq("child")
		parent.child = child

		tb.start(parent, -1)
		driver(tb.sched, tb.sqr, 1, &log)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(child.calls).To(Equal([]string{
			"pre_start", "body", "pre_do_item", "mid_do", "post_do",
			"post_start",
		}))
		Expect(parent.calls).To(Equal([]string{
			"pre_start", "pre_body", "body",
			"pre_do_seq", "mid_do", "post_do",
			"post_body", "post_start",
		}))
		Expect(child.Depth()).To(Equal(2))
		Expect(child.FullName()).To(Equal("sqr.parent.child"))
	})

	It("should let other processes wait for a state", func() {
		s := newLoopSeq("s", 1)
		var seenAt sim.VTimeInSec = -1

		tb.start(s, -1)
		tb.sched.Fork("watcher", func() {
			s.WaitForSequenceState(seq.StateFinished)
			seenAt = tb.sched.Now()
		})
		driver(tb.sched, tb.sqr, 1, &log)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(float64(seenAt)).To(BeNumerically(">=", 1e-9))
	})

	It("should inherit the priority of the parent", func() {
		var childPriority int

		parent := newFuncSeq("parent", func(p *funcSeq) {
			c := newFuncSeq("child", func(c *funcSeq) {
				childPriority = c.Priority()
			})
			c.Start(tb.sqr, p, -1, false)
		})

		tb.start(parent, 42)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(childPriority).To(Equal(42))
	})

	It("should use the default priority of the sequencer", func() {
		s := newLoopSeq("s", 0)

		tb.start(s, -1)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(s.Priority()).To(Equal(seq.DefaultPriority))
	})

	It("should fail when started twice", func() {
		s := newLoopSeq("s", -1)

		tb.start(s, -1)
		tb.sched.Fork("second", func() {
			tb.sched.Delay(1e-9)
			s.Start(tb.sqr, nil, -1, true)
		})

		err := tb.sched.Run()

		var fatal *report.FatalError
		Expect(errors.As(err, &fatal)).To(BeTrue())
		Expect(fatal.ID).To(Equal("SEQ_NOT_DONE"))
	})

	It("should fail on an illegal priority", func() {
		s := newLoopSeq("s", 0)

		tb.start(s, -5)

		var fatal *report.FatalError
		Expect(errors.As(tb.sched.Run(), &fatal)).To(BeTrue())
		Expect(fatal.ID).To(Equal("SEQPRI"))
	})

	It("should fail to lock without a sequencer", func() {
		s := newFuncSeq("s", func(s *funcSeq) { s.Lock(nil) })
		s.SetScheduler(tb.sched)

		tb.sched.Fork("start", func() {
			s.Start(nil, nil, -1, true)
		})

		var fatal *report.FatalError
		Expect(errors.As(tb.sched.Run(), &fatal)).To(BeTrue())
		Expect(fatal.ID).To(Equal("LOCKSEQR"))
	})

	It("should run a virtual sequence on a scheduler only", func() {
		child := newLoopSeq("child", 2)
		virtual := newFuncSeq("virtual", func(v *funcSeq) {
			child.Start(tb.sqr, v, -1, true)
		})
		virtual.SetScheduler(tb.sched)

		tb.sched.Fork("start", func() {
			virtual.Start(nil, nil, -1, true)
		})
		driver(tb.sched, tb.sqr, 2, &log)

		Expect(tb.sched.Run()).To(Succeed())
		Expect(virtual.State()).To(Equal(seq.StateFinished))
		Expect(sources(log)).To(Equal([]string{"child", "child"}))
	})

	It("should call DoKill on kill", func() {
		s := newHookedSeq("s")

		tb.start(s, -1)
		tb.sched.Fork("killer", func() {
			tb.sched.Delay(1e-9)
			s.Kill()
		})

		Expect(tb.sched.Run()).To(Succeed())
		Expect(s.calls).To(ContainElement("kill"))
		Expect(s.calls).NotTo(ContainElement("post_start"))
		Expect(s.State()).To(Equal(seq.StateStopped))
	})

	Context("responses", func() {
		It("should route a response back to its sequence", func() {
			var rsp *txn
			var sent *txn

			s := newFuncSeq("s", func(s *funcSeq) {
				sent = newTxn("t", 5)
				s.Do(sent)
				rsp = s.GetResponse(-1).(*txn)
			})

			tb.start(s, -1)
			echoDriver(tb.sched, tb.sqr, 1)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(rsp.data).To(Equal(10))
			Expect(rsp.TransactionID()).To(Equal(sent.TransactionID()))
			Expect(tb.sqr.NumRspsReceived()).To(Equal(1))
			Expect(tb.sqr.LastRsp()).To(BeIdenticalTo(rsp))
		})

		It("should find a response by transaction id", func() {
			var got []int

			s := newFuncSeq("s", func(s *funcSeq) {
				s.Do(newTxn("t", 1))
				s.Do(newTxn("t", 2))

				got = append(got, s.GetResponse(2).(*txn).data)
				got = append(got, s.GetResponse(1).(*txn).data)
			})

			tb.start(s, -1)
			echoDriver(tb.sched, tb.sqr, 2)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(got).To(Equal([]int{4, 2}))
		})

		It("should drop responses when the queue is full", func() {
			s := newFuncSeq("s", func(s *funcSeq) {
				s.SetResponseQueueDepth(1)
				s.Do(newTxn("t", 1))
				s.Do(newTxn("t", 2))
			})

			tb.start(s, -1)
			echoDriver(tb.sched, tb.sqr, 2)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(s.NumResponses()).To(Equal(1))
			Expect(tb.collector.Contains(s.FullName(),
				"Response queue overflow")).To(BeTrue())
		})

		It("should stay silent on overflow when reporting is off", func() {
			s := newFuncSeq("s", func(s *funcSeq) {
				s.SetResponseQueueDepth(1)
				s.SetResponseQueueErrorReportEnabled(false)
				s.Do(newTxn("t", 1))
				s.Do(newTxn("t", 2))
			})

			tb.start(s, -1)
			echoDriver(tb.sched, tb.sqr, 2)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(report.Default().Count(report.Error)).To(Equal(0))
		})

		It("should hand responses to the response handler", func() {
			s := newHandlerSeq("s")

			tb.start(s, -1)
			echoDriver(tb.sched, tb.sqr, 1)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(s.got).To(Equal([]int{42}))
			Expect(s.NumResponses()).To(Equal(0))
		})
	})
})
