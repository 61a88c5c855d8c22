package seq_test

import (
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/factory"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/seq"
)

var _ = Describe("Sequencer", func() {
	var (
		tb  *testbench
		log []grant
	)

	AfterEach(func() {
		tb.sched.Shutdown()
	})

	Context("FIFO arbitration", func() {
		BeforeEach(func() {
			tb = newTestbench("FIFO")
			log = nil
		})

		It("should grant requests in arrival order", func() {
			tb.start(newLoopSeq("a", 2), -1)
			tb.start(newLoopSeq("b", 2), -1)
			tb.start(newLoopSeq("c", 2), -1)
			driver(tb.sched, tb.sqr, 6, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal(
				[]string{"a", "b", "c", "a", "b", "c"}))
			Expect(tb.sqr.NumReqsSent()).To(Equal(6))
		})

		It("should number the items of each sequence", func() {
			var items []*txn

			s := newFuncSeq("s", func(s *funcSeq) {
				for i := 0; i < 3; i++ {
					t := newTxn("t", i)
					s.Do(t)
					items = append(items, t)
				}
			})
			tb.start(s, -1)
			driver(tb.sched, tb.sqr, 3, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(items).To(HaveLen(3))

			for i, t := range items {
				Expect(t.TransactionID()).To(Equal(i + 1))
				Expect(t.SequenceID()).To(BeNumerically(">", 0))
				Expect(t.Sequencer()).To(BeIdenticalTo(tb.sqr))
				Expect(t.FullName()).To(Equal("sqr.s.t"))
			}

			seqID, transID := tb.sqr.LastItemDone()
			Expect(seqID).To(Equal(items[2].SequenceID()))
			Expect(transID).To(Equal(3))
		})

		It("should have at most one grant outstanding", func() {
			mockCtrl := gomock.NewController(GinkgoT())
			defer mockCtrl.Finish()

			hook := NewMockHook(mockCtrl)
			tb.sqr.AcceptHook(hook)

			var positions []*sim.HookPos
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					if ctx.Pos == seq.HookPosGrant ||
						ctx.Pos == seq.HookPosItemDone {
						positions = append(positions, ctx.Pos)
					}
				}).
				AnyTimes()

			tb.start(newLoopSeq("a", 3), -1)
			tb.start(newLoopSeq("b", 3), -1)
			driver(tb.sched, tb.sqr, 6, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(positions).To(HaveLen(12))

			for i, p := range positions {
				if i%2 == 0 {
					Expect(p).To(BeIdenticalTo(seq.HookPosGrant))
				} else {
					Expect(p).To(BeIdenticalTo(seq.HookPosItemDone))
				}
			}
		})

		It("should fire a request hook for every queued request", func() {
			mockCtrl := gomock.NewController(GinkgoT())
			defer mockCtrl.Finish()

			hook := NewMockHook(mockCtrl)
			tb.sqr.AcceptHook(hook)

			var kinds []seq.RequestKind
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					if ctx.Pos == seq.HookPosRequest {
						kinds = append(kinds, ctx.Item.(*seq.Request).Kind)
					}
				}).
				AnyTimes()

			s := newFuncSeq("s", func(s *funcSeq) {
				s.Lock(nil)
				s.Do(newTxn("t", 0))
				s.Unlock(nil)
			})
			tb.start(s, -1)
			driver(tb.sched, tb.sqr, 1, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(kinds).To(Equal([]seq.RequestKind{seq.Lock, seq.Req}))
		})

		It("should report calling get_next_item twice", func() {
			var first, second seq.Item

			tb.start(newLoopSeq("a", 1), -1)
			tb.sched.Fork("driver", func() {
				first = tb.sqr.GetNextItem()
				second = tb.sqr.GetNextItem()
				tb.sqr.ItemDone(nil)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(second).To(BeIdenticalTo(first))
			Expect(tb.collector.Contains(tb.sqr.FullName(),
				"called twice")).To(BeTrue())
		})

		It("should let a driver peek and get", func() {
			var peeked, got seq.Item

			s := newLoopSeq("a", 1)
			tb.start(s, -1)
			tb.sched.Fork("driver", func() {
				peeked = tb.sqr.Peek()
				got = tb.sqr.Get()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(got).To(BeIdenticalTo(peeked))
			Expect(s.sent).To(Equal(1))
			Expect(s.State()).To(Equal(seq.StateFinished))
		})

		It("should return nothing from try_next_item when idle", func() {
			ok := true

			tb.sched.Fork("driver", func() {
				_, ok = tb.sqr.TryNextItem()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(ok).To(BeFalse())
		})

		It("should return a ready item from try_next_item", func() {
			var item seq.Item
			ok := false

			tb.start(newLoopSeq("a", 1), -1)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				item, ok = tb.sqr.TryNextItem()
				tb.sqr.ItemDone(nil)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(ok).To(BeTrue())
			Expect(item.(*txn).data).To(Equal(0))
		})

		It("should fail on item_done without an item", func() {
			Expect(func() { tb.sqr.ItemDone(nil) }).To(
				PanicWith(BeAssignableToTypeOf(&report.FatalError{})))
		})

		It("should render the queues", func() {
			Expect(tb.sqr.String()).To(ContainSubstring("arbitration queue"))
			Expect(tb.sqr.String()).To(ContainSubstring("lock list"))
		})
	})

	Context("locking", func() {
		BeforeEach(func() {
			tb = newTestbench("FIFO")
			log = nil
		})

		It("should hold back other sequences until unlock", func() {
			blockedSeen := false

			s1 := newFuncSeq("s1", func(s *funcSeq) {
				s.Lock(nil)
				newLoopSeq("s3", 1).Start(tb.sqr, s, -1, true)

				tb.sched.Delay(10e-9)
				s.Unlock(nil)
			})

			s2 := newFuncSeq("s2", func(s *funcSeq) {
				tb.sched.Delay(1e-9)
				blockedSeen = s.IsBlocked()
				s.Do(newTxn("t", 0))
			})

			tb.start(s1, -1)
			tb.start(s2, -1)
			driver(tb.sched, tb.sqr, 2, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"s3", "s2"}))
			Expect(log[0].time).To(BeNumerically("<", 1e-9))
			Expect(log[1].time).To(BeNumerically(">=", 10e-9))
			Expect(blockedSeen).To(BeTrue())
			Expect(tb.sqr.IsGrabbed()).To(BeFalse())
		})

		It("should hand a released lock to one waiting sequence at a time", func() {
			var aBlocked, bBlocked bool

			h := newFuncSeq("h", func(s *funcSeq) {
				s.Lock(nil)
				tb.sched.Delay(5e-9)
				s.Unlock(nil)
			})

			locker := func(name string, wait sim.VTimeInSec, blocked *bool) *funcSeq {
				return newFuncSeq(name, func(s *funcSeq) {
					tb.sched.Delay(wait)
					s.Lock(nil)
					*blocked = s.IsBlocked()
					s.Do(newTxn("t", 0))
					s.Unlock(nil)
				})
			}

			a := locker("a", 1e-9, &aBlocked)
			b := locker("b", 2e-9, &bBlocked)

			tb.start(h, -1)
			tb.start(a, -1)
			tb.start(b, -1)
			driver(tb.sched, tb.sqr, 2, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"a", "b"}))
			Expect(log[0].time).To(BeNumerically(">=", 5e-9))
			Expect(aBlocked).To(BeFalse())
			Expect(bBlocked).To(BeFalse())
			Expect(a.State()).To(Equal(seq.StateFinished))
			Expect(b.State()).To(Equal(seq.StateFinished))
			Expect(tb.sqr.IsGrabbed()).To(BeFalse())
		})

		It("should queue a lock behind pending requests", func() {
			a := newLoopSeq("a", 2)
			b := newFuncSeq("b", func(s *funcSeq) {
				tb.sched.Delay(1e-9)
				s.Lock(nil)
				s.Do(newTxn("t", 0))
				s.Unlock(nil)
			})

			tb.start(a, -1)
			tb.start(b, -1)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(2e-9)
				driver(tb.sched, tb.sqr, 3, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"a", "b", "a"}))
		})

		It("should put a grab in front of pending requests", func() {
			var grabber *seq.SequenceBase

			a := newLoopSeq("a", 2)
			b := newFuncSeq("b", func(s *funcSeq) {
				tb.sched.Delay(1e-9)
				s.Grab(nil)
				grabber = tb.sqr.CurrentGrabber()
				s.Do(newTxn("t", 0))
				s.Ungrab(nil)
			})

			tb.start(a, -1)
			tb.start(b, -1)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(2e-9)
				driver(tb.sched, tb.sqr, 3, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"b", "a", "a"}))
			Expect(grabber).To(BeIdenticalTo(b.Seq()))
		})

		It("should report when unlocking without a lock", func() {
			s := newLoopSeq("a", 1)

			tb.sqr.Unlock(s.Seq())

			Expect(tb.collector.Contains("SQRUNL",
				"didn't have lock")).To(BeTrue())
		})

		It("should tell if a sequence holds the lock", func() {
			var held, released bool

			s := newFuncSeq("s", func(s *funcSeq) {
				s.Lock(nil)
				held = s.HasLock()
				s.Unlock(nil)
				released = !s.HasLock()
			})
			tb.start(s, -1)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(held).To(BeTrue())
			Expect(released).To(BeTrue())
		})
	})

	Context("dead requests", func() {
		BeforeEach(func() {
			tb = newTestbench("FIFO")
		})

		It("should purge the request of a killed process", func() {
			victim := newLoopSeq("victim", 1)
			ok := true

			requester := tb.sched.Fork("requester", func() {
				tb.sqr.WaitForGrant(victim.Seq(), -1, false)
			})
			tb.sched.Fork("killer", func() {
				tb.sched.Delay(1e-9)
				requester.Kill()
			})
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(2e-9)
				_, ok = tb.sqr.TryNextItem()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(ok).To(BeFalse())
			Expect(requester.Status()).To(Equal(kernel.Killed))
			Expect(tb.sqr.PendingRequests()).To(BeEmpty())
			Expect(tb.collector.Contains("SEQREQZMB",
				"to avoid a deadlock")).To(BeTrue())
		})

		It("should purge the lock request of a killed process", func() {
			holder := newLoopSeq("holder", 0)
			victim := newLoopSeq("victim", 0)

			tb.sched.Fork("holder", func() {
				tb.sqr.Lock(holder.Seq())
				tb.sched.Delay(5e-9)
				tb.sqr.Unlock(holder.Seq())
			})
			locker := tb.sched.Fork("locker", func() {
				tb.sched.Delay(1e-9)
				tb.sqr.Lock(victim.Seq())
			})
			tb.sched.Fork("killer", func() {
				tb.sched.Delay(2e-9)
				locker.Kill()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(tb.sqr.PendingRequests()).To(BeEmpty())
			Expect(tb.sqr.LockList()).To(BeEmpty())
			Expect(tb.collector.Contains("SEQLCKZMB",
				"to avoid a deadlock")).To(BeTrue())
		})
	})

	Context("killing sequences", func() {
		BeforeEach(func() {
			tb = newTestbench("FIFO")
		})

		It("should kill a sequence and its children", func() {
			child := newLoopSeq("child", -1)
			parent := newFuncSeq("parent", func(s *funcSeq) {
				child.Start(tb.sqr, s, -1, true)
			})
			returned := false

			tb.sched.Fork("start", func() {
				parent.Start(tb.sqr, nil, -1, true)
				returned = true
			})
			tb.sched.Fork("killer", func() {
				tb.sched.Delay(1e-9)
				parent.Kill()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(returned).To(BeTrue())
			Expect(parent.State()).To(Equal(seq.StateStopped))
			Expect(child.State()).To(Equal(seq.StateStopped))
			Expect(parent.Children()).To(BeEmpty())
			Expect(tb.sqr.PendingRequests()).To(BeEmpty())
			Expect(tb.sqr.RegisteredSequences()).To(BeEmpty())
		})

		It("should stop every sequence", func() {
			a := newLoopSeq("a", -1)
			b := newLoopSeq("b", -1)

			tb.start(a, -1)
			tb.start(b, -1)
			tb.sched.Fork("stopper", func() {
				tb.sched.Delay(1e-9)
				tb.sqr.StopSequences()
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(a.State()).To(Equal(seq.StateStopped))
			Expect(b.State()).To(Equal(seq.StateStopped))
			Expect(tb.sqr.PendingRequests()).To(BeEmpty())
			Expect(tb.sqr.RegisteredSequences()).To(BeEmpty())
		})

		It("should warn when a parent finishes before its children", func() {
			child := newLoopSeq("child", 1)
			parent := newFuncSeq("parent", func(s *funcSeq) {
				tb.sched.Fork("child_runner", func() {
					child.Start(tb.sqr, s, -1, false)
				})
				tb.sched.Delay(1e-9)
			})

			tb.start(parent, -1)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(parent.State()).To(Equal(seq.StateFinished))
			Expect(tb.sqr.PendingRequests()).To(BeEmpty())
			Expect(tb.collector.Contains("SEQFINERR",
				"should not finish before all items")).To(BeTrue())
		})
	})

	Context("weighted arbitration", func() {
		BeforeEach(func() {
			tb = newTestbench("WEIGHTED")
			log = nil
		})

		It("should grant in proportion to priority", func() {
			tb.start(newLoopSeq("s1", -1), 1)
			tb.start(newLoopSeq("s2", -1), 10)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 10000, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(log).To(HaveLen(10000))

			s2 := 0
			for _, g := range log {
				if g.from == "s2" {
					s2++
				}
			}

			Expect(s2).To(BeNumerically("~", 9091, 150))
		})

		It("should use the item priority when given", func() {
			s1 := newFuncSeq("s1", func(s *funcSeq) {
				for {
					t := newTxn("t", 0)
					s.StartItem(t, 10, nil)
					s.FinishItem(t)
				}
			})
			s2 := newFuncSeq("s2", func(s *funcSeq) {
				for {
					t := newTxn("t", 0)
					s.StartItem(t, 10, nil)
					s.FinishItem(t)
				}
			})

			tb.start(s1, 1)
			tb.start(s2, 1000)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 2000, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())

			n := 0
			for _, g := range log {
				if g.from == "s1" {
					n++
				}
			}

			Expect(n).To(BeNumerically("~", 1000, 120))
		})
	})

	Context("strict arbitration", func() {
		It("should grant the highest priority first in FIFO order", func() {
			tb = newTestbench("STRICT_FIFO")
			log = nil

			tb.start(newLoopSeq("low", 1), 5)
			tb.start(newLoopSeq("high1", 1), 10)
			tb.start(newLoopSeq("high2", 1), 10)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 3, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"high1", "high2", "low"}))
		})

		It("should grant the highest priority first in random order", func() {
			tb = newTestbench("STRICT_RANDOM")
			log = nil

			tb.start(newLoopSeq("low", 1), 5)
			tb.start(newLoopSeq("high1", 1), 10)
			tb.start(newLoopSeq("high2", 1), 10)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 3, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)[:2]).To(ConsistOf("high1", "high2"))
			Expect(sources(log)[2]).To(Equal("low"))
		})
	})

	Context("user arbitration", func() {
		BeforeEach(func() {
			tb = newTestbench("USER")
			log = nil
		})

		It("should grant the request picked by the user", func() {
			tb.sqr.SetUserArbitration(func(_ *seq.Sequencer, avail []int) int {
				return avail[len(avail)-1]
			})

			tb.start(newLoopSeq("a", 1), -1)
			tb.start(newLoopSeq("b", 1), -1)
			tb.start(newLoopSeq("c", 1), -1)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 3, &log)
			})

			Expect(tb.sched.Run()).To(Succeed())
			Expect(sources(log)).To(Equal([]string{"c", "b", "a"}))
		})

		It("should fail when the user picks an unavailable request", func() {
			tb.sqr.SetUserArbitration(func(_ *seq.Sequencer, _ []int) int {
				return 99
			})

			tb.start(newLoopSeq("a", 1), -1)
			tb.start(newLoopSeq("b", 1), -1)
			tb.sched.Fork("driver", func() {
				tb.sched.Delay(1e-9)
				driver(tb.sched, tb.sqr, 1, &log)
			})

			err := tb.sched.Run()
			Expect(err).To(HaveOccurred())

			var fatal *report.FatalError
			Expect(errors.As(err, &fatal)).To(BeTrue())
			Expect(fatal.Msg).To(ContainSubstring("sequence 99 not available"))
		})
	})

	Context("relevance", func() {
		BeforeEach(func() {
			tb = newTestbench("FIFO")
			log = nil
		})

		It("should wait for a sequence to become relevant", func() {
			ready := kernel.NewEvent(tb.sched)
			s := newRelevantSeq("r", ready)

			tb.start(s, -1)
			tb.sched.Fork("enabler", func() {
				tb.sched.Delay(5e-9)
				ready.Set()
			})
			driver(tb.sched, tb.sqr, 1, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(log).To(HaveLen(1))
			Expect(log[0].time).To(BeNumerically(">=", 5e-9))
		})

		It("should report a zero time relevance loop", func() {
			s := newRelevantSeq("r", nil)

			tb.start(s, -1)
			driver(tb.sched, tb.sqr, 1, &log)

			err := tb.sched.Run()

			var fatal *report.FatalError
			Expect(errors.As(err, &fatal)).To(BeTrue())
			Expect(fatal.ID).To(Equal("SEQRELEVANTLOOP"))
		})
	})

	Context("default sequence", func() {
		var registry *factory.Registry[seq.Sequence]

		BeforeEach(func() {
			registry = factory.NewRegistry[seq.Sequence]()
			registry.Register("counter", func(name string) seq.Sequence {
				return newLoopSeq(name, 3)
			})

			tb = newTestbench("FIFO")
			tb.sqr = seq.MakeBuilder().
				WithScheduler(tb.sched).
				WithFactory(registry).
				Build("sqr")
			log = nil
		})

		It("should start the default sequence from the factory", func() {
			var err error

			tb.sqr.SetDefaultSequence("counter")
			tb.sched.Fork("run_phase", func() {
				err = tb.sqr.StartDefaultSequence()
			})
			driver(tb.sched, tb.sqr, 3, &log)

			Expect(tb.sched.Run()).To(Succeed())
			Expect(err).NotTo(HaveOccurred())
			Expect(sources(log)).To(Equal(
				[]string{"default_sequence", "default_sequence",
					"default_sequence"}))
		})

		It("should fail on an unknown default sequence", func() {
			tb.sqr.SetDefaultSequence("nope")

			err := tb.sqr.StartDefaultSequence()

			Expect(errors.Is(err, factory.ErrNotRegistered)).To(BeTrue())
		})
	})

	It("should drop responses of unknown sequences", func() {
		tb = newTestbench("FIFO")

		rsp := newTxn("rsp", 0)
		rsp.SetSequenceID(999)
		tb.sqr.PutResponse(rsp)

		Expect(tb.sqr.NumRspsReceived()).To(Equal(1))
		Expect(tb.collector.Contains("Sequencer",
			"Dropping response for sequence 999")).To(BeTrue())
	})
})

var _ = Describe("ParseArbitration", func() {
	It("should accept names with and without the prefix", func() {
		a, err := seq.ParseArbitration("weighted")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(seq.ArbWeighted))

		a, err = seq.ParseArbitration("UVM_SEQ_ARB_STRICT_RANDOM")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(seq.ArbStrictRandom))
		Expect(a.String()).To(Equal("UVM_SEQ_ARB_STRICT_RANDOM"))
	})

	It("should reject unknown names", func() {
		_, err := seq.ParseArbitration("ROUND_ROBIN")
		Expect(err).To(HaveOccurred())
	})
})

// relevantSeq is relevant once ready is set. With a nil event it is never
// relevant and WaitForRelevant returns at once.
type relevantSeq struct {
	*seq.SequenceBase
	ready *kernel.Event
}

func newRelevantSeq(name string, ready *kernel.Event) *relevantSeq {
	s := &relevantSeq{ready: ready}
	s.SequenceBase = seq.NewSequenceBase(name, s)

	return s
}

func (s *relevantSeq) Body() {
	s.Do(newTxn("t", 0))
}

func (s *relevantSeq) IsRelevant() bool {
	return s.ready != nil && s.ready.IsSet()
}

func (s *relevantSeq) WaitForRelevant() {
	if s.ready == nil {
		s.Sequencer().Scheduler().Yield()
		return
	}

	s.ready.Wait()
}
