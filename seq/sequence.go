package seq

import (
	"fmt"

	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/report"
)

// DefaultPriority is the priority of root sequences started without one.
const DefaultPriority = 100

// State is the life-cycle state of a sequence. States are bits so that
// WaitForSequenceState can wait on several at once.
type State int

// The sequence states.
const (
	StateCreated State = 1 << iota
	StatePreStart
	StatePreBody
	StateBody
	StatePostBody
	StatePostStart
	StateEnded
	StateStopped
	StateFinished
)

// StateRunning covers every state between PreStart and PostStart.
const StateRunning = StatePreStart | StatePreBody | StateBody |
	StateEnded | StatePostBody | StatePostStart

var stateNames = []struct {
	s    State
	name string
}{
	{StateCreated, "UVM_CREATED"},
	{StatePreStart, "UVM_PRE_START"},
	{StatePreBody, "UVM_PRE_BODY"},
	{StateBody, "UVM_BODY"},
	{StatePostBody, "UVM_POST_BODY"},
	{StatePostStart, "UVM_POST_START"},
	{StateEnded, "UVM_ENDED"},
	{StateStopped, "UVM_STOPPED"},
	{StateFinished, "UVM_FINISHED"},
}

func (s State) String() string {
	for _, n := range stateNames {
		if n.s == s {
			return n.name
		}
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// A Sequence generates items. User sequences embed a *SequenceBase and
// implement Body.
type Sequence interface {
	Item
	Seq() *SequenceBase
	Body()
}

// PreStarter is implemented by sequences that run code before anything
// else on start.
type PreStarter interface{ PreStart() }

// PreBodier is implemented by sequences that run code before Body.
type PreBodier interface{ PreBody() }

// PostBodier is implemented by sequences that run code after Body.
type PostBodier interface{ PostBody() }

// PostStarter is implemented by sequences that run code last on start.
type PostStarter interface{ PostStart() }

// PreDoer is called on a parent sequence when one of its items is granted
// or one of its child sequences starts.
type PreDoer interface{ PreDo(isItem bool) }

// MidDoer is called on a parent sequence right before an item is sent or a
// child sequence body runs.
type MidDoer interface{ MidDo(item Item) }

// PostDoer is called on a parent sequence after an item is done or a child
// sequence body ends.
type PostDoer interface{ PostDo(item Item) }

// Relevance lets a sequence say it has nothing to send right now.
// WaitForRelevant must block until the sequence may have become relevant.
type Relevance interface {
	IsRelevant() bool
	WaitForRelevant()
}

// ResponseHandler receives responses instead of the response queue, once
// enabled with UseResponseHandler.
type ResponseHandler interface {
	HandleResponse(rsp Item)
}

// Killer is called when a sequence is killed.
type Killer interface{ DoKill() }

type sqrSeqID struct {
	sqr *Sequencer
	id  int
}

// SequenceBase holds the state shared by all sequences.
type SequenceBase struct {
	*ItemMeta

	impl  Sequence
	sched *kernel.Scheduler

	state    State
	priority int
	sqrIDs   []sqrSeqID
	proc     *kernel.Process
	children []*SequenceBase

	waitForGrantCount int
	nextTransactionID int

	responses          []Item
	responseDepth      int
	responseDepthSet   bool
	responseErrReport  bool
	useResponseHandler bool

	stateChanged *kernel.Notifier
	rspChanged   *kernel.Notifier
}

// NewSequenceBase creates the base of sequence impl. The impl is the user
// sequence that embeds the returned base.
func NewSequenceBase(name string, impl Sequence) *SequenceBase {
	if impl == nil {
		panic("seq: sequence implementation is nil")
	}

	return &SequenceBase{
		ItemMeta:          NewItemMeta(name),
		impl:              impl,
		state:             StateCreated,
		priority:          DefaultPriority,
		nextTransactionID: 1,
		responseDepth:     8,
		responseErrReport: true,
	}
}

// Seq returns b itself.
func (b *SequenceBase) Seq() *SequenceBase {
	return b
}

// Impl returns the user sequence.
func (b *SequenceBase) Impl() Sequence {
	return b.impl
}

// SetScheduler binds a sequence that has no sequencer to a scheduler.
func (b *SequenceBase) SetScheduler(s *kernel.Scheduler) {
	b.bind(s)
}

// State returns the life-cycle state.
func (b *SequenceBase) State() State {
	return b.state
}

// Priority returns the arbitration priority.
func (b *SequenceBase) Priority() int {
	return b.priority
}

// SetPriority changes the arbitration priority.
func (b *SequenceBase) SetPriority(p int) {
	b.priority = p
}

// Process returns the process running the sequence, or nil when the
// sequence is not running.
func (b *SequenceBase) Process() *kernel.Process {
	return b.proc
}

// Children returns the child sequences that are running.
func (b *SequenceBase) Children() []*SequenceBase {
	return append([]*SequenceBase(nil), b.children...)
}

// isRelevant asks the user sequence whether it has something to send.
func (b *SequenceBase) isRelevant() bool {
	if r, ok := b.impl.(Relevance); ok {
		return r.IsRelevant()
	}

	return true
}

// waitForRelevant blocks until the sequence may have become relevant. A
// sequence that does not implement Relevance never returns.
func (b *SequenceBase) waitForRelevant() {
	if r, ok := b.impl.(Relevance); ok {
		r.WaitForRelevant()
		return
	}

	kernel.NewNotifier(b.sched).Wait()
}

// Start runs the sequence on sqr and returns when it is done or killed.
// The parent may be nil for a root sequence. A priority of -1 takes the
// priority of the parent, or the default. PreBody and PostBody only run
// when callPrePost is set.
func (b *SequenceBase) Start(
	sqr *Sequencer,
	parent Sequence,
	priority int,
	callPrePost bool,
) {
	var p *SequenceBase
	if parent != nil {
		p = parent.Seq()
	}

	b.setItemContext(p, sqr)

	if b.state&(StateCreated|StateStopped|StateFinished) == 0 {
		report.Fatalf(b.FullName(), "SEQ_NOT_DONE",
			"Sequence %s already started", b.FullName())
	}

	b.bind(b.resolveScheduler(p))

	if p != nil {
		p.addChild(b)
	}

	if priority < -1 {
		report.Fatalf(b.FullName(), "SEQPRI",
			"Sequence %s start has illegal priority: %d",
			b.FullName(), priority)
	}

	if priority < 0 {
		switch {
		case p != nil:
			priority = p.priority
		case b.sequencer != nil:
			priority = b.sequencer.defaultPriority
		default:
			priority = DefaultPriority
		}
	}

	b.ClearResponseQueue()
	b.priority = priority
	b.sequenceID = -1
	b.sqrIDs = nil

	if b.sequencer != nil {
		if !b.responseDepthSet {
			b.responseDepth = b.sequencer.responseQueueDepth
		}

		b.sequencer.registerSequence(b)
	}

	b.setState(StatePreStart)

	proc := b.sched.Fork(b.FullName(), func() { b.run(p, callPrePost) })
	b.proc = proc
	proc.Join()

	if b.state != StateStopped {
		if b.sequencer != nil {
			b.sequencer.sequenceExiting(b)
		} else {
			for _, e := range append([]sqrSeqID(nil), b.sqrIDs...) {
				e.sqr.sequenceExiting(b)
			}
		}
	}

	b.sqrIDs = nil
	b.proc = nil

	b.sched.Yield()

	if p != nil {
		p.removeChild(b)
	}
}

func (b *SequenceBase) run(p *SequenceBase, callPrePost bool) {
	b.sched.Yield()

	if h, ok := b.impl.(PreStarter); ok {
		h.PreStart()
	}

	if callPrePost {
		b.enter(StatePreBody)

		if h, ok := b.impl.(PreBodier); ok {
			h.PreBody()
		}
	}

	if p != nil {
		p.preDo(false)
		p.midDo(b.impl)
	}

	b.enter(StateBody)
	b.impl.Body()

	b.enter(StateEnded)

	if p != nil {
		p.postDo(b.impl)
	}

	if callPrePost {
		b.enter(StatePostBody)

		if h, ok := b.impl.(PostBodier); ok {
			h.PostBody()
		}
	}

	b.enter(StatePostStart)

	if h, ok := b.impl.(PostStarter); ok {
		h.PostStart()
	}

	b.enter(StateFinished)
}

// enter changes the state and yields once so that processes waiting on the
// state can see it.
func (b *SequenceBase) enter(s State) {
	b.setState(s)
	b.sched.Yield()
}

func (b *SequenceBase) setState(s State) {
	b.state = s

	if b.stateChanged != nil {
		b.stateChanged.Notify()
	}
}

// WaitForSequenceState blocks until the state is one of the states in
// mask.
func (b *SequenceBase) WaitForSequenceState(mask State) {
	b.mustBeBound()

	for b.state&mask == 0 {
		b.stateChanged.Wait()
	}
}

// StartItem waits until the sequencer grants the sequence the right to
// send item. A priority of -1 uses the priority of the sequence. A nil
// sequencer uses the item's sequencer, then the sequence's.
func (b *SequenceBase) StartItem(item Item, priority int, sqr *Sequencer) {
	if item == nil {
		report.Fatalf(b.FullName(), "NULLITM",
			"attempting to start a null item from sequence '%s'",
			b.FullName())
	}

	m := item.Meta()

	if sqr == nil {
		sqr = m.sequencer
	}

	if sqr == nil {
		sqr = b.sequencer
	}

	if sqr == nil {
		report.Fatalf(b.FullName(), "SEQ",
			"neither the item's sequencer nor dedicated sequencer "+
				"has been supplied to start item in %s", b.FullName())
	}

	m.setItemContext(b, sqr)

	if priority < 0 {
		priority = b.priority
	}

	sqr.WaitForGrant(b, priority, false)

	b.preDo(true)
}

// FinishItem sends item to the driver and waits until the driver is done
// with it.
func (b *SequenceBase) FinishItem(item Item) {
	sqr := item.Meta().sequencer
	if sqr == nil {
		report.Fatalf(b.FullName(), "STRITM", "sequence_item has null sequencer")
	}

	b.midDo(item)

	sqr.SendRequest(b, item)
	sqr.WaitForItemDone(b, -1)

	b.postDo(item)
}

// Do sends item with the default priority on the default sequencer.
func (b *SequenceBase) Do(item Item) {
	b.StartItem(item, -1, nil)
	b.FinishItem(item)
}

// Lock requests exclusive access to sqr, or to the sequence's sequencer if
// sqr is nil. It blocks until the lock is granted.
func (b *SequenceBase) Lock(sqr *Sequencer) {
	b.pickSequencer(sqr, "LOCKSEQR").Lock(b)
}

// Grab is like Lock but jumps ahead of queued requests.
func (b *SequenceBase) Grab(sqr *Sequencer) {
	b.pickSequencer(sqr, "GRAB").Grab(b)
}

// Unlock releases a lock.
func (b *SequenceBase) Unlock(sqr *Sequencer) {
	b.pickSequencer(sqr, "UNLOCK").Unlock(b)
}

// Ungrab releases a grab.
func (b *SequenceBase) Ungrab(sqr *Sequencer) {
	b.pickSequencer(sqr, "UNGRAB").Ungrab(b)
}

// IsBlocked tells if another sequence holds a lock on the sequencer.
func (b *SequenceBase) IsBlocked() bool {
	return b.sequencer.IsBlocked(b)
}

// HasLock tells if the sequence holds a lock on its sequencer.
func (b *SequenceBase) HasLock() bool {
	return b.sequencer.HasLock(b)
}

func (b *SequenceBase) pickSequencer(sqr *Sequencer, id string) *Sequencer {
	if sqr == nil {
		sqr = b.sequencer
	}

	if sqr == nil {
		report.Fatalf(b.FullName(), id, "Null m_sequencer reference")
	}

	return sqr
}

// Kill stops the sequence and its children. Pending requests and locks
// are removed from the sequencer.
func (b *SequenceBase) Kill() {
	if b.proc == nil {
		return
	}

	if b.sequencer == nil {
		b.kill()
		return
	}

	b.sequencer.KillSequence(b)
}

func (b *SequenceBase) kill() {
	if k, ok := b.impl.(Killer); ok {
		k.DoKill()
	}

	for _, c := range b.Children() {
		c.Kill()
	}

	proc := b.proc
	b.proc = nil

	b.setState(StateStopped)

	if p := b.parent; p != nil {
		p.removeChild(b)
	}

	if proc != nil {
		proc.Kill()
	}
}

// UseResponseHandler routes responses to the ResponseHandler of the
// sequence instead of the response queue.
func (b *SequenceBase) UseResponseHandler(enable bool) {
	b.useResponseHandler = enable
}

// UsesResponseHandler tells if responses go to the response handler.
func (b *SequenceBase) UsesResponseHandler() bool {
	return b.useResponseHandler
}

// SetResponseQueueDepth bounds the response queue. -1 means unbounded.
func (b *SequenceBase) SetResponseQueueDepth(depth int) {
	b.responseDepth = depth
	b.responseDepthSet = true
}

// ResponseQueueDepth returns the bound of the response queue.
func (b *SequenceBase) ResponseQueueDepth() int {
	return b.responseDepth
}

// SetResponseQueueErrorReportEnabled turns the overflow error on or off.
func (b *SequenceBase) SetResponseQueueErrorReportEnabled(on bool) {
	b.responseErrReport = on
}

// ClearResponseQueue drops all queued responses.
func (b *SequenceBase) ClearResponseQueue() {
	b.responses = nil

	if b.rspChanged != nil {
		b.rspChanged.Notify()
	}
}

// NumResponses returns the number of queued responses.
func (b *SequenceBase) NumResponses() int {
	return len(b.responses)
}

// PutResponse queues a response. A full queue drops it.
func (b *SequenceBase) PutResponse(rsp Item) {
	if b.responseDepth == -1 || len(b.responses) < b.responseDepth {
		b.responses = append(b.responses, rsp)

		if b.rspChanged != nil {
			b.rspChanged.Notify()
		}

		return
	}

	if b.responseErrReport {
		report.Errorf(b.FullName(), b.FullName(),
			"Response queue overflow, response was dropped")
	}
}

// GetResponse blocks until a response arrives. With a transaction id other
// than -1, it waits for the response to that transaction.
func (b *SequenceBase) GetResponse(transactionID int) Item {
	b.mustBeBound()

	for len(b.responses) == 0 {
		b.rspChanged.Wait()
	}

	if transactionID == -1 {
		rsp := b.responses[0]
		b.responses = b.responses[1:]

		return rsp
	}

	for {
		n := len(b.responses)

		for i, rsp := range b.responses {
			if rsp.Meta().TransactionID() == transactionID {
				b.responses = append(b.responses[:i:i], b.responses[i+1:]...)
				return rsp
			}
		}

		for len(b.responses) == n {
			b.rspChanged.Wait()
		}
	}
}

func (b *SequenceBase) deliverResponse(rsp Item) {
	if b.useResponseHandler {
		if h, ok := b.impl.(ResponseHandler); ok {
			h.HandleResponse(rsp)
			return
		}
	}

	b.PutResponse(rsp)
}

func (b *SequenceBase) preDo(isItem bool) {
	if h, ok := b.impl.(PreDoer); ok {
		h.PreDo(isItem)
	}
}

func (b *SequenceBase) midDo(item Item) {
	if h, ok := b.impl.(MidDoer); ok {
		h.MidDo(item)
	}
}

func (b *SequenceBase) postDo(item Item) {
	if h, ok := b.impl.(PostDoer); ok {
		h.PostDo(item)
	}
}

func (b *SequenceBase) addChild(c *SequenceBase) {
	for _, x := range b.children {
		if x == c {
			return
		}
	}

	b.children = append(b.children, c)
}

func (b *SequenceBase) removeChild(c *SequenceBase) {
	for i, x := range b.children {
		if x == c {
			b.children = append(b.children[:i], b.children[i+1:]...)
			return
		}
	}
}

func (b *SequenceBase) resolveScheduler(p *SequenceBase) *kernel.Scheduler {
	switch {
	case b.sequencer != nil:
		return b.sequencer.sched
	case p != nil && p.sched != nil:
		return p.sched
	case b.sched != nil:
		return b.sched
	}

	report.Fatalf(b.FullName(), "SEQNOSCHED",
		"Sequence %s has neither a sequencer nor a scheduler", b.FullName())

	return nil
}

func (b *SequenceBase) bind(s *kernel.Scheduler) {
	if b.sched == s {
		return
	}

	b.sched = s
	b.stateChanged = kernel.NewNotifier(s)
	b.rspChanged = kernel.NewNotifier(s)
}

func (b *SequenceBase) mustBeBound() {
	if b.sched == nil {
		panic("seq: sequence " + b.FullName() + " is not bound to a scheduler")
	}
}

// sqrSequenceID returns the id the sequence has on sqr, or -1. With update
// set, the id also becomes the current sequence id.
func (b *SequenceBase) sqrSequenceID(sqr *Sequencer, update bool) int {
	for _, e := range b.sqrIDs {
		if e.sqr == sqr {
			if update {
				b.sequenceID = e.id
			}

			return e.id
		}
	}

	if update {
		b.sequenceID = -1
	}

	return -1
}

func (b *SequenceBase) setSqrSequenceID(sqr *Sequencer, id int) {
	b.sqrIDs = append(b.sqrIDs, sqrSeqID{sqr: sqr, id: id})
	b.sequenceID = id
}
