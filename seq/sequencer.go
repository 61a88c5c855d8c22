package seq

import (
	"fmt"

	"github.com/google/btree"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/component"
	"github.com/sarchlab/gouvm/factory"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/report"
)

// Hook positions fired by a sequencer. The hook item is a Request, except
// for HookPosItemDone whose item is the finished Item.
var (
	HookPosRequest   = &sim.HookPos{Name: "Sequencer Request"}
	HookPosGrant     = &sim.HookPos{Name: "Sequencer Grant"}
	HookPosLockGrant = &sim.HookPos{Name: "Sequencer Lock Grant"}
	HookPosItemDone  = &sim.HookPos{Name: "Sequencer Item Done"}
	HookPosPurge     = &sim.HookPos{Name: "Sequencer Purge"}
)

// A Request is an entry of the arbitration queue.
type Request struct {
	Kind         RequestKind
	SequenceID   int
	RequestID    int
	ItemPriority int
	Sequence     *SequenceBase

	proc *kernel.Process
}

// Process returns the process that made the request.
func (r *Request) Process() *kernel.Process {
	return r.proc
}

func (r *Request) String() string {
	return fmt.Sprintf("%s #%d from %s (seq %d)",
		r.Kind, r.RequestID, r.Sequence.FullName(), r.SequenceID)
}

// UserArbitration picks one of the available queue indexes. It is used in
// ArbUser mode and must return a member of avail.
type UserArbitration func(s *Sequencer, avail []int) int

type regEntry struct {
	id  int
	seq *SequenceBase
}

func (e regEntry) Less(than btree.Item) bool {
	return e.id < than.(regEntry).id
}

type itemWaiter struct {
	sequenceID    int
	transactionID int
	done          bool
}

// A Sequencer arbitrates between sequences that want to send items to a
// driver.
type Sequencer struct {
	*component.Base
	sim.HookableBase

	sched  *kernel.Scheduler
	domain *Domain
	id     int

	arbitration     Arbitration
	userArbitration UserArbitration

	queue        []*Request
	arbCompleted map[int]bool
	lockList     []*SequenceBase
	registered   *btree.BTree

	// lockArbSize is the arbitration generation. It grows on every change
	// to the queue or the lock list.
	lockArbSize int
	arbSize     int
	changed     *kernel.Notifier

	waitRelevantCount            int
	lastWaitRelevantTime         sim.VTimeInSec
	maxZeroTimeWaitRelevantCount int
	poundZeroCount               int
	defaultPriority              int
	responseQueueDepth           int

	lastItemSequenceID    int
	lastItemTransactionID int
	itemWaiters           []*itemWaiter

	reqFIFO           *kernel.Mailbox[Item]
	itemRequested     bool
	getNextItemCalled bool
	numReqsSent       int
	numRspsReceived   int
	lastReq           Item
	lastRsp           Item

	registry        *factory.Registry[Sequence]
	defaultSequence string
}

// ID returns the id of the sequencer within its domain.
func (s *Sequencer) ID() int {
	return s.id
}

// Scheduler returns the scheduler the sequencer runs on.
func (s *Sequencer) Scheduler() *kernel.Scheduler {
	return s.sched
}

// Arbitration returns the arbitration mode.
func (s *Sequencer) Arbitration() Arbitration {
	return s.arbitration
}

// SetArbitration changes the arbitration mode.
func (s *Sequencer) SetArbitration(a Arbitration) {
	s.arbitration = a
}

// SetUserArbitration sets the function used in ArbUser mode.
func (s *Sequencer) SetUserArbitration(f UserArbitration) {
	s.userArbitration = f
}

// Generation returns the arbitration generation.
func (s *Sequencer) Generation() int {
	return s.lockArbSize
}

// PendingRequests returns a copy of the arbitration queue.
func (s *Sequencer) PendingRequests() []Request {
	reqs := make([]Request, 0, len(s.queue))
	for _, r := range s.queue {
		reqs = append(reqs, *r)
	}

	return reqs
}

// LockList returns the sequences that hold a lock or grab, oldest first.
func (s *Sequencer) LockList() []*SequenceBase {
	return append([]*SequenceBase(nil), s.lockList...)
}

// RegisteredSequences returns the registered sequences ordered by id.
func (s *Sequencer) RegisteredSequences() []*SequenceBase {
	var seqs []*SequenceBase

	s.registered.Ascend(func(i btree.Item) bool {
		seqs = append(seqs, i.(regEntry).seq)
		return true
	})

	return seqs
}

func (s *Sequencer) registerSequence(seq *SequenceBase) int {
	if id := seq.sqrSequenceID(s, true); id > 0 {
		return id
	}

	id := s.domain.newSequenceID()
	seq.setSqrSequenceID(s, id)
	s.registered.ReplaceOrInsert(regEntry{id: id, seq: seq})

	return id
}

func (s *Sequencer) unregisterSequence(id int) {
	s.registered.Delete(regEntry{id: id})
}

// findSequence returns the sequence registered under id. An id of -1
// returns the sequence with the lowest id.
func (s *Sequencer) findSequence(id int) *SequenceBase {
	var i btree.Item

	if id == -1 {
		i = s.registered.Min()
	} else {
		i = s.registered.Get(regEntry{id: id})
	}

	if i == nil {
		return nil
	}

	return i.(regEntry).seq
}

func (s *Sequencer) updateLists() {
	s.lockArbSize++
	s.changed.Notify()
}

// WaitForGrant queues a request for seq and blocks until it is granted.
// An item priority of -1 uses the sequence priority. With lockRequest set,
// a lock request is queued in front of the item request.
func (s *Sequencer) WaitForGrant(seq *SequenceBase, itemPriority int, lockRequest bool) {
	proc := s.sched.Self()
	seqID := s.registerSequence(seq)

	if lockRequest {
		s.push(&Request{
			Kind:         Lock,
			SequenceID:   seqID,
			RequestID:    s.domain.newRequestID(),
			ItemPriority: -1,
			Sequence:     seq,
			proc:         proc,
		}, false)
	}

	req := &Request{
		Kind:         Req,
		SequenceID:   seqID,
		RequestID:    s.domain.newRequestID(),
		ItemPriority: itemPriority,
		Sequence:     seq,
		proc:         proc,
	}
	s.push(req, false)
	s.updateLists()

	s.waitForArbitrationCompleted(req.RequestID)

	seq.waitForGrantCount++
}

func (s *Sequencer) push(r *Request, front bool) {
	if front {
		s.queue = append([]*Request{r}, s.queue...)
	} else {
		s.queue = append(s.queue, r)
	}

	report.Trace("sequencer request",
		"sequencer", s.FullName(), "sequence", r.Sequence.FullName(),
		"kind", r.Kind.String(), "request_id", r.RequestID)
	s.invokeHook(HookPosRequest, r)
}

func (s *Sequencer) waitForArbitrationCompleted(requestID int) {
	for {
		if s.arbCompleted[requestID] {
			delete(s.arbCompleted, requestID)
			return
		}

		s.changed.Wait()
	}
}

// WaitForItemDone blocks until the driver finishes an item of seq. With a
// transaction id of -1 any item of the sequence will do.
func (s *Sequencer) WaitForItemDone(seq *SequenceBase, transactionID int) {
	w := &itemWaiter{
		sequenceID:    seq.sqrSequenceID(s, true),
		transactionID: transactionID,
	}

	s.itemWaiters = append(s.itemWaiters, w)
	defer s.removeItemWaiter(w)

	for !w.done {
		s.changed.Wait()
	}
}

func (s *Sequencer) removeItemWaiter(w *itemWaiter) {
	for i, x := range s.itemWaiters {
		if x == w {
			s.itemWaiters = append(s.itemWaiters[:i], s.itemWaiters[i+1:]...)
			return
		}
	}
}

func (s *Sequencer) markItemDone(sequenceID, transactionID int) {
	s.lastItemSequenceID = sequenceID
	s.lastItemTransactionID = transactionID

	for _, w := range s.itemWaiters {
		if w.sequenceID != sequenceID {
			continue
		}

		if w.transactionID == -1 || w.transactionID == transactionID {
			w.done = true
		}
	}

	s.changed.Notify()
}

// IsChild tells if parent is an ancestor of child.
func IsChild(parent, child *SequenceBase) bool {
	if parent == nil || child == nil {
		return false
	}

	for p := child.ParentSequence(); p != nil; p = p.ParentSequence() {
		if p == parent {
			return true
		}
	}

	return false
}

// IsBlocked tells if a sequence other than seq and its ancestors holds a
// lock on the sequencer.
func (s *Sequencer) IsBlocked(seq *SequenceBase) bool {
	for _, l := range s.lockList {
		if l != seq && !IsChild(l, seq) {
			return true
		}
	}

	return false
}

// HasLock tells if seq holds a lock or grab.
func (s *Sequencer) HasLock(seq *SequenceBase) bool {
	s.registerSequence(seq)

	for _, l := range s.lockList {
		if l == seq {
			return true
		}
	}

	return false
}

// IsGrabbed tells if any sequence holds a lock or grab.
func (s *Sequencer) IsGrabbed() bool {
	return len(s.lockList) != 0
}

// CurrentGrabber returns the sequence that took the most recent lock, or
// nil.
func (s *Sequencer) CurrentGrabber() *SequenceBase {
	if len(s.lockList) == 0 {
		return nil
	}

	return s.lockList[len(s.lockList)-1]
}

// Lock queues a lock request for seq behind the pending requests and
// blocks until it is granted.
func (s *Sequencer) Lock(seq *SequenceBase) {
	s.lockReq(seq, Lock)
}

// Grab queues a lock request for seq at the front of the queue and blocks
// until it is granted.
func (s *Sequencer) Grab(seq *SequenceBase) {
	s.lockReq(seq, Grab)
}

// Unlock releases the lock of seq.
func (s *Sequencer) Unlock(seq *SequenceBase) {
	s.unlockReq(seq)
}

// Ungrab releases the grab of seq.
func (s *Sequencer) Ungrab(seq *SequenceBase) {
	s.unlockReq(seq)
}

func (s *Sequencer) lockReq(seq *SequenceBase, kind RequestKind) {
	proc := s.sched.Self()
	seqID := s.registerSequence(seq)

	req := &Request{
		Kind:         kind,
		SequenceID:   seqID,
		RequestID:    s.domain.newRequestID(),
		ItemPriority: -1,
		Sequence:     seq,
		proc:         proc,
	}
	s.push(req, kind == Grab)
	s.updateLists()

	s.GrantQueuedLocks()
	s.waitForArbitrationCompleted(req.RequestID)
}

func (s *Sequencer) unlockReq(seq *SequenceBase) {
	for i, l := range s.lockList {
		if l == seq {
			s.lockList = append(s.lockList[:i], s.lockList[i+1:]...)
			s.GrantQueuedLocks()
			s.updateLists()

			return
		}
	}

	report.Warningf(s.FullName(), "SQRUNL",
		"Sequence '%s' called ungrab / unlock, but didn't have lock",
		seq.FullName())
}

// GrantQueuedLocks purges lock requests of dead processes, then walks the
// locks at the front of the queue in order and grants each one that the
// lock list, including locks granted earlier in the walk, does not block.
// Locks behind the first item request are never granted out of order.
func (s *Sequencer) GrantQueuedLocks() {
	var zombies []*Request

	for _, r := range s.queue {
		if r.Kind.isLock() && r.proc.IsDone() {
			zombies = append(zombies, r)
		}
	}

	for _, r := range zombies {
		report.Warningf(s.FullName(), "SEQLCKZMB",
			"The task responsible for requesting a lock on sequencer '%s' "+
				"for sequence '%s' has been killed, to avoid a deadlock the "+
				"sequence will be removed from the arbitration queues",
			s.FullName(), r.Sequence.FullName())
		s.purge(r)
	}

	b := len(s.queue)
	for i, r := range s.queue {
		if !r.Kind.isLock() {
			b = i
			break
		}
	}

	if b == 0 {
		return
	}

	var blocked, granted []*Request

	// Each grant joins the lock list before the next entry is checked, so
	// two unrelated locks are never granted in the same pass.
	for _, r := range s.queue[:b] {
		if s.IsBlocked(r.Sequence) {
			blocked = append(blocked, r)
			continue
		}

		s.lockList = append(s.lockList, r.Sequence)
		granted = append(granted, r)
	}

	s.queue = append(blocked, s.queue[b:]...)

	for _, r := range granted {
		s.arbCompleted[r.RequestID] = true

		report.Trace("sequencer lock granted",
			"sequencer", s.FullName(), "sequence", r.Sequence.FullName(),
			"request_id", r.RequestID)
		s.invokeHook(HookPosLockGrant, r)
	}

	if len(granted) > 0 {
		s.updateLists()
	}
}

func (s *Sequencer) purge(r *Request) {
	for i, x := range s.queue {
		if x == r {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			s.updateLists()
			s.invokeHook(HookPosPurge, r)

			return
		}
	}
}

// isEligible tells if r is an item request that can be granted now.
func (s *Sequencer) isEligible(r *Request) bool {
	return r.Kind == Req && !s.IsBlocked(r.Sequence) && r.Sequence.isRelevant()
}

// chooseNextRequest returns the queue index of the request to grant, or -1.
func (s *Sequencer) chooseNextRequest() int {
	s.GrantQueuedLocks()

	var avail []int

	for i := 0; i < len(s.queue); {
		r := s.queue[i]

		if r.proc.IsDone() {
			report.Warningf(s.FullName(), "SEQREQZMB",
				"The task responsible for requesting a wait_for_grant on "+
					"sequencer '%s' for sequence '%s' has been killed, to "+
					"avoid a deadlock the sequence will be removed from the "+
					"arbitration queues",
				s.FullName(), r.Sequence.FullName())
			s.purge(r)

			continue
		}

		if s.isEligible(r) {
			if s.arbitration == ArbFIFO {
				return i
			}

			avail = append(avail, i)
		}

		i++
	}

	if s.arbitration == ArbFIFO || len(avail) == 0 {
		return -1
	}

	if len(avail) == 1 {
		return avail[0]
	}

	if len(s.lockList) > 0 {
		kept := avail[:0]

		for _, i := range avail {
			if !s.IsBlocked(s.queue[i].Sequence) {
				kept = append(kept, i)
			}
		}

		avail = kept

		switch len(avail) {
		case 0:
			return -1
		case 1:
			return avail[0]
		}
	}

	switch s.arbitration {
	case ArbWeighted:
		return s.chooseWeighted(avail)
	case ArbRandom:
		return avail[s.domain.urandomRange(len(avail)-1)]
	case ArbStrictFIFO, ArbStrictRandom:
		return s.chooseStrict(avail)
	case ArbUser:
		return s.chooseUser(avail)
	}

	report.Fatalf(s.FullName(), "Sequencer",
		"Internal error: Failed to choose sequence")

	return -1
}

func (s *Sequencer) chooseWeighted(avail []int) int {
	sum := 0
	for _, i := range avail {
		sum += s.itemPriority(s.queue[i])
	}

	if sum == 0 {
		return avail[s.domain.urandomRange(len(avail)-1)]
	}

	x := s.domain.urandomRange(sum - 1)
	acc := 0

	for _, i := range avail {
		acc += s.itemPriority(s.queue[i])
		if acc > x {
			return i
		}
	}

	report.Fatalf(s.FullName(), "Sequencer",
		"UVM Internal error in weighted arbitration code")

	return -1
}

func (s *Sequencer) chooseStrict(avail []int) int {
	var highest []int

	highestPri := 0

	for _, i := range avail {
		pri := s.itemPriority(s.queue[i])

		switch {
		case pri > highestPri:
			highest = []int{i}
			highestPri = pri
		case pri == highestPri:
			highest = append(highest, i)
		}
	}

	if s.arbitration == ArbStrictFIFO {
		return highest[0]
	}

	return highest[s.domain.urandomRange(len(highest)-1)]
}

func (s *Sequencer) chooseUser(avail []int) int {
	i := avail[0]
	if s.userArbitration != nil {
		i = s.userArbitration(s, append([]int(nil), avail...))
	}

	for _, a := range avail {
		if a == i {
			return i
		}
	}

	report.Fatalf(s.FullName(), "Sequencer",
		"Error in User arbitration, sequence %d not available\n%s",
		i, s.String())

	return -1
}

// itemPriority returns the priority of the request, falling back to the
// priority of its sequence.
func (s *Sequencer) itemPriority(r *Request) int {
	if r.ItemPriority != -1 {
		if r.ItemPriority <= 0 {
			report.Fatalf(s.FullName(), "SEQITEMPRI",
				"Sequence item from %s has illegal priority: %d",
				r.Sequence.FullName(), r.ItemPriority)
		}

		return r.ItemPriority
	}

	if r.Sequence.Priority() < 0 {
		report.Fatalf(s.FullName(), "SEQDEFPRI",
			"Sequence %s has illegal priority: %d",
			r.Sequence.FullName(), r.Sequence.Priority())
	}

	return r.Sequence.Priority()
}

// waitForSequences lets the sequences run for a few zero-delay cycles so
// that their relevance is up to date.
func (s *Sequencer) waitForSequences() {
	for i := 0; i < s.poundZeroCount; i++ {
		s.sched.Yield()
	}
}

// selectSequence blocks until a request can be granted and grants it.
func (s *Sequencer) selectSequence() {
	selected := -1

	for selected == -1 {
		s.waitForSequences()

		selected = s.chooseNextRequest()
		if selected == -1 {
			s.waitForAvailableSequence()
		}
	}

	s.grant(selected)
}

func (s *Sequencer) grant(i int) *Request {
	r := s.queue[i]
	s.arbCompleted[r.RequestID] = true
	s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
	s.updateLists()

	report.Trace("sequencer grant",
		"sequencer", s.FullName(), "sequence", r.Sequence.FullName(),
		"request_id", r.RequestID, "time", float64(s.sched.Now()))
	s.invokeHook(HookPosGrant, r)

	return r
}

// waitForAvailableSequence blocks until the queue changes or one of the
// irrelevant sequences may have become relevant.
func (s *Sequencer) waitForAvailableSequence() {
	s.arbSize = s.lockArbSize

	var irrelevant []*SequenceBase

	for _, r := range s.queue {
		if r.Kind == Req && !s.IsBlocked(r.Sequence) && !r.Sequence.isRelevant() {
			irrelevant = append(irrelevant, r.Sequence)
		}
	}

	if len(irrelevant) == 0 {
		s.waitArbNotEqual()
		return
	}

	fns := make([]func(), 0, len(irrelevant)+1)

	for _, seq := range irrelevant {
		seq := seq
		fns = append(fns, func() {
			seq.waitForRelevant()
			s.checkZeroTimeLoop()
		})
	}

	fns = append(fns, s.waitArbNotEqual)

	s.sched.JoinAny(s.FullName()+".wait_for_available_sequence", fns...)
}

func (s *Sequencer) checkZeroTimeLoop() {
	now := s.sched.Now()

	if now != s.lastWaitRelevantTime {
		s.lastWaitRelevantTime = now
		s.waitRelevantCount = 0

		return
	}

	s.waitRelevantCount++

	if s.waitRelevantCount > s.maxZeroTimeWaitRelevantCount {
		report.Fatalf(s.FullName(), "SEQRELEVANTLOOP",
			"Zero time loop detected, passed wait_for_relevant %d times "+
				"without time advancing", s.waitRelevantCount)
	}
}

func (s *Sequencer) waitArbNotEqual() {
	for s.arbSize == s.lockArbSize {
		s.changed.Wait()
	}
}

// RemoveSequenceFromQueues removes every request and lock of seq and its
// descendants, and unregisters seq so that late responses are dropped.
func (s *Sequencer) RemoveSequenceFromQueues(seq *SequenceBase) {
	seqID := seq.sqrSequenceID(s, false)

	for i := 0; i < len(s.queue); {
		r := s.queue[i]

		if r.SequenceID != seqID && !IsChild(seq, r.Sequence) {
			i++
			continue
		}

		if seq.State() == StateFinished {
			report.Warningf(s.FullName(), "SEQFINERR",
				"Parent sequence '%s' should not finish before all items "+
					"from itself and items from descendent sequences are "+
					"processed.  The item request from the sequence '%s' is "+
					"being removed.", seq.FullName(), r.Sequence.FullName())
		}

		s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
		s.updateLists()
	}

	for i := 0; i < len(s.lockList); {
		l := s.lockList[i]

		if l != seq && !IsChild(seq, l) {
			i++
			continue
		}

		if seq.State() == StateFinished {
			report.Warningf(s.FullName(), "SEQFINERR",
				"Parent sequence '%s' should not finish before locks from "+
					"itself and descedent sequences are removed.  The lock "+
					"held by the child sequence '%s' is being removed.",
				seq.FullName(), l.FullName())
		}

		s.lockList = append(s.lockList[:i:i], s.lockList[i+1:]...)
		s.updateLists()
	}

	s.unregisterSequence(seq.sqrSequenceID(s, true))
}

func (s *Sequencer) sequenceExiting(seq *SequenceBase) {
	s.RemoveSequenceFromQueues(seq)
}

// KillSequence removes seq and its descendants from the queues and kills
// them.
func (s *Sequencer) KillSequence(seq *SequenceBase) {
	s.RemoveSequenceFromQueues(seq)
	seq.kill()
}

// StopSequences kills every registered sequence.
func (s *Sequencer) StopSequences() {
	for {
		i := s.registered.Min()
		if i == nil {
			return
		}

		e := i.(regEntry)
		s.KillSequence(e.seq)
		s.unregisterSequence(e.id)
	}
}

// HasDoAvailable tells if a relevant, unblocked request is queued.
func (s *Sequencer) HasDoAvailable() bool {
	for _, r := range s.queue {
		if r.Sequence.isRelevant() && !s.IsBlocked(r.Sequence) {
			return true
		}
	}

	return false
}

// SetDefaultSequence sets the type name of the sequence started by
// StartDefaultSequence.
func (s *Sequencer) SetDefaultSequence(typeName string) {
	s.defaultSequence = typeName
}

// StartDefaultSequence creates the default sequence through the factory
// and runs it. It returns once the sequence is done.
func (s *Sequencer) StartDefaultSequence() error {
	if s.defaultSequence == "" {
		return nil
	}

	if s.registry == nil {
		return factory.ErrNotRegistered
	}

	sq, err := s.registry.Create(s.defaultSequence, "default_sequence")
	if err != nil {
		return err
	}

	sq.Seq().Start(s, nil, -1, true)

	return nil
}

func (s *Sequencer) invokeHook(pos *sim.HookPos, item interface{}) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{Domain: s, Pos: pos, Item: item})
}
