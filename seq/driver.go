package seq

import (
	"github.com/sarchlab/gouvm/report"
)

// SeqItemPort is the view a driver has of its sequencer.
type SeqItemPort interface {
	GetNextItem() Item
	TryNextItem() (Item, bool)
	ItemDone(rsp Item)
	Get() Item
	Peek() Item
	Put(rsp Item)
	HasDoAvailable() bool
}

// GetNextItem blocks until a sequence sends an item and returns it. The
// item stays with the sequencer until ItemDone.
func (s *Sequencer) GetNextItem() Item {
	if s.getNextItemCalled {
		report.Errorf(s.FullName(), s.FullName(),
			"Get_next_item called twice without item_done or get in between")
	}

	if !s.itemRequested {
		s.selectSequence()
	}

	s.itemRequested = true
	s.getNextItemCalled = true

	return s.reqFIFO.Peek()
}

// TryNextItem returns an item if a sequence can provide one without
// blocking. It still lets the sequences run for a few zero-delay cycles.
func (s *Sequencer) TryNextItem() (Item, bool) {
	if s.getNextItemCalled {
		report.Errorf(s.FullName(), s.FullName(),
			"get_next_item/try_next_item called twice without item_done "+
				"or get in between")

		return nil, false
	}

	s.waitForSequences()

	selected := s.chooseNextRequest()
	if selected == -1 {
		return nil, false
	}

	r := s.grant(selected)

	s.itemRequested = true
	s.getNextItemCalled = true

	s.waitForSequences()

	item, ok := s.reqFIFO.TryPeek()
	if !ok {
		report.Errorf(s.FullName(), "TRY_NEXT_BLOCKED",
			"try_next_item: the selected sequence '%s' did not produce an "+
				"item within an NBA delay. Sequences should not consume "+
				"time between calls to start_item and finish_item. "+
				"Returning null item.", r.Sequence.FullName())
	}

	return item, ok
}

// ItemDone tells the sequencer that the driver finished the current item.
// A non-nil rsp is routed back to the sequence.
func (s *Sequencer) ItemDone(rsp Item) {
	s.itemRequested = false
	s.getNextItemCalled = false

	item, ok := s.reqFIFO.TryGet()
	if !ok {
		report.Fatalf(s.FullName(), "SQRBADITMDN",
			"Item_done() called with no outstanding requests. Each call to "+
				"item_done() must be paired with a previous call to "+
				"get_next_item().")
	}

	m := item.Meta()

	report.Trace("sequencer item done",
		"sequencer", s.FullName(), "item", m.FullName(),
		"transaction_id", m.TransactionID())
	s.invokeHook(HookPosItemDone, item)

	s.markItemDone(m.SequenceID(), m.TransactionID())

	if rsp != nil {
		s.PutResponse(rsp)
	}

	s.GrantQueuedLocks()
}

// Get returns the next item and marks it done at once.
func (s *Sequencer) Get() Item {
	if !s.itemRequested {
		s.selectSequence()
	}

	s.itemRequested = true

	item := s.reqFIFO.Peek()
	s.ItemDone(nil)

	return item
}

// Peek returns the next item without marking it done.
func (s *Sequencer) Peek() Item {
	if !s.itemRequested {
		s.selectSequence()
	}

	s.itemRequested = true

	return s.reqFIFO.Peek()
}

// Put sends a response back to its sequence.
func (s *Sequencer) Put(rsp Item) {
	s.PutResponse(rsp)
}

// PutResponse routes rsp to the sequence named by its sequence id.
// Responses of sequences that are gone are dropped.
func (s *Sequencer) PutResponse(rsp Item) {
	if rsp == nil {
		report.Fatalf(s.FullName(), "SQRPUT", "Driver put a null response")
	}

	s.lastRsp = rsp
	s.numRspsReceived++

	m := rsp.Meta()
	if m.SequenceID() == -1 {
		report.Fatalf(s.FullName(), "SQRPUT",
			"Driver put a response with null sequence_id")
	}

	seq := s.findSequence(m.SequenceID())
	if seq == nil {
		report.Infof(s.FullName(), "Sequencer",
			"Dropping response for sequence %d, sequence not found.  "+
				"Probable cause: sequence exited or has been killed",
			m.SequenceID())

		return
	}

	seq.deliverResponse(rsp)
}

// SendRequest hands item to the driver on behalf of seq, which must have
// been granted by WaitForGrant.
func (s *Sequencer) SendRequest(seq *SequenceBase, item Item) {
	if seq.waitForGrantCount < 1 {
		report.Warningf(s.FullName(), "SQRSNDREQ",
			"Send request called without wait_for_grant")
	} else {
		seq.waitForGrantCount--
	}

	m := item.Meta()
	if m.TransactionID() == -1 {
		m.SetTransactionID(seq.nextTransactionID)
		seq.nextTransactionID++
	}

	s.lastReq = item

	m.SetSequenceID(seq.sqrSequenceID(s, true))
	m.SetSequencer(s)

	if !s.reqFIFO.TryPut(item) {
		report.Fatalf(s.FullName(), s.FullName(),
			"Concurrent calls to get_next_item() not supported. Consider "+
				"using a semaphore to ensure that concurrent processes take "+
				"turns in the driver")
	}

	s.numReqsSent++

	s.GrantQueuedLocks()
}

// NumReqsSent returns how many items were sent to the driver.
func (s *Sequencer) NumReqsSent() int {
	return s.numReqsSent
}

// NumRspsReceived returns how many responses the driver put.
func (s *Sequencer) NumRspsReceived() int {
	return s.numRspsReceived
}

// LastReq returns the last item sent to the driver.
func (s *Sequencer) LastReq() Item {
	return s.lastReq
}

// LastRsp returns the last response put by the driver.
func (s *Sequencer) LastRsp() Item {
	return s.lastRsp
}

// LastItemDone returns the sequence and transaction ids of the last item
// the driver finished.
func (s *Sequencer) LastItemDone() (sequenceID, transactionID int) {
	return s.lastItemSequenceID, s.lastItemTransactionID
}
