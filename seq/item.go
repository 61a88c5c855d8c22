// Package seq implements UVM sequences, sequence items and the sequencer
// that arbitrates between sequences on their way to a driver.
package seq

// An Item is a transaction that flows from a sequence to a driver.
type Item interface {
	Meta() *ItemMeta
}

// ItemMeta carries the identity of an item. User items embed a *ItemMeta.
type ItemMeta struct {
	name          string
	transactionID int
	sequenceID    int
	depth         int
	sequencer     *Sequencer
	parent        *SequenceBase
}

// NewItemMeta creates the metadata of an item named name.
func NewItemMeta(name string) *ItemMeta {
	return &ItemMeta{
		name:          name,
		transactionID: -1,
		sequenceID:    -1,
		depth:         -1,
	}
}

// Meta returns m itself, so that types embedding a *ItemMeta satisfy Item.
func (m *ItemMeta) Meta() *ItemMeta {
	return m
}

// Name returns the leaf name.
func (m *ItemMeta) Name() string {
	return m.name
}

// FullName returns the name prefixed by the parent sequence, or by the
// sequencer for root items.
func (m *ItemMeta) FullName() string {
	prefix := ""

	switch {
	case m.parent != nil:
		prefix = m.parent.FullName() + "."
	case m.sequencer != nil:
		prefix = m.sequencer.FullName() + "."
	}

	if m.name == "" {
		return prefix + "_item"
	}

	return prefix + m.name
}

// TransactionID returns the id given by the sequence on send, or -1.
func (m *ItemMeta) TransactionID() int {
	return m.transactionID
}

// SetTransactionID sets the transaction id.
func (m *ItemMeta) SetTransactionID(id int) {
	m.transactionID = id
}

// SequenceID returns the sequencer-scoped id of the sequence that sent the
// item, or -1.
func (m *ItemMeta) SequenceID() int {
	return m.sequenceID
}

// SetSequenceID sets the sequence id.
func (m *ItemMeta) SetSequenceID(id int) {
	m.sequenceID = id
}

// SetIDInfo copies the routing ids of other into m. Drivers call it on a
// response before sending it back.
func (m *ItemMeta) SetIDInfo(other Item) {
	o := other.Meta()
	m.transactionID = o.transactionID
	m.sequenceID = o.sequenceID
}

// Sequencer returns the sequencer the item was sent through.
func (m *ItemMeta) Sequencer() *Sequencer {
	return m.sequencer
}

// SetSequencer sets the sequencer of the item.
func (m *ItemMeta) SetSequencer(s *Sequencer) {
	m.sequencer = s
}

// ParentSequence returns the sequence that created the item. The link does
// not own the parent.
func (m *ItemMeta) ParentSequence() *SequenceBase {
	return m.parent
}

// SetParentSequence sets the parent sequence.
func (m *ItemMeta) SetParentSequence(p *SequenceBase) {
	m.parent = p
}

// Depth returns the nesting depth. Root sequences have depth 1.
func (m *ItemMeta) Depth() int {
	if m.depth != -1 {
		return m.depth
	}

	if m.parent == nil {
		m.depth = 1
	} else {
		m.depth = m.parent.Depth() + 1
	}

	return m.depth
}

// SetDepth overrides the computed depth.
func (m *ItemMeta) SetDepth(d int) {
	m.depth = d
}

// setItemContext binds the item to the sequence that sends it.
func (m *ItemMeta) setItemContext(parent *SequenceBase, sqr *Sequencer) {
	if parent != nil {
		m.parent = parent
	}

	if sqr == nil && m.parent != nil {
		sqr = m.parent.sequencer
	}

	m.sequencer = sqr

	if m.parent != nil {
		m.depth = m.parent.Depth() + 1
	}
}
