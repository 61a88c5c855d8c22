package seq

import (
	"math/rand"
)

// A Domain owns the id counters and the random source shared by a group of
// sequencers. Independent test runs use independent domains.
type Domain struct {
	nextSequencerID int
	nextSequenceID  int
	nextRequestID   int
	rand            *rand.Rand
}

// NewDomain creates a domain whose random arbitration draws from seed.
func NewDomain(seed int64) *Domain {
	return &Domain{
		nextSequencerID: 1,
		nextSequenceID:  1,
		rand:            rand.New(rand.NewSource(seed)),
	}
}

func (d *Domain) newSequencerID() int {
	id := d.nextSequencerID
	d.nextSequencerID++

	return id
}

func (d *Domain) newSequenceID() int {
	id := d.nextSequenceID
	d.nextSequenceID++

	return id
}

func (d *Domain) newRequestID() int {
	id := d.nextRequestID
	d.nextRequestID++

	return id
}

// urandomRange returns a value in [0, hi].
func (d *Domain) urandomRange(hi int) int {
	return d.rand.Intn(hi + 1)
}
