package seq

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Arbitration selects how a sequencer picks among eligible requests.
type Arbitration int

// The arbitration modes.
const (
	// ArbFIFO grants requests in arrival order.
	ArbFIFO Arbitration = iota
	// ArbWeighted picks with a probability proportional to priority.
	ArbWeighted
	// ArbRandom picks uniformly, ignoring priority.
	ArbRandom
	// ArbStrictFIFO picks the oldest request of the highest priority.
	ArbStrictFIFO
	// ArbStrictRandom picks uniformly among the highest priority requests.
	ArbStrictRandom
	// ArbUser asks the user arbitration function.
	ArbUser
)

var arbitrationNames = map[Arbitration]string{
	ArbFIFO:         "UVM_SEQ_ARB_FIFO",
	ArbWeighted:     "UVM_SEQ_ARB_WEIGHTED",
	ArbRandom:       "UVM_SEQ_ARB_RANDOM",
	ArbStrictFIFO:   "UVM_SEQ_ARB_STRICT_FIFO",
	ArbStrictRandom: "UVM_SEQ_ARB_STRICT_RANDOM",
	ArbUser:         "UVM_SEQ_ARB_USER",
}

func (a Arbitration) String() string {
	if n, ok := arbitrationNames[a]; ok {
		return n
	}

	return fmt.Sprintf("Arbitration(%d)", int(a))
}

// ParseArbitration converts a name such as "WEIGHTED" or
// "UVM_SEQ_ARB_WEIGHTED" to an Arbitration.
func ParseArbitration(name string) (Arbitration, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "UVM_SEQ_ARB_")

	for a, full := range arbitrationNames {
		if strings.TrimPrefix(full, "UVM_SEQ_ARB_") == n {
			return a, nil
		}
	}

	return ArbFIFO, errors.Errorf("unknown arbitration mode %q", name)
}

// RequestKind is the kind of an arbitration queue entry.
type RequestKind int

// The request kinds. Lock and Grab entries both ask for exclusive access;
// a grab is queued at the front.
const (
	Req RequestKind = iota
	Lock
	Grab
)

func (k RequestKind) String() string {
	switch k {
	case Req:
		return "SEQ_TYPE_REQ"
	case Lock:
		return "SEQ_TYPE_LOCK"
	case Grab:
		return "SEQ_TYPE_GRAB"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

func (k RequestKind) isLock() bool {
	return k == Lock || k == Grab
}
