package tlm2

import "fmt"

// Phase is a phase of the non-blocking base protocol.
type Phase int

// The base protocol phases.
const (
	UninitializedPhase Phase = iota
	BeginReq
	EndReq
	BeginResp
	EndResp
)

func (p Phase) String() string {
	switch p {
	case UninitializedPhase:
		return "UNINITIALIZED_PHASE"
	case BeginReq:
		return "BEGIN_REQ"
	case EndReq:
		return "END_REQ"
	case BeginResp:
		return "BEGIN_RESP"
	case EndResp:
		return "END_RESP"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Sync is the status returned by a non-blocking transport call.
type Sync int

// The sync statuses.
const (
	// Accepted means the callee took the call and did not touch the
	// payload, phase or delay.
	Accepted Sync = iota

	// Updated means the callee moved the phase forward.
	Updated

	// Completed means the transaction is over.
	Completed
)

func (s Sync) String() string {
	switch s {
	case Accepted:
		return "UVM_TLM_ACCEPTED"
	case Updated:
		return "UVM_TLM_UPDATED"
	case Completed:
		return "UVM_TLM_COMPLETED"
	default:
		return fmt.Sprintf("Sync(%d)", int(s))
	}
}
