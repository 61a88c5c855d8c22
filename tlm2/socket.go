package tlm2

import (
	"fmt"
	"strings"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/component"
	"github.com/sarchlab/gouvm/report"
)

// Hook positions fired by the socket that terminates a transport call. The
// hook item is the *GenericPayload and the detail is a TransportDetail.
var (
	HookPosBTransport    = &sim.HookPos{Name: "TLM2 B Transport"}
	HookPosNBTransportFw = &sim.HookPos{Name: "TLM2 NB Transport Fw"}
	HookPosNBTransportBw = &sim.HookPos{Name: "TLM2 NB Transport Bw"}
)

// BlockingTransport is implemented by the owner of a blocking target
// socket. BTransport may block the calling process.
type BlockingTransport interface {
	BTransport(t *GenericPayload, delay *Time)
}

// FwTransport is implemented by the owner of a non-blocking target socket.
type FwTransport interface {
	NBTransportFw(t *GenericPayload, p *Phase, delay *Time) Sync
}

// BwTransport is implemented by the owner of a non-blocking initiator
// socket.
type BwTransport interface {
	NBTransportBw(t *GenericPayload, p *Phase, delay *Time) Sync
}

// TransportDetail describes one transport call in a hook.
type TransportDetail struct {
	PhaseIn  Phase
	PhaseOut Phase
	Sync     Sync
	Delay    float64
}

func (d TransportDetail) String() string {
	return fmt.Sprintf("%s -> %s %s delay=%gs",
		d.PhaseIn, d.PhaseOut, d.Sync, d.Delay)
}

// SocketKind tells the role of a socket on a transport path.
type SocketKind int

// The socket kinds.
const (
	BInitiator SocketKind = iota
	BTarget
	BPassthroughInitiator
	BPassthroughTarget
	NBInitiator
	NBTarget
	NBPassthroughInitiator
	NBPassthroughTarget
)

var socketKindNames = map[SocketKind]string{
	BInitiator:             "uvm_tlm_b_initiator_socket",
	BTarget:                "uvm_tlm_b_target_socket",
	BPassthroughInitiator:  "uvm_tlm_b_passthrough_initiator_socket",
	BPassthroughTarget:     "uvm_tlm_b_passthrough_target_socket",
	NBInitiator:            "uvm_tlm_nb_initiator_socket",
	NBTarget:               "uvm_tlm_nb_target_socket",
	NBPassthroughInitiator: "uvm_tlm_nb_passthrough_initiator_socket",
	NBPassthroughTarget:    "uvm_tlm_nb_passthrough_target_socket",
}

func (k SocketKind) String() string {
	if n, ok := socketKindNames[k]; ok {
		return n
	}

	return fmt.Sprintf("SocketKind(%d)", int(k))
}

// IsBlocking tells if the kind carries blocking transport.
func (k SocketKind) IsBlocking() bool {
	return k <= BPassthroughTarget
}

// IsTarget tells if the kind terminates the forward path.
func (k SocketKind) IsTarget() bool {
	return k == BTarget || k == NBTarget
}

// providers lists the kinds each kind may connect to.
var providers = map[SocketKind][]SocketKind{
	BInitiator:             {BPassthroughInitiator, BPassthroughTarget, BTarget},
	BPassthroughInitiator:  {BPassthroughInitiator, BPassthroughTarget, BTarget},
	BPassthroughTarget:     {BPassthroughTarget, BTarget},
	NBInitiator:            {NBPassthroughInitiator, NBPassthroughTarget, NBTarget},
	NBPassthroughInitiator: {NBPassthroughInitiator, NBPassthroughTarget, NBTarget},
	NBPassthroughTarget:    {NBPassthroughTarget, NBTarget},
}

// A ConnectionError is returned by Connect when two sockets cannot be
// connected.
type ConnectionError struct {
	Socket   string
	Kind     SocketKind
	Expected []SocketKind
	Actual   SocketKind
	Reason   string
}

func (e *ConnectionError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("%s: %s", e.Socket, e.Reason)
	}

	names := make([]string, 0, len(e.Expected))
	for _, k := range e.Expected {
		names = append(names, k.String())
	}

	return fmt.Sprintf("%s: %s: expected one of [%s], got %s",
		e.Socket, e.Reason, strings.Join(names, ", "), e.Actual)
}

// A Socket is one end or a pass-through point of a transport path.
type Socket struct {
	*component.Base
	sim.HookableBase

	kind SocketKind
	fw   *Socket
	bw   *Socket

	b    BlockingTransport
	nbFw FwTransport
	nbBw BwTransport
}

func newSocket(name string, parent component.Component, kind SocketKind) *Socket {
	return &Socket{
		Base: component.NewBase(name, parent),
		kind: kind,
	}
}

// NewBInitiatorSocket creates a blocking initiator socket.
func NewBInitiatorSocket(name string, parent component.Component) *Socket {
	return newSocket(name, parent, BInitiator)
}

// NewBTargetSocket creates a blocking target socket served by imp.
func NewBTargetSocket(
	name string,
	parent component.Component,
	imp BlockingTransport,
) *Socket {
	s := newSocket(name, parent, BTarget)
	s.b = imp

	return s
}

// NewBPassthroughInitiatorSocket creates a blocking pass-through socket
// that exports an initiator of a child component.
func NewBPassthroughInitiatorSocket(name string, parent component.Component) *Socket {
	return newSocket(name, parent, BPassthroughInitiator)
}

// NewBPassthroughTargetSocket creates a blocking pass-through socket that
// exports a target of a child component.
func NewBPassthroughTargetSocket(name string, parent component.Component) *Socket {
	return newSocket(name, parent, BPassthroughTarget)
}

// NewNBInitiatorSocket creates a non-blocking initiator socket. The imp
// receives backward calls.
func NewNBInitiatorSocket(
	name string,
	parent component.Component,
	imp BwTransport,
) *Socket {
	s := newSocket(name, parent, NBInitiator)
	s.nbBw = imp

	return s
}

// NewNBTargetSocket creates a non-blocking target socket. The imp receives
// forward calls.
func NewNBTargetSocket(
	name string,
	parent component.Component,
	imp FwTransport,
) *Socket {
	s := newSocket(name, parent, NBTarget)
	s.nbFw = imp

	return s
}

// NewNBPassthroughInitiatorSocket creates a non-blocking pass-through
// socket that exports an initiator of a child component.
func NewNBPassthroughInitiatorSocket(name string, parent component.Component) *Socket {
	return newSocket(name, parent, NBPassthroughInitiator)
}

// NewNBPassthroughTargetSocket creates a non-blocking pass-through socket
// that exports a target of a child component.
func NewNBPassthroughTargetSocket(name string, parent component.Component) *Socket {
	return newSocket(name, parent, NBPassthroughTarget)
}

// Kind returns the socket kind.
func (s *Socket) Kind() SocketKind {
	return s.kind
}

// Provider returns the socket s forwards to, or nil.
func (s *Socket) Provider() *Socket {
	return s.fw
}

// Connect makes provider the next socket on the forward path of s. For
// non-blocking sockets the backward path is connected the other way.
func (s *Socket) Connect(provider *Socket) error {
	err := s.checkConnect(provider)
	if err != nil {
		report.Errorf(s.FullName(), s.kind.String(), "%s", err.Error())
		return err
	}

	s.fw = provider
	if !s.kind.IsBlocking() {
		provider.bw = s
	}

	report.Trace("socket connected",
		"socket", s.FullName(), "provider", provider.FullName())

	return nil
}

func (s *Socket) checkConnect(provider *Socket) *ConnectionError {
	if s.kind.IsTarget() {
		return &ConnectionError{
			Socket: s.FullName(),
			Kind:   s.kind,
			Reason: "You cannot call connect() on a target termination socket",
		}
	}

	if provider == nil || provider == s {
		return &ConnectionError{
			Socket: s.FullName(),
			Kind:   s.kind,
			Reason: "a socket must be connected to another socket",
		}
	}

	if s.fw != nil {
		return &ConnectionError{
			Socket: s.FullName(),
			Kind:   s.kind,
			Reason: "already connected to " + s.fw.FullName(),
		}
	}

	for _, k := range providers[s.kind] {
		if k == provider.kind {
			return nil
		}
	}

	return &ConnectionError{
		Socket:   s.FullName(),
		Kind:     s.kind,
		Expected: providers[s.kind],
		Actual:   provider.kind,
		Reason:   "type mismatch in connect -- connection cannot be completed",
	}
}

// BTransport runs a blocking transaction. The call returns when the
// target is done with t. Delay is updated by the target.
func (s *Socket) BTransport(t *GenericPayload, delay *Time) {
	if delay == nil {
		report.Fatalf(s.FullName(), "UVM/TLM2/NULLDELAY",
			"%s.b_transport() called with 'null' delay", s.FullName())
	}

	s.mustBeBlocking(true, "b_transport")

	target := s.forwardTarget()
	target.b.BTransport(t, delay)

	report.Trace("b_transport",
		"socket", s.FullName(), "target", target.FullName(),
		"address", t.Address, "command", t.Command.String(),
		"response", t.Response.String())
	target.invokeHook(HookPosBTransport, t, TransportDetail{
		Sync:  Completed,
		Delay: delay.AbsTime(1),
	})
}

// NBTransportFw sends t forward to the target.
func (s *Socket) NBTransportFw(t *GenericPayload, p *Phase, delay *Time) Sync {
	if delay == nil {
		report.Fatalf(s.FullName(), "UVM/TLM2/NULLDELAY",
			"%s.nb_transport_fw() called with 'null' delay", s.FullName())
	}

	s.mustBeBlocking(false, "nb_transport_fw")

	target := s.forwardTarget()
	in := *p
	sync := target.nbFw.NBTransportFw(t, p, delay)

	report.Trace("nb_transport_fw",
		"socket", s.FullName(), "target", target.FullName(),
		"phase_in", in.String(), "phase_out", p.String(),
		"sync", sync.String())
	target.invokeHook(HookPosNBTransportFw, t, TransportDetail{
		PhaseIn:  in,
		PhaseOut: *p,
		Sync:     sync,
		Delay:    delay.AbsTime(1),
	})

	return sync
}

// NBTransportBw sends t backward to the initiator.
func (s *Socket) NBTransportBw(t *GenericPayload, p *Phase, delay *Time) Sync {
	if delay == nil {
		report.Fatalf(s.FullName(), "UVM/TLM2/NULLDELAY",
			"%s.nb_transport_bw() called with 'null' delay", s.FullName())
	}

	s.mustBeBlocking(false, "nb_transport_bw")

	initiator := s.backwardInitiator()
	in := *p
	sync := initiator.nbBw.NBTransportBw(t, p, delay)

	report.Trace("nb_transport_bw",
		"socket", s.FullName(), "initiator", initiator.FullName(),
		"phase_in", in.String(), "phase_out", p.String(),
		"sync", sync.String())
	initiator.invokeHook(HookPosNBTransportBw, t, TransportDetail{
		PhaseIn:  in,
		PhaseOut: *p,
		Sync:     sync,
		Delay:    delay.AbsTime(1),
	})

	return sync
}

func (s *Socket) mustBeBlocking(blocking bool, call string) {
	if s.kind.IsBlocking() != blocking {
		report.Fatalf(s.FullName(), "UVM/TLM2/KIND",
			"%s() called on %s %s", call, s.kind, s.FullName())
	}
}

func (s *Socket) forwardTarget() *Socket {
	for x := s; x != nil; x = x.fw {
		if x.kind.IsTarget() {
			return x
		}
	}

	report.Fatalf(s.FullName(), "UVM/TLM2/UNBOUND",
		"%s is not connected to a target", s.FullName())

	return nil
}

func (s *Socket) backwardInitiator() *Socket {
	for x := s; x != nil; x = x.bw {
		if x.kind == NBInitiator {
			return x
		}
	}

	report.Fatalf(s.FullName(), "UVM/TLM2/UNBOUND",
		"%s is not connected to an initiator", s.FullName())

	return nil
}

func (s *Socket) invokeHook(pos *sim.HookPos, t *GenericPayload, d TransportDetail) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{Domain: s, Pos: pos, Item: t, Detail: d})
}
