// Package tlm2 provides TLM-2.0 style transport: the generic payload,
// delay annotations, phases and the blocking and non-blocking sockets that
// connect initiators to targets.
package tlm2

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/sarchlab/gouvm/seq"
)

// Command is the command of a generic payload.
type Command int

// The commands.
const (
	CommandRead Command = iota
	CommandWrite
	CommandIgnore
)

func (c Command) String() string {
	switch c {
	case CommandRead:
		return "UVM_TLM_READ_COMMAND"
	case CommandWrite:
		return "UVM_TLM_WRITE_COMMAND"
	case CommandIgnore:
		return "UVM_TLM_IGNORE_COMMAND"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ResponseStatus is the outcome a target writes into a payload.
type ResponseStatus int

// The response statuses. Errors are negative.
const (
	ResponseOK              ResponseStatus = 1
	ResponseIncomplete      ResponseStatus = 0
	ResponseGenericError    ResponseStatus = -1
	ResponseAddressError    ResponseStatus = -2
	ResponseCommandError    ResponseStatus = -3
	ResponseBurstError      ResponseStatus = -4
	ResponseByteEnableError ResponseStatus = -5
)

func (r ResponseStatus) String() string {
	switch r {
	case ResponseOK:
		return "TLM_OK_RESPONSE"
	case ResponseIncomplete:
		return "TLM_INCOMPLETE_RESPONSE"
	case ResponseGenericError:
		return "TLM_GENERIC_ERROR_RESPONSE"
	case ResponseAddressError:
		return "TLM_ADDRESS_ERROR_RESPONSE"
	case ResponseCommandError:
		return "TLM_COMMAND_ERROR_RESPONSE"
	case ResponseBurstError:
		return "TLM_BURST_ERROR_RESPONSE"
	case ResponseByteEnableError:
		return "TLM_BYTE_ENABLE_ERROR_RESPONSE"
	default:
		return fmt.Sprintf("ResponseStatus(%d)", int(r))
	}
}

// An Extension is user data attached to a payload. A payload holds at most
// one extension of each concrete type.
type Extension interface {
	Clone() Extension
}

// GenericPayload is the TLM-2.0 memory-mapped bus transaction.
type GenericPayload struct {
	*seq.ItemMeta

	Address          uint64
	Command          Command
	Data             []byte
	Length           uint32
	Response         ResponseStatus
	DMIAllowed       bool
	ByteEnable       []byte
	ByteEnableLength uint32
	StreamingWidth   uint32

	extensions map[reflect.Type]Extension
}

// NewGenericPayload creates an empty payload with an incomplete response.
func NewGenericPayload(name string) *GenericPayload {
	return &GenericPayload{
		ItemMeta: seq.NewItemMeta(name),
		Command:  CommandIgnore,
		Response: ResponseIncomplete,
	}
}

// IsRead tells if the command is a read.
func (p *GenericPayload) IsRead() bool {
	return p.Command == CommandRead
}

// SetRead makes the payload a read.
func (p *GenericPayload) SetRead() {
	p.Command = CommandRead
}

// IsWrite tells if the command is a write.
func (p *GenericPayload) IsWrite() bool {
	return p.Command == CommandWrite
}

// SetWrite makes the payload a write.
func (p *GenericPayload) SetWrite() {
	p.Command = CommandWrite
}

// IsResponseOK tells if the target completed the payload successfully.
func (p *GenericPayload) IsResponseOK() bool {
	return p.Response > 0
}

// IsResponseError tells if the response is anything but OK.
func (p *GenericPayload) IsResponseError() bool {
	return p.Response <= 0
}

// ResponseString returns the name of the response status.
func (p *GenericPayload) ResponseString() string {
	return p.Response.String()
}

// ByteEnabled tells if byte i of the data takes part in the transfer. The
// byte enable array is reused cyclically when shorter than the data. Bytes
// whose enable lies past the end of the array are disabled.
func (p *GenericPayload) ByteEnabled(i int) bool {
	if p.ByteEnableLength == 0 {
		return true
	}

	j := uint32(i) % p.ByteEnableLength
	if int(j) >= len(p.ByteEnable) {
		return false
	}

	return p.ByteEnable[j] == 0xFF
}

// Validate checks the lengths of the payload against its arrays.
func (p *GenericPayload) Validate() error {
	if p.Command != CommandIgnore && p.Length == 0 {
		return errors.Errorf("%s: length must not be 0 for %s",
			p.FullName(), p.Command)
	}

	if int(p.Length) > len(p.Data) {
		return errors.Errorf("%s: length %d exceeds data size %d",
			p.FullName(), p.Length, len(p.Data))
	}

	if int(p.ByteEnableLength) > len(p.ByteEnable) {
		return errors.Errorf(
			"%s: byte enable length %d exceeds byte enable size %d",
			p.FullName(), p.ByteEnableLength, len(p.ByteEnable))
	}

	return nil
}

// SetExtension attaches ext, replacing the extension of the same type. It
// returns the replaced extension, or nil.
func (p *GenericPayload) SetExtension(ext Extension) Extension {
	if p.extensions == nil {
		p.extensions = make(map[reflect.Type]Extension)
	}

	key := reflect.TypeOf(ext)
	old := p.extensions[key]
	p.extensions[key] = ext

	return old
}

// Extension returns the extension of the same type as proto, or nil.
func (p *GenericPayload) Extension(proto Extension) Extension {
	return p.extensions[reflect.TypeOf(proto)]
}

// ClearExtension removes the extension of the same type as proto.
func (p *GenericPayload) ClearExtension(proto Extension) {
	delete(p.extensions, reflect.TypeOf(proto))
}

// ClearExtensions removes all extensions.
func (p *GenericPayload) ClearExtensions() {
	p.extensions = nil
}

// NumExtensions returns the number of attached extensions.
func (p *GenericPayload) NumExtensions() int {
	return len(p.extensions)
}

// ExtensionOf returns the extension of type T attached to p.
func ExtensionOf[T Extension](p *GenericPayload) (T, bool) {
	var zero T

	ext, ok := p.extensions[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}

	return ext.(T), true
}

// Copy returns a deep copy. Extensions are cloned.
func (p *GenericPayload) Copy() *GenericPayload {
	c := *p
	meta := *p.ItemMeta
	c.ItemMeta = &meta
	c.Data = append([]byte(nil), p.Data...)
	c.ByteEnable = append([]byte(nil), p.ByteEnable...)
	c.extensions = nil

	for _, ext := range p.extensions {
		c.SetExtension(ext.Clone())
	}

	return &c
}

// Compare tells if two payloads describe the same transfer. Data bytes
// that are not enabled are ignored.
func (p *GenericPayload) Compare(o *GenericPayload) bool {
	if p.Address != o.Address ||
		p.Command != o.Command ||
		p.Length != o.Length ||
		p.DMIAllowed != o.DMIAllowed ||
		p.ByteEnableLength != o.ByteEnableLength ||
		p.Response != o.Response ||
		p.StreamingWidth != o.StreamingWidth {
		return false
	}

	if int(p.Length) > len(p.Data) || int(o.Length) > len(o.Data) ||
		int(p.ByteEnableLength) > len(p.ByteEnable) ||
		int(o.ByteEnableLength) > len(o.ByteEnable) {
		return false
	}

	for i := 0; i < int(p.Length); i++ {
		if p.ByteEnabled(i) && p.Data[i] != o.Data[i] {
			return false
		}
	}

	for i := 0; i < int(p.ByteEnableLength); i++ {
		if p.ByteEnable[i] != o.ByteEnable[i] {
			return false
		}
	}

	return true
}

// Diff returns a human-readable difference between the transfer fields of
// two payloads, or an empty string.
func (p *GenericPayload) Diff(o *GenericPayload) string {
	return cmp.Diff(p, o,
		cmpopts.IgnoreUnexported(GenericPayload{}),
		cmpopts.IgnoreFields(GenericPayload{}, "ItemMeta"),
		cmpopts.EquateEmpty(),
	)
}

// String renders the payload the way UVM's convert2string does.
func (p *GenericPayload) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s [0x%016x] =", p.FullName(), p.Command, p.Address)

	for i := 0; i < int(p.Length) && i < len(p.Data); i++ {
		if p.ByteEnabled(i) {
			fmt.Fprintf(&b, " %02x", p.Data[i])
		} else {
			b.WriteString(" --")
		}
	}

	fmt.Fprintf(&b, " (status=%s)", p.Response)

	return b.String()
}
