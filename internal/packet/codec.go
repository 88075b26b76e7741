// Package packet describes every packet the client speaks as a list of
// version-gated steps. A layout is resolved into a plan once per connection,
// so decoding never re-evaluates version conditions per packet.
package packet

import (
	"errors"
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
)

var (
	// ErrUnknownOpcode is returned for opcodes with no binding in the current
	// state. The frame can be skipped; the connection stays usable.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrTrailingData means a plan finished before the payload did.
	ErrTrailingData = fmt.Errorf("%w: trailing bytes after packet", protocol.ErrMalformed)
	// ErrNotEncodable is returned when a step of the plan has no encoder.
	ErrNotEncodable = errors.New("packet cannot be encoded")
	// ErrCosmetic marks a check or sub-field failure that only affects
	// presentation. The packet is dropped and the connection continues.
	ErrCosmetic = errors.New("cosmetic packet error")
)

// Step is one field (or group of fields) of a packet, present for the
// versions in Range.
type Step[T any] struct {
	Name   string
	Range  protocol.Range
	Decode func(b *protocol.Buffer, p *T) error
	Encode func(w *protocol.Writer, p *T) error
}

// Layout lists the steps of a packet in wire order.
type Layout[T any] []Step[T]

// Plan is a layout resolved for one version.
type Plan[T any] struct {
	version protocol.Version
	steps   []Step[T]
}

func (l Layout[T]) Plan(v protocol.Version) Plan[T] {
	steps := make([]Step[T], 0, len(l))
	for _, s := range l {
		if s.Range.Contains(v) {
			steps = append(steps, s)
		}
	}
	return Plan[T]{version: v, steps: steps}
}

func (p Plan[T]) Version() protocol.Version {
	return p.version
}

// Len returns the number of steps that apply.
func (p Plan[T]) Len() int {
	return len(p.steps)
}

func (p Plan[T]) Decode(b *protocol.Buffer, dst *T) error {
	for _, s := range p.steps {
		if s.Decode == nil {
			continue
		}
		if err := s.Decode(b, dst); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func (p Plan[T]) Encode(w *protocol.Writer, src *T) error {
	for _, s := range p.steps {
		if s.Encode == nil {
			return fmt.Errorf("%w: step %s at %s", ErrNotEncodable, s.Name, p.version)
		}
		if err := s.Encode(w, src); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

// Checker is implemented by packets that validate themselves after decoding.
// Returning an error that wraps ErrCosmetic drops the packet; any other error
// closes the connection.
type Checker interface {
	Check() error
}

// DecodeError reports a packet that could not be decoded.
type DecodeError struct {
	Packet  string
	State   protocol.State
	Opcode  int32
	Version protocol.Version
	// Offset is the cursor position in the payload when decoding stopped.
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s 0x%02X, %s) at offset %d: %v",
		e.Packet, e.State, e.Opcode, e.Version, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Cosmetic reports whether the packet can be dropped without closing the
// connection.
func (e *DecodeError) Cosmetic() bool {
	return errors.Is(e.Err, ErrCosmetic)
}

// codec is a plan with the packet type erased, as stored in a Table.
type codec interface {
	decode(b *protocol.Buffer) (any, error)
	encode(w *protocol.Writer, p any) error
}

type planCodec[T any] struct {
	plan Plan[T]
}

func (c planCodec[T]) decode(b *protocol.Buffer) (any, error) {
	p := new(T)
	if err := c.plan.Decode(b, p); err != nil {
		return p, err
	}
	return p, nil
}

func (c planCodec[T]) encode(w *protocol.Writer, p any) error {
	switch v := p.(type) {
	case *T:
		return c.plan.Encode(w, v)
	case T:
		return c.plan.Encode(w, &v)
	default:
		return fmt.Errorf("%w: got %T", ErrNotEncodable, p)
	}
}
