package packet

import (
	"fmt"
	"reflect"

	"github.com/Versifine/mcwire/internal/protocol"
)

// Binding is a packet type bound to an opcode in one state of one version.
type Binding struct {
	*Type
	State  protocol.State
	Opcode int32
	codec  codec
}

type routeTable struct {
	byOpcode map[int32]*Binding
	byType   map[reflect.Type]*Binding
}

// Table is the registry resolved for one version. It is never modified after
// Bind returns, so connections share it without locking.
type Table struct {
	version protocol.Version
	routes  map[route]*routeTable
}

func (t *Table) Version() protocol.Version {
	return t.version
}

func (t *Table) Lookup(state protocol.State, dir protocol.Direction, opcode int32) (*Binding, bool) {
	rt, ok := t.routes[route{state: state, dir: dir}]
	if !ok {
		return nil, false
	}
	b, ok := rt.byOpcode[opcode]
	return b, ok
}

// ByName finds the binding of a named packet.
func (t *Table) ByName(state protocol.State, dir protocol.Direction, name string) (*Binding, bool) {
	rt, ok := t.routes[route{state: state, dir: dir}]
	if !ok {
		return nil, false
	}
	for _, b := range rt.byOpcode {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

func (t *Table) byValue(state protocol.State, dir protocol.Direction, p any) (*Binding, bool) {
	rt, ok := t.routes[route{state: state, dir: dir}]
	if !ok {
		return nil, false
	}
	typ := reflect.TypeOf(p)
	if typ != nil && typ.Kind() != reflect.Pointer {
		typ = reflect.PointerTo(typ)
	}
	b, ok := rt.byType[typ]
	return b, ok
}

// Decode decodes one payload. The buffer must carry the connection context.
// An opcode without binding gives ErrUnknownOpcode; everything else that goes
// wrong is reported as *DecodeError.
func (t *Table) Decode(state protocol.State, dir protocol.Direction, opcode int32, b *protocol.Buffer) (any, *Binding, error) {
	bind, ok := t.Lookup(state, dir, opcode)
	if !ok {
		return nil, nil, fmt.Errorf("%w: 0x%02X in %s %s at %s", ErrUnknownOpcode, opcode, state, dir, t.version)
	}
	p, err := bind.codec.decode(b)
	if err == nil && b.Len() > 0 {
		err = fmt.Errorf("%w: %d bytes", ErrTrailingData, b.Len())
	}
	if err == nil {
		if c, ok := p.(Checker); ok {
			err = c.Check()
		}
	}
	if err != nil {
		return p, bind, &DecodeError{
			Packet:  bind.Name,
			State:   state,
			Opcode:  opcode,
			Version: t.version,
			Offset:  b.Offset(),
			Err:     err,
		}
	}
	return p, bind, nil
}

// Encode writes the payload of p and returns its opcode.
func (t *Table) Encode(state protocol.State, dir protocol.Direction, p any, w *protocol.Writer) (int32, error) {
	bind, ok := t.byValue(state, dir, p)
	if !ok {
		return 0, fmt.Errorf("%w: %T has no opcode in %s %s at %s", ErrNotEncodable, p, state, dir, t.version)
	}
	if err := bind.codec.encode(w, p); err != nil {
		return 0, fmt.Errorf("encode %s: %w", bind.Name, err)
	}
	return bind.Opcode, nil
}
