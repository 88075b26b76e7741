package packet

import (
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/Versifine/mcwire/internal/protocol"
)

//go:embed opcodes.toml
var defaultOpcodes string

// Info is the static description of a packet type.
type Info struct {
	Name      string
	Direction protocol.Direction
	States    []protocol.State
	// ThreadSafe handlers may run on the worker pool instead of the main queue.
	ThreadSafe bool
	// LowPriority handlers run on a separate, smaller pool. They are never
	// dropped.
	LowPriority bool
}

// Type is a registered packet type. It can be bound to any version.
type Type struct {
	Info
	goType reflect.Type
	bind   func(v protocol.Version) codec
}

func (t *Type) hasState(s protocol.State) bool {
	return slices.Contains(t.States, s)
}

// GoType returns the pointer type Decode produces for this packet.
func (t *Type) GoType() reflect.Type {
	return t.goType
}

type typeKey struct {
	dir  protocol.Direction
	name string
}

type route struct {
	state protocol.State
	dir   protocol.Direction
}

type opcodeEntry struct {
	Since string `toml:"since"`
	ID    int32  `toml:"id"`
}

type opcodeRange struct {
	since protocol.Version
	id    int32
}

// Registry holds every packet type and the opcode history of each.
type Registry struct {
	mu      sync.RWMutex
	types   map[typeKey]*Type
	opcodes map[route]map[string][]opcodeRange
}

// NewRegistry builds the registry with all known packets and the embedded
// opcode table.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		types:   make(map[typeKey]*Type),
		opcodes: make(map[route]map[string][]opcodeRange),
	}
	var errs []error
	registerAll(r, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := r.LoadOpcodes(defaultOpcodes); err != nil {
		return nil, fmt.Errorf("embedded opcode table: %w", err)
	}
	return r, nil
}

// Default returns the shared registry, built on first use.
var Default = sync.OnceValues(NewRegistry)

func register[T any](r *Registry, errs *[]error, info Info, layout Layout[T]) {
	key := typeKey{dir: info.Direction, name: info.Name}
	if _, dup := r.types[key]; dup {
		*errs = append(*errs, fmt.Errorf("packet %s %s registered twice", info.Direction, info.Name))
		return
	}
	r.types[key] = &Type{
		Info:   info,
		goType: reflect.TypeOf((*T)(nil)),
		bind: func(v protocol.Version) codec {
			return planCodec[T]{plan: layout.Plan(v)}
		},
	}
}

// Type looks a packet type up by direction and name.
func (r *Registry) Type(dir protocol.Direction, name string) (*Type, bool) {
	t, ok := r.types[typeKey{dir: dir, name: name}]
	return t, ok
}

var stateNames = map[string]protocol.State{
	"handshaking":   protocol.Handshaking,
	"status":        protocol.Status,
	"login":         protocol.Login,
	"configuration": protocol.Configuration,
	"play":          protocol.Play,
}

var directionNames = map[string]protocol.Direction{
	"clientbound": protocol.Clientbound,
	"serverbound": protocol.Serverbound,
}

// LoadOpcodes parses an opcode table and merges it over the current one. A
// packet named in data replaces its whole history for that state and
// direction. An id of -1 removes the packet from that version on.
func (r *Registry) LoadOpcodes(data string) error {
	var file map[string]map[string]map[string][]opcodeEntry
	if _, err := toml.Decode(data, &file); err != nil {
		return fmt.Errorf("parse opcode table: %w", err)
	}

	parsed := make(map[route]map[string][]opcodeRange)
	for stateName, dirs := range file {
		state, ok := stateNames[stateName]
		if !ok {
			return fmt.Errorf("unknown state %q", stateName)
		}
		for dirName, packets := range dirs {
			dir, ok := directionNames[dirName]
			if !ok {
				return fmt.Errorf("unknown direction %q in %s", dirName, stateName)
			}
			rt := route{state: state, dir: dir}
			if parsed[rt] == nil {
				parsed[rt] = make(map[string][]opcodeRange)
			}
			for name, entries := range packets {
				t, ok := r.Type(dir, name)
				if !ok {
					return fmt.Errorf("%s %s: no packet named %q", stateName, dirName, name)
				}
				if !t.hasState(state) {
					return fmt.Errorf("%s %s: packet %q is not valid in %s", stateName, dirName, name, state)
				}
				ranges, err := parseOpcodeRanges(entries)
				if err != nil {
					return fmt.Errorf("%s %s %s: %w", stateName, dirName, name, err)
				}
				parsed[rt][name] = ranges
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for rt, packets := range parsed {
		if r.opcodes[rt] == nil {
			r.opcodes[rt] = make(map[string][]opcodeRange)
		}
		for name, ranges := range packets {
			r.opcodes[rt][name] = ranges
		}
	}
	return nil
}

func parseOpcodeRanges(entries []opcodeEntry) ([]opcodeRange, error) {
	out := make([]opcodeRange, 0, len(entries))
	for _, e := range entries {
		v, err := protocol.ParseVersion(e.Since)
		if err != nil {
			return nil, err
		}
		if e.ID < -1 {
			return nil, fmt.Errorf("invalid opcode %d", e.ID)
		}
		if n := len(out); n > 0 && out[n-1].since >= v {
			return nil, fmt.Errorf("versions out of order at %s", e.Since)
		}
		out = append(out, opcodeRange{since: v, id: e.ID})
	}
	return out, nil
}

// Bind resolves every opcode for v into an immutable table.
func (r *Registry) Bind(v protocol.Version) (*Table, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownVersion, v)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := &Table{version: v, routes: make(map[route]*routeTable)}
	for rt, packets := range r.opcodes {
		table := &routeTable{
			byOpcode: make(map[int32]*Binding),
			byType:   make(map[reflect.Type]*Binding),
		}
		for name, ranges := range packets {
			id, ok := activeOpcode(ranges, v)
			if !ok {
				continue
			}
			typ, _ := r.Type(rt.dir, name)
			if other, dup := table.byOpcode[id]; dup {
				return nil, fmt.Errorf("%s %s at %s: opcode 0x%02X used by %s and %s",
					rt.state, rt.dir, v, id, other.Name, name)
			}
			b := &Binding{Type: typ, State: rt.state, Opcode: id, codec: typ.bind(v)}
			table.byOpcode[id] = b
			table.byType[typ.goType] = b
		}
		t.routes[rt] = table
	}
	return t, nil
}

func activeOpcode(ranges []opcodeRange, v protocol.Version) (int32, bool) {
	id := int32(-1)
	for _, r := range ranges {
		if r.since > v {
			break
		}
		id = r.id
	}
	return id, id >= 0
}
