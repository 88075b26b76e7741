package packet

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/google/uuid"
)

// field is a reader/writer pair for one wire type.
type field[V any] struct {
	read  func(b *protocol.Buffer) (V, error)
	write func(w *protocol.Writer, v V) error
}

func plain[V any](read func(*protocol.Buffer) (V, error), write func(*protocol.Writer, V)) field[V] {
	return field[V]{
		read: read,
		write: func(w *protocol.Writer, v V) error {
			write(w, v)
			return nil
		},
	}
}

var (
	boolField     = plain((*protocol.Buffer).ReadBool, (*protocol.Writer).WriteBool)
	int8Field     = plain((*protocol.Buffer).ReadInt8, (*protocol.Writer).WriteInt8)
	uint8Field    = plain((*protocol.Buffer).ReadUint8, (*protocol.Writer).WriteUint8)
	int16Field    = plain((*protocol.Buffer).ReadInt16, (*protocol.Writer).WriteInt16)
	uint16Field   = plain((*protocol.Buffer).ReadUint16, (*protocol.Writer).WriteUint16)
	int32Field    = plain((*protocol.Buffer).ReadInt32, (*protocol.Writer).WriteInt32)
	int64Field    = plain((*protocol.Buffer).ReadInt64, (*protocol.Writer).WriteInt64)
	float32Field  = plain((*protocol.Buffer).ReadFloat32, (*protocol.Writer).WriteFloat32)
	float64Field  = plain((*protocol.Buffer).ReadFloat64, (*protocol.Writer).WriteFloat64)
	varIntField   = plain((*protocol.Buffer).ReadVarInt, (*protocol.Writer).WriteVarInt)
	varLongField  = plain((*protocol.Buffer).ReadVarLong, (*protocol.Writer).WriteVarLong)
	stringField   = field[string]{(*protocol.Buffer).ReadString, (*protocol.Writer).WriteBoundedString}
	uuidField     = plain((*protocol.Buffer).ReadUUID, (*protocol.Writer).WriteUUID)
	positionField = plain((*protocol.Buffer).ReadPosition, (*protocol.Writer).WritePosition)
	angleField    = plain((*protocol.Buffer).ReadAngle, (*protocol.Writer).WriteAngle)
	entityIDField = plain((*protocol.Buffer).ReadEntityID, (*protocol.Writer).WriteEntityID)
	fixed32Field  = plain((*protocol.Buffer).ReadFixedPoint32, (*protocol.Writer).WriteFixedPoint32)
	varBytesField = plain((*protocol.Buffer).ReadVarBytes, (*protocol.Writer).WriteVarBytes)
	bitSetField   = plain((*protocol.Buffer).ReadBitSet, (*protocol.Writer).WriteBitSet)

	prefixedBytesField = field[[]byte]{(*protocol.Buffer).ReadPrefixedBytes, (*protocol.Writer).WritePrefixedBytes}
	nbtField           = field[*protocol.Tag]{(*protocol.Buffer).ReadNBT, (*protocol.Writer).WriteNBT}

	restField = plain(
		func(b *protocol.Buffer) ([]byte, error) { return b.ReadRest(), nil },
		(*protocol.Writer).WriteBytes,
	)

	// int32 on the wire, int64 in the struct
	int32LongField  = widen(int32Field)
	varIntLongField = widen(varIntField)

	uuidStringField = plain(
		(*protocol.Buffer).ReadUUIDString,
		func(w *protocol.Writer, id uuid.UUID) { w.WriteString(id.String()) },
	)
)

func stringMaxField(maxLen int) field[string] {
	return field[string]{
		read:  func(b *protocol.Buffer) (string, error) { return b.ReadStringMax(maxLen) },
		write: func(w *protocol.Writer, s string) error { return w.WriteStringMax(s, maxLen) },
	}
}

func widen(f field[int32]) field[int64] {
	return field[int64]{
		read: func(b *protocol.Buffer) (int64, error) {
			v, err := f.read(b)
			return int64(v), err
		},
		write: func(w *protocol.Writer, v int64) error {
			return f.write(w, int32(v))
		},
	}
}

// listField reads a VarInt-counted array. minSize is the smallest encoding of
// one element and bounds the count before anything is allocated.
func listField[V any](elem field[V], minSize int) field[[]V] {
	return field[[]V]{
		read: func(b *protocol.Buffer) ([]V, error) {
			n, err := b.ReadArrayLen(minSize)
			if err != nil {
				return nil, err
			}
			out := make([]V, n)
			for i := range out {
				if out[i], err = elem.read(b); err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
			}
			return out, nil
		},
		write: func(w *protocol.Writer, vs []V) error {
			w.WriteVarInt(int32(len(vs)))
			for _, v := range vs {
				if err := elem.write(w, v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// optionalField reads a presence flag followed by the value when set.
func optionalField[V any](elem field[V]) field[*V] {
	return field[*V]{
		read: func(b *protocol.Buffer) (*V, error) {
			present, err := b.ReadBool()
			if err != nil || !present {
				return nil, err
			}
			v, err := elem.read(b)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
		write: func(w *protocol.Writer, v *V) error {
			w.WriteBool(v != nil)
			if v == nil {
				return nil
			}
			return elem.write(w, *v)
		},
	}
}

// scalar binds a field to a struct member.
func scalar[T, V any](name string, r protocol.Range, f field[V], ref func(p *T) *V) Step[T] {
	return Step[T]{
		Name:  name,
		Range: r,
		Decode: func(b *protocol.Buffer, p *T) error {
			v, err := f.read(b)
			if err != nil {
				return err
			}
			*ref(p) = v
			return nil
		},
		Encode: func(w *protocol.Writer, p *T) error {
			return f.write(w, *ref(p))
		},
	}
}

// Chat is a text component: JSON text before 23w40a, an NBT tag after.
type Chat struct {
	JSON string
	Tag  *protocol.Tag
}

// maxChatLength is the character limit the game applies to JSON components.
const maxChatLength = 262144

func (c Chat) String() string {
	if c.Tag == nil {
		return c.JSON
	}
	if s, ok := c.Tag.Str(); ok {
		return s
	}
	if text, ok := c.Tag.Child("text"); ok {
		if s, ok := text.Str(); ok {
			return s
		}
	}
	return c.Tag.String()
}

var chatField = field[Chat]{
	read: func(b *protocol.Buffer) (Chat, error) {
		if b.Version() < protocol.V23W40A {
			s, err := b.ReadStringMax(maxChatLength)
			return Chat{JSON: s}, err
		}
		tag, err := b.ReadNBT()
		return Chat{Tag: tag}, err
	},
	write: func(w *protocol.Writer, c Chat) error {
		if w.Version() < protocol.V23W40A {
			w.WriteString(c.JSON)
			return nil
		}
		if c.Tag == nil {
			return w.WriteNBT(&protocol.Tag{Type: protocol.TagString, Value: c.JSON})
		}
		return w.WriteNBT(c.Tag)
	},
}

// jsonChatField is for the few places that kept JSON text after 23w40a.
var jsonChatField = field[Chat]{
	read: func(b *protocol.Buffer) (Chat, error) {
		s, err := b.ReadStringMax(maxChatLength)
		return Chat{JSON: s}, err
	},
	write: func(w *protocol.Writer, c Chat) error {
		w.WriteString(c.JSON)
		return nil
	},
}
