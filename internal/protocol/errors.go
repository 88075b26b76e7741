package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is the root of every malformed-primitive failure. A connection
// that hits one of these cannot resynchronize and must be closed.
var ErrMalformed = errors.New("malformed primitive")

var (
	ErrVarIntTooLong       = fmt.Errorf("%w: varint is too long", ErrMalformed)
	ErrVarLongTooLong      = fmt.Errorf("%w: varlong is too long", ErrMalformed)
	ErrStringTooLong       = fmt.Errorf("%w: string exceeds maximum length", ErrMalformed)
	ErrNegativeLength      = fmt.Errorf("%w: negative length", ErrMalformed)
	ErrLengthExceedsBuffer = fmt.Errorf("%w: declared length exceeds remaining bytes", ErrMalformed)
	ErrUnknownTagType      = fmt.Errorf("%w: unknown tag type", ErrMalformed)
	ErrTagTooDeep          = fmt.Errorf("%w: compound tag nested too deep", ErrMalformed)
	ErrInvalidEnum         = fmt.Errorf("%w: enum value out of range", ErrMalformed)
)

var (
	ErrIllegalTransition = errors.New("illegal connection state transition")
	ErrUnknownVersion    = errors.New("unknown protocol version")
)

// UnknownIDError reports a numeric id that the injected Resolver could not
// map to a registry entry.
type UnknownIDError struct {
	Registry string
	ID       int32
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown %s id %d", e.Registry, e.ID)
}

// shortRead converts a short buffer into the malformed taxonomy while keeping
// the amount that was missing.
func shortRead(want, have int) error {
	return fmt.Errorf("%w: need %d bytes, have %d", ErrLengthExceedsBuffer, want, have)
}
