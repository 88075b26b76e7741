package client

import (
	"errors"
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
)

var (
	ErrNotConnected = errors.New("client is not connected")
	ErrStatusFailed = errors.New("status ping failed")
)

// DisconnectError is returned by Run when the server closed the session with
// a reason.
type DisconnectError struct {
	State  protocol.State
	Reason string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnected during %s: %s", e.State, e.Reason)
}
