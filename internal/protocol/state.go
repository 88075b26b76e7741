package protocol

import (
	"fmt"
	"sync"
)

type State int

const (
	Handshaking State = iota
	Status
	Login
	Configuration
	Play
	Disconnected
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Status:
		return "status"
	case Login:
		return "login"
	case Configuration:
		return "configuration"
	case Play:
		return "play"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HandshakeIntent is the next-state value carried by the handshake packet.
func (s State) HandshakeIntent() int32 {
	switch s {
	case Status:
		return 1
	case Login:
		return 2
	default:
		return 0
	}
}

type Direction int

const (
	Clientbound Direction = iota
	Serverbound
)

func (d Direction) String() string {
	if d == Serverbound {
		return "serverbound"
	}
	return "clientbound"
}

// CanTransition reports whether a connection negotiated at version v may move
// from s to next.
func (s State) CanTransition(next State, v Version) bool {
	if next == Disconnected {
		return s != Disconnected
	}
	switch s {
	case Handshaking:
		return next == Status || next == Login
	case Login:
		if v >= V1_20_2 {
			return next == Configuration
		}
		return next == Play
	case Configuration:
		return next == Play
	case Play:
		return next == Configuration && v >= V1_20_2
	default:
		return false
	}
}

// ConnState holds the mutable per-connection negotiation results.
type ConnState struct {
	mu        sync.Mutex
	state     State
	threshold int
	version   Version
}

func NewConnState(v Version) *ConnState {
	return &ConnState{
		threshold: -1,
		version:   v,
	}
}

// Transition moves to next or fails with ErrIllegalTransition.
func (cs *ConnState) Transition(next State) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.state.CanTransition(next, cs.version) {
		return fmt.Errorf("%w: %s -> %s at %s", ErrIllegalTransition, cs.state, next, cs.version)
	}
	cs.state = next
	return nil
}

func (cs *ConnState) Get() State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

func (cs *ConnState) Version() Version {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.version
}

func (cs *ConnState) SetThreshold(t int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.threshold = t
}

func (cs *ConnState) GetThreshold() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.threshold
}
