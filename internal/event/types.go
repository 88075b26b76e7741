package event

import "github.com/Versifine/mcwire/internal/protocol"

// Lifecycle events published by the client next to packet names.
const (
	EventStateChange = "state.change"
	EventDisconnect  = "connection.disconnect"
	EventChunkLoaded = "world.chunk_loaded"
)

type StateChangeEvent struct {
	From protocol.State
	To   protocol.State
}

type DisconnectEvent struct {
	Reason string
	Err    error
}

type ChunkLoadedEvent struct {
	X, Z int32
}
