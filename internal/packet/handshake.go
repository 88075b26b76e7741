package packet

import (
	"encoding/json"
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
)

// Handshake opens every connection and names the state to switch to.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

var handshakeLayout = Layout[Handshake]{
	scalar("protocol_version", protocol.AllVersions, varIntField, func(p *Handshake) *int32 { return &p.ProtocolVersion }),
	scalar("server_address", protocol.AllVersions, stringMaxField(255), func(p *Handshake) *string { return &p.ServerAddress }),
	scalar("server_port", protocol.AllVersions, uint16Field, func(p *Handshake) *uint16 { return &p.ServerPort }),
	scalar("next_state", protocol.AllVersions, varIntField, func(p *Handshake) *int32 { return &p.NextState }),
}

type StatusRequest struct{}

// StatusResponse carries the server list JSON document.
type StatusResponse struct {
	JSON string
}

// ServerStatus is the part of the status document a client shows.
type ServerStatus struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description json.RawMessage `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
}

// Parse decodes the JSON document.
func (p *StatusResponse) Parse() (*ServerStatus, error) {
	var s ServerStatus
	if err := json.Unmarshal([]byte(p.JSON), &s); err != nil {
		return nil, fmt.Errorf("parse status json: %w", err)
	}
	return &s, nil
}

// StatusPing and StatusPong carry an opaque value the server echoes.
type StatusPing struct {
	Payload int64
}

type StatusPong struct {
	Payload int64
}

var (
	statusRequestLayout  = Layout[StatusRequest]{}
	statusResponseLayout = Layout[StatusResponse]{
		scalar("json", protocol.AllVersions, stringField, func(p *StatusResponse) *string { return &p.JSON }),
	}
	statusPingLayout = Layout[StatusPing]{
		scalar("payload", protocol.AllVersions, int64Field, func(p *StatusPing) *int64 { return &p.Payload }),
	}
	statusPongLayout = Layout[StatusPong]{
		scalar("payload", protocol.AllVersions, int64Field, func(p *StatusPong) *int64 { return &p.Payload }),
	}
)
