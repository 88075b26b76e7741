package packet

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/google/uuid"
)

// Relative flags of PlayerPosition. A set bit means the field is an offset
// from the current value.
const (
	RelativeX     = 0x01
	RelativeY     = 0x02
	RelativeZ     = 0x04
	RelativeYaw   = 0x08
	RelativePitch = 0x10
)

// PlayerPosition is the server moving the player. Every version after 1.8
// expects a TeleportConfirm with TeleportID.
type PlayerPosition struct {
	TeleportID int32
	Pos        Vec3
	Velocity   Vec3
	Yaw        float32
	Pitch      float32
	Flags      int32
	// OnGround is only sent to 1.7 clients.
	OnGround bool
	Dismount bool
}

// Apply resolves relative fields against the current position and rotation.
func (p *PlayerPosition) Apply(pos Vec3, yaw, pitch float32) (Vec3, float32, float32) {
	out := p.Pos
	if p.Flags&RelativeX != 0 {
		out.X += pos.X
	}
	if p.Flags&RelativeY != 0 {
		out.Y += pos.Y
	}
	if p.Flags&RelativeZ != 0 {
		out.Z += pos.Z
	}
	outYaw, outPitch := p.Yaw, p.Pitch
	if p.Flags&RelativeYaw != 0 {
		outYaw += yaw
	}
	if p.Flags&RelativePitch != 0 {
		outPitch += pitch
	}
	return out, outYaw, outPitch
}

var playerPositionLayout = Layout[PlayerPosition]{
	scalar("teleport_id", protocol.Since(protocol.V1_21_2), varIntField, func(p *PlayerPosition) *int32 { return &p.TeleportID }),
	scalar("position", protocol.AllVersions, doubleVecField, func(p *PlayerPosition) *Vec3 { return &p.Pos }),
	scalar("velocity", protocol.Since(protocol.V1_21_2), doubleVecField, func(p *PlayerPosition) *Vec3 { return &p.Velocity }),
	scalar("yaw", protocol.AllVersions, float32Field, func(p *PlayerPosition) *float32 { return &p.Yaw }),
	scalar("pitch", protocol.AllVersions, float32Field, func(p *PlayerPosition) *float32 { return &p.Pitch }),
	scalar("on_ground", protocol.Until(protocol.V1_8), boolField, func(p *PlayerPosition) *bool { return &p.OnGround }),
	scalar("flags", protocol.Between(protocol.V1_8, protocol.V1_21_2), byteEnumField, func(p *PlayerPosition) *int32 { return &p.Flags }),
	scalar("flags", protocol.Since(protocol.V1_21_2), int32Field, func(p *PlayerPosition) *int32 { return &p.Flags }),
	scalar("teleport_id", protocol.Between(protocol.V1_9, protocol.V1_21_2), varIntField, func(p *PlayerPosition) *int32 { return &p.TeleportID }),
	scalar("dismount", protocol.Between(protocol.V1_17, protocol.V1_19_4), boolField, func(p *PlayerPosition) *bool { return &p.Dismount }),
}

type TeleportConfirm struct {
	TeleportID int32
}

var teleportConfirmLayout = Layout[TeleportConfirm]{
	scalar("teleport_id", protocol.AllVersions, varIntField, func(p *TeleportConfirm) *int32 { return &p.TeleportID }),
}

// PlayerMove is the serverbound position and rotation update.
type PlayerMove struct {
	Pos   Vec3
	Yaw   float32
	Pitch float32
	// Stance is the eye height sent by 1.7 clients. Zero means Pos.Y+1.62.
	Stance              float64
	OnGround            bool
	HorizontalCollision bool
}

const (
	playerEyeHeight         = 1.62
	moveFlagOnGround        = 0x01
	moveFlagHorizontalBlock = 0x02
)

var playerMoveLayout = Layout[PlayerMove]{
	{
		Name:  "position",
		Range: protocol.Until(protocol.V1_8),
		Decode: func(b *protocol.Buffer, p *PlayerMove) error {
			var err error
			if p.Pos.X, err = b.ReadFloat64(); err != nil {
				return err
			}
			if p.Pos.Y, err = b.ReadFloat64(); err != nil {
				return err
			}
			if p.Stance, err = b.ReadFloat64(); err != nil {
				return err
			}
			p.Pos.Z, err = b.ReadFloat64()
			return err
		},
		Encode: func(w *protocol.Writer, p *PlayerMove) error {
			stance := p.Stance
			if stance == 0 {
				stance = p.Pos.Y + playerEyeHeight
			}
			w.WriteFloat64(p.Pos.X)
			w.WriteFloat64(p.Pos.Y)
			w.WriteFloat64(stance)
			w.WriteFloat64(p.Pos.Z)
			return nil
		},
	},
	scalar("position", protocol.Since(protocol.V1_8), doubleVecField, func(p *PlayerMove) *Vec3 { return &p.Pos }),
	scalar("yaw", protocol.AllVersions, float32Field, func(p *PlayerMove) *float32 { return &p.Yaw }),
	scalar("pitch", protocol.AllVersions, float32Field, func(p *PlayerMove) *float32 { return &p.Pitch }),
	scalar("on_ground", protocol.Until(protocol.V1_21_2), boolField, func(p *PlayerMove) *bool { return &p.OnGround }),
	{
		Name:  "flags",
		Range: protocol.Since(protocol.V1_21_2),
		Decode: func(b *protocol.Buffer, p *PlayerMove) error {
			v, err := b.ReadUint8()
			p.OnGround = v&moveFlagOnGround != 0
			p.HorizontalCollision = v&moveFlagHorizontalBlock != 0
			return err
		},
		Encode: func(w *protocol.Writer, p *PlayerMove) error {
			var v uint8
			if p.OnGround {
				v |= moveFlagOnGround
			}
			if p.HorizontalCollision {
				v |= moveFlagHorizontalBlock
			}
			w.WriteUint8(v)
			return nil
		},
	},
}

// LastSeenMessage acknowledges a signed chat message (1.19.1 and 1.19.2).
type LastSeenMessage struct {
	Sender    uuid.UUID
	Signature []byte
}

// ChatMessage is a chat line sent by the player. The signing fields exist
// from 1.19; clients that do not sign leave them empty.
type ChatMessage struct {
	Message       string
	Timestamp     int64
	Salt          int64
	Signature     []byte
	SignedPreview bool
	LastSeen      []LastSeenMessage
	LastReceived  *LastSeenMessage
	MessageCount  int32
	Acknowledged  protocol.BitSet
}

const (
	maxChatMessageLength = 256
	messageSignatureSize = 256
	acknowledgedBits     = 20
)

var lastSeenField = field[LastSeenMessage]{
	read: func(b *protocol.Buffer) (LastSeenMessage, error) {
		var m LastSeenMessage
		var err error
		if m.Sender, err = b.ReadUUID(); err != nil {
			return m, err
		}
		m.Signature, err = b.ReadVarBytes()
		return m, err
	},
	write: func(w *protocol.Writer, m LastSeenMessage) error {
		w.WriteUUID(m.Sender)
		w.WriteVarBytes(m.Signature)
		return nil
	},
}

// signatureField is the optional fixed-size signature used from 1.19.3.
var signatureField = field[[]byte]{
	read: func(b *protocol.Buffer) ([]byte, error) {
		present, err := b.ReadBool()
		if err != nil || !present {
			return nil, err
		}
		return b.ReadBytes(messageSignatureSize)
	},
	write: func(w *protocol.Writer, sig []byte) error {
		if len(sig) == 0 {
			w.WriteBool(false)
			return nil
		}
		if len(sig) != messageSignatureSize {
			return fmt.Errorf("message signature is %d bytes, want %d", len(sig), messageSignatureSize)
		}
		w.WriteBool(true)
		w.WriteBytes(sig)
		return nil
	},
}

var acknowledgedField = field[protocol.BitSet]{
	read: func(b *protocol.Buffer) (protocol.BitSet, error) { return b.ReadFixedBitSet(acknowledgedBits) },
	write: func(w *protocol.Writer, s protocol.BitSet) error {
		w.WriteFixedBitSet(s, acknowledgedBits)
		return nil
	},
}

var chatMessageLayout = Layout[ChatMessage]{
	scalar("message", protocol.AllVersions, stringMaxField(maxChatMessageLength), func(p *ChatMessage) *string { return &p.Message }),
	scalar("timestamp", protocol.Since(protocol.V1_19), int64Field, func(p *ChatMessage) *int64 { return &p.Timestamp }),
	scalar("salt", protocol.Since(protocol.V1_19), int64Field, func(p *ChatMessage) *int64 { return &p.Salt }),
	scalar("signature", protocol.Between(protocol.V1_19, protocol.V1_19_3), varBytesField, func(p *ChatMessage) *[]byte { return &p.Signature }),
	scalar("signed_preview", protocol.Between(protocol.V1_19, protocol.V1_19_3), boolField, func(p *ChatMessage) *bool { return &p.SignedPreview }),
	scalar("last_seen", protocol.Between(protocol.V1_19_1, protocol.V1_19_3), listField(lastSeenField, 17), func(p *ChatMessage) *[]LastSeenMessage { return &p.LastSeen }),
	scalar("last_received", protocol.Between(protocol.V1_19_1, protocol.V1_19_3), optionalField(lastSeenField), func(p *ChatMessage) **LastSeenMessage { return &p.LastReceived }),
	scalar("signature", protocol.Since(protocol.V1_19_3), signatureField, func(p *ChatMessage) *[]byte { return &p.Signature }),
	scalar("message_count", protocol.Since(protocol.V1_19_3), varIntField, func(p *ChatMessage) *int32 { return &p.MessageCount }),
	scalar("acknowledged", protocol.Since(protocol.V1_19_3), acknowledgedField, func(p *ChatMessage) *protocol.BitSet { return &p.Acknowledged }),
}

// StartConfiguration moves a 1.20.2+ connection from play back to
// configuration. The client answers with ConfigurationAcknowledged.
type StartConfiguration struct{}

type ConfigurationAcknowledged struct{}

var (
	startConfigurationLayout        = Layout[StartConfiguration]{}
	configurationAcknowledgedLayout = Layout[ConfigurationAcknowledged]{}
)
