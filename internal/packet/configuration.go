package packet

import (
	"github.com/Versifine/mcwire/internal/protocol"
)

// PluginMessage is a custom payload on a named channel, in either direction.
type PluginMessage struct {
	Channel string
	Data    []byte
}

const (
	legacyBrandChannel = "MC|Brand"
	brandChannel       = "minecraft:brand"
)

// Brand returns the server or client brand when this message carries one.
func (p *PluginMessage) Brand() (string, bool) {
	if p.Channel != brandChannel && p.Channel != legacyBrandChannel {
		return "", false
	}
	s, err := protocol.NewBuffer(p.Data).ReadStringMax(protocol.DefaultMaxStringLength)
	if err != nil {
		return "", false
	}
	return s, true
}

// NewBrandMessage builds the brand announcement for version v.
func NewBrandMessage(v protocol.Version, brand string) *PluginMessage {
	w := protocol.NewWriter()
	w.WriteString(brand)
	channel := brandChannel
	if v < protocol.FlatteningVersion {
		channel = legacyBrandChannel
	}
	return &PluginMessage{Channel: channel, Data: w.Bytes()}
}

type Disconnect struct {
	Reason Chat
}

type FinishConfiguration struct{}

// KeepAlive is echoed back with the same ID.
type KeepAlive struct {
	ID int64
}

// Ping and Pong are the configuration-state liveness pair.
type Ping struct {
	ID int32
}

type Pong struct {
	ID int32
}

// RegistryData carries server registries. Before 1.20.5 one packet holds the
// whole codec; after, one packet per registry.
type RegistryData struct {
	Codec      *protocol.Tag
	RegistryID string
	Entries    []RegistryEntry
}

type RegistryEntry struct {
	ID string
	// Data is nil when the client is expected to know the entry from a
	// known pack.
	Data *protocol.Tag
}

type KnownPack struct {
	Namespace string
	ID        string
	Version   string
}

type KnownPacks struct {
	Packs []KnownPack
}

// ClientInformation is the client settings packet, sent in configuration and
// in play.
type ClientInformation struct {
	Locale       string
	ViewDistance int8
	ChatMode     int32
	ChatColors   bool
	// Difficulty and ShowCape were only sent by 1.7 clients.
	Difficulty     uint8
	ShowCape       bool
	SkinParts      uint8
	MainHand       int32
	TextFiltering  bool
	AllowListing   bool
	ParticleStatus int32
}

var byteEnumField = field[int32]{
	read: func(b *protocol.Buffer) (int32, error) {
		v, err := b.ReadInt8()
		return int32(v), err
	},
	write: func(w *protocol.Writer, v int32) error {
		w.WriteInt8(int8(v))
		return nil
	},
}

// legacyPluginDataField is the short-prefixed payload used before 14w31a.
var legacyPluginDataField = field[[]byte]{
	read: func(b *protocol.Buffer) ([]byte, error) {
		n, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		return b.ReadBytes(int(n))
	},
	write: func(w *protocol.Writer, data []byte) error {
		w.WriteInt16(int16(len(data)))
		w.WriteBytes(data)
		return nil
	},
}

var registryEntryField = field[RegistryEntry]{
	read: func(b *protocol.Buffer) (RegistryEntry, error) {
		var e RegistryEntry
		var err error
		if e.ID, err = b.ReadString(); err != nil {
			return e, err
		}
		present, err := b.ReadBool()
		if err != nil || !present {
			return e, err
		}
		e.Data, err = b.ReadNBT()
		return e, err
	},
	write: func(w *protocol.Writer, e RegistryEntry) error {
		w.WriteString(e.ID)
		w.WriteBool(e.Data != nil)
		if e.Data == nil {
			return nil
		}
		return w.WriteNBT(e.Data)
	},
}

var knownPackField = field[KnownPack]{
	read: func(b *protocol.Buffer) (KnownPack, error) {
		var k KnownPack
		var err error
		if k.Namespace, err = b.ReadString(); err != nil {
			return k, err
		}
		if k.ID, err = b.ReadString(); err != nil {
			return k, err
		}
		k.Version, err = b.ReadString()
		return k, err
	},
	write: func(w *protocol.Writer, k KnownPack) error {
		w.WriteString(k.Namespace)
		w.WriteString(k.ID)
		w.WriteString(k.Version)
		return nil
	},
}

var (
	pluginMessageLayout = Layout[PluginMessage]{
		scalar("channel", protocol.AllVersions, stringField, func(p *PluginMessage) *string { return &p.Channel }),
		scalar("data", protocol.Until(protocol.V14W31A), legacyPluginDataField, func(p *PluginMessage) *[]byte { return &p.Data }),
		scalar("data", protocol.Since(protocol.V14W31A), restField, func(p *PluginMessage) *[]byte { return &p.Data }),
	}

	disconnectLayout = Layout[Disconnect]{
		scalar("reason", protocol.AllVersions, chatField, func(p *Disconnect) *Chat { return &p.Reason }),
	}

	finishConfigurationLayout = Layout[FinishConfiguration]{}

	keepAliveLayout = Layout[KeepAlive]{
		scalar("id", protocol.Until(protocol.V14W04A), int32LongField, func(p *KeepAlive) *int64 { return &p.ID }),
		scalar("id", protocol.Between(protocol.V14W04A, protocol.V1_12_2), varIntLongField, func(p *KeepAlive) *int64 { return &p.ID }),
		scalar("id", protocol.Since(protocol.V1_12_2), int64Field, func(p *KeepAlive) *int64 { return &p.ID }),
	}

	pingLayout = Layout[Ping]{
		scalar("id", protocol.AllVersions, int32Field, func(p *Ping) *int32 { return &p.ID }),
	}
	pongLayout = Layout[Pong]{
		scalar("id", protocol.AllVersions, int32Field, func(p *Pong) *int32 { return &p.ID }),
	}

	registryDataLayout = Layout[RegistryData]{
		scalar("codec", protocol.Until(protocol.V1_20_5), nbtField, func(p *RegistryData) **protocol.Tag { return &p.Codec }),
		scalar("registry_id", protocol.Since(protocol.V1_20_5), stringField, func(p *RegistryData) *string { return &p.RegistryID }),
		scalar("entries", protocol.Since(protocol.V1_20_5), listField(registryEntryField, 2), func(p *RegistryData) *[]RegistryEntry { return &p.Entries }),
	}

	knownPacksLayout = Layout[KnownPacks]{
		scalar("packs", protocol.AllVersions, listField(knownPackField, 3), func(p *KnownPacks) *[]KnownPack { return &p.Packs }),
	}

	clientInformationLayout = Layout[ClientInformation]{
		scalar("locale", protocol.AllVersions, stringMaxField(16), func(p *ClientInformation) *string { return &p.Locale }),
		scalar("view_distance", protocol.AllVersions, int8Field, func(p *ClientInformation) *int8 { return &p.ViewDistance }),
		scalar("chat_mode", protocol.Until(protocol.V1_9), byteEnumField, func(p *ClientInformation) *int32 { return &p.ChatMode }),
		scalar("chat_mode", protocol.Since(protocol.V1_9), varIntField, func(p *ClientInformation) *int32 { return &p.ChatMode }),
		scalar("chat_colors", protocol.AllVersions, boolField, func(p *ClientInformation) *bool { return &p.ChatColors }),
		scalar("difficulty", protocol.Until(protocol.V1_8), uint8Field, func(p *ClientInformation) *uint8 { return &p.Difficulty }),
		scalar("show_cape", protocol.Until(protocol.V1_8), boolField, func(p *ClientInformation) *bool { return &p.ShowCape }),
		scalar("skin_parts", protocol.Since(protocol.V1_8), uint8Field, func(p *ClientInformation) *uint8 { return &p.SkinParts }),
		scalar("main_hand", protocol.Since(protocol.V1_9), varIntField, func(p *ClientInformation) *int32 { return &p.MainHand }),
		scalar("text_filtering", protocol.Since(protocol.V1_17), boolField, func(p *ClientInformation) *bool { return &p.TextFiltering }),
		scalar("allow_listing", protocol.Since(protocol.V1_18), boolField, func(p *ClientInformation) *bool { return &p.AllowListing }),
		scalar("particle_status", protocol.Since(protocol.V1_21_2), varIntField, func(p *ClientInformation) *int32 { return &p.ParticleStatus }),
	}
)
