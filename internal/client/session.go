package client

import (
	"context"
	"log/slog"

	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/world"
)

const dimensionTypeRegistry = "minecraft:dimension_type"

// registries keeps what configuration sent that later play packets refer to.
type registries struct {
	// codec is the join game or registry_data compound before 1.20.5.
	codec *protocol.Tag
	// dimensionTypes are the dimension_type entries in wire order, 1.20.5+.
	dimensionTypes []packet.RegistryEntry
}

// handle runs the protocol side of a decoded packet on the reader goroutine,
// before it is dispatched. Anything that changes state, compression or
// encryption has to happen here, in wire order.
func (c *Client) handle(ctx context.Context, p any) error {
	if ok, err := c.applyChunkPacket(ctx, p); ok {
		return err
	}
	state := c.state.Get()
	switch p := p.(type) {
	case *packet.SetCompression:
		conn, err := c.connection()
		if err != nil {
			return err
		}
		conn.SetCompression(int(p.Threshold))
		c.state.SetThreshold(int(p.Threshold))
		slog.Debug("Compression enabled", "threshold", p.Threshold)
	case *packet.EncryptionRequest:
		return c.handleEncryption(p)
	case *packet.LoginSuccess:
		return c.handleLoginSuccess(ctx, p)
	case *packet.LoginPluginRequest:
		return c.Send(&packet.LoginPluginResponse{MessageID: p.MessageID})
	case *packet.LoginDisconnect:
		return &DisconnectError{State: state, Reason: p.Reason.String()}
	case *packet.Disconnect:
		return &DisconnectError{State: state, Reason: p.Reason.String()}

	case *packet.KeepAlive:
		return c.Send(&packet.KeepAlive{ID: p.ID})
	case *packet.Ping:
		return c.Send(&packet.Pong{ID: p.ID})
	case *packet.KnownPacks:
		// no local data packs, so the server sends registries in full
		return c.Send(&packet.KnownPacks{})
	case *packet.RegistryData:
		c.rememberRegistry(p)
	case *packet.FinishConfiguration:
		if err := c.Send(&packet.FinishConfiguration{}); err != nil {
			return err
		}
		return c.setState(ctx, protocol.Play)
	case *packet.StartConfiguration:
		if err := c.Send(&packet.ConfigurationAcknowledged{}); err != nil {
			return err
		}
		return c.setState(ctx, protocol.Configuration)

	case *packet.JoinGame:
		return c.handleJoin(p)
	case *packet.Respawn:
		c.changeDimension(&p.Spawn)
	case *packet.PlayerPosition:
		return c.handlePosition(p)
	case *packet.ChunkBatchFinished:
		return c.Send(&packet.ChunkBatchReceived{ChunksPerTick: c.opts.ChunksPerTick})
	}
	return nil
}

func (c *Client) rememberRegistry(p *packet.RegistryData) {
	if p.Codec != nil {
		c.registers.codec = p.Codec
		return
	}
	if p.RegistryID == dimensionTypeRegistry {
		c.registers.dimensionTypes = p.Entries
	}
}

func (c *Client) handleJoin(p *packet.JoinGame) error {
	if p.DimensionCodec != nil {
		c.registers.codec = p.DimensionCodec
	}
	c.entityID = p.EntityID
	dim := c.changeDimension(&p.Spawn)
	c.world.Join(p.EntityID, dim.Name)
	slog.Info("Joined game", "entity_id", p.EntityID, "dimension", dim.Name,
		"min_y", dim.MinY, "height", dim.Height)

	if c.opts.Version < protocol.V1_20_2 {
		return c.sendSettings()
	}
	return nil
}

// changeDimension points the chunk store at the dimension of a join or
// respawn. Loaded columns are dropped when the bounds or name change.
func (c *Client) changeDimension(spawn *packet.SpawnInfo) world.Dimension {
	dim := c.resolveDimension(spawn)
	if cur := c.store.Dimension(); cur != dim {
		c.store.SetDimension(dim)
	}
	return dim
}

func (c *Client) resolveDimension(spawn *packet.SpawnInfo) world.Dimension {
	v := c.opts.Version
	switch {
	case v < protocol.V1_16:
		return world.LegacyDimension(spawn.DimensionID, v)
	case v < protocol.V1_16_2:
		// the type name is the world's own identifier here
		if d, ok := world.VanillaDimension(spawn.DimensionType, v); ok {
			return d
		}
		return world.DimensionFromTag(spawn.WorldName, c.codecDimension(spawn.DimensionType), v)
	case v < protocol.V1_19:
		return world.DimensionFromTag(spawn.WorldName, spawn.DimensionTag, v)
	case v < protocol.V1_20_5:
		return world.DimensionFromTag(spawn.DimensionType, c.codecDimension(spawn.DimensionType), v)
	}

	idx := int(spawn.DimensionIndex)
	types := c.registers.dimensionTypes
	if idx < 0 || idx >= len(types) {
		slog.Warn("Dimension index out of range", "index", idx, "known", len(types))
		return world.DimensionFromTag(spawn.WorldName, nil, v)
	}
	entry := types[idx]
	return world.DimensionFromTag(entry.ID, entry.Data, v)
}

// codecDimension finds the element of name in the dimension_type registry of
// the remembered codec.
func (c *Client) codecDimension(name string) *protocol.Tag {
	codec := c.registers.codec
	if codec == nil {
		return nil
	}
	reg, ok := codec.Child(dimensionTypeRegistry)
	if !ok {
		return nil
	}
	value, ok := reg.Child("value")
	if !ok {
		return nil
	}
	list, ok := value.Value.(*protocol.ListValue)
	if !ok {
		return nil
	}
	for _, item := range list.Items {
		n, ok := item.Child("name")
		if !ok {
			continue
		}
		if s, _ := n.Str(); s == name {
			el, _ := item.Child("element")
			return el
		}
	}
	return nil
}

func (c *Client) handlePosition(p *packet.PlayerPosition) error {
	snap := c.world.GetState()
	cur := packet.Vec3{X: snap.Position.X, Y: snap.Position.Y, Z: snap.Position.Z}
	pos, yaw, pitch := p.Apply(cur, snap.Position.Yaw, snap.Position.Pitch)
	c.world.UpdatePosition(world.Position{X: pos.X, Y: pos.Y, Z: pos.Z, Yaw: yaw, Pitch: pitch})

	if c.opts.Version >= protocol.V1_9 {
		if err := c.Send(&packet.TeleportConfirm{TeleportID: p.TeleportID}); err != nil {
			return err
		}
	}
	return c.Send(&packet.PlayerMove{Pos: pos, Yaw: yaw, Pitch: pitch, OnGround: true})
}
