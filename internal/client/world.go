package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Versifine/mcwire/internal/event"
	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/world"
)

// subscribeWorld keeps the world state in step with the entity and time
// packets, which arrive on the main queue.
func (c *Client) subscribeWorld() {
	c.Subscribe("time_update", func(e event.Packet) {
		p := e.Value.(*packet.TimeUpdate)
		c.world.UpdateGameTime(world.GameTime{WorldTime: p.TimeOfDay, Age: p.WorldAge})
	})
	c.Subscribe("spawn_object", c.onSpawn)
	c.Subscribe("destroy_entities", func(e event.Packet) {
		c.world.RemoveEntities(e.Value.(*packet.DestroyEntities).EntityIDs)
	})
	c.Subscribe("entity_relative_move", func(e event.Packet) {
		p := e.Value.(*packet.EntityRelativeMove)
		c.world.UpdateEntityPositionRelative(p.EntityID, p.Delta.X, p.Delta.Y, p.Delta.Z)
	})
	c.Subscribe("entity_teleport", func(e event.Packet) {
		p := e.Value.(*packet.EntityTeleport)
		c.world.UpdateEntityPosition(p.EntityID, p.Pos.X, p.Pos.Y, p.Pos.Z)
	})
	c.Subscribe("entity_metadata", func(e event.Packet) {
		p := e.Value.(*packet.EntityMetadata)
		values := make(map[uint8]any, len(p.Entries))
		for _, entry := range p.Entries {
			values[entry.Index] = entry.Value
		}
		c.world.UpdateEntityMetadata(p.EntityID, values)
	})
}

// applyChunkPacket updates the chunk store on the reader goroutine, in wire
// order with join and respawn, so every column is decoded against the
// dimension it was sent for. It reports whether p was a chunk store packet.
// A column that fails to decode ends the session.
func (c *Client) applyChunkPacket(ctx context.Context, p any) (bool, error) {
	switch p := p.(type) {
	case *packet.ChunkData:
		if p.Unload() {
			c.store.UnloadColumn(p.Pos())
			return true, nil
		}
		col, err := p.Column(c.store.Dimension())
		if err != nil {
			slog.Error("Chunk decode failed", "x", p.X, "z", p.Z, "version", c.opts.Version, "error", err)
			return true, fmt.Errorf("chunk_data: %w", err)
		}
		c.storeColumn(ctx, col)
	case *packet.ChunkBulk:
		cols, err := p.Decode(c.store.Dimension())
		if err != nil {
			slog.Error("Chunk bulk decode failed", "version", c.opts.Version, "error", err)
			return true, fmt.Errorf("chunk_bulk: %w", err)
		}
		for _, col := range cols {
			c.storeColumn(ctx, col)
		}
	case *packet.LightUpdate:
		c.store.ApplyLight(world.ChunkPos{X: p.X, Z: p.Z}, p.Light)
	case *packet.UnloadChunk:
		c.store.UnloadColumn(world.ChunkPos{X: p.X, Z: p.Z})
	case *packet.BlockChange:
		c.setBlock(p.Record)
	case *packet.MultiBlockChange:
		for _, r := range p.Records {
			c.setBlock(r)
		}
	default:
		return false, nil
	}
	return true, nil
}

func (c *Client) storeColumn(ctx context.Context, col *world.Column) {
	// a partial update for a column the server never sent is its mistake, not
	// malformed data
	if err := c.store.StoreColumn(col); err != nil {
		slog.Warn("Dropped chunk", "x", col.Pos.X, "z", col.Pos.Z, "error", err)
		return
	}
	c.publish(ctx, event.EventChunkLoaded, event.ChunkLoadedEvent{X: col.Pos.X, Z: col.Pos.Z})
}

func (c *Client) setBlock(r packet.BlockRecord) {
	// unloaded columns are expected; the server sends them later in full
	c.store.SetBlockState(int(r.Pos.X), int(r.Pos.Y), int(r.Pos.Z), r.State)
}

func (c *Client) onSpawn(e event.Packet) {
	p := e.Value.(*packet.SpawnObject)
	ent := world.Entity{
		EntityID: p.EntityID,
		UUID:     p.UUID,
		Type:     p.Type,
		X:        p.Pos.X,
		Y:        p.Pos.Y,
		Z:        p.Pos.Z,
		Yaw:      p.Yaw,
		Pitch:    p.Pitch,
	}
	if t, err := c.ctx.Resolver.ResolveEntityType(p.Type); err == nil {
		ent.TypeName = t.Name
	}
	c.world.AddEntity(ent)
}
