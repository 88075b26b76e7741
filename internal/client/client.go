// Package client drives one connection: handshake, login, configuration and
// play. A single reader goroutine decodes frames in wire order and answers the
// packets that keep the session alive; everything decoded is then handed to
// the event dispatcher.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Versifine/mcwire/internal/event"
	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/transport"
	"github.com/Versifine/mcwire/internal/world"
)

// unknownLogEvery is how often a repeated unknown opcode is logged again.
const unknownLogEvery = 100

type Options struct {
	Addr     string
	Username string
	Version  protocol.Version
	// Resolver maps registry ids during decode. Nil passes ids through.
	Resolver        protocol.Resolver
	MaxStringLength int
	// PinnedKey is the hex SHA-256 fingerprint the server key must match.
	PinnedKey    string
	Locale       string
	ViewDistance int8
	Brand        string
	// ChunksPerTick is reported after every chunk batch (1.20.2+).
	ChunksPerTick  float32
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Dispatcher     event.Options
}

func (o Options) withDefaults() Options {
	if o.Resolver == nil {
		o.Resolver = protocol.PassthroughResolver{}
	}
	if o.Locale == "" {
		o.Locale = "en_us"
	}
	if o.ViewDistance <= 0 {
		o.ViewDistance = 8
	}
	if o.Brand == "" {
		o.Brand = "mcwire"
	}
	if o.ChunksPerTick <= 0 {
		o.ChunksPerTick = 9
	}
	return o
}

type unknownKey struct {
	state  protocol.State
	opcode int32
}

type Client struct {
	opts       Options
	table      *packet.Table
	ctx        *protocol.Context
	state      *protocol.ConnState
	dispatcher *event.Dispatcher
	store      *world.Store
	world      *world.WorldState
	uuid       uuid.UUID

	connMu sync.RWMutex
	conn   *transport.Conn

	// owned by the reader goroutine
	entityID  int32
	unknown   map[unknownKey]int
	registers registries
}

// New binds the packet table for opts.Version. It does not connect.
func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if !opts.Version.Negotiable() {
		return nil, fmt.Errorf("%w: %s cannot be announced in a handshake", protocol.ErrUnknownVersion, opts.Version)
	}
	reg, err := packet.Default()
	if err != nil {
		return nil, err
	}
	table, err := reg.Bind(opts.Version)
	if err != nil {
		return nil, err
	}
	dim, _ := world.VanillaDimension(world.DimensionOverworld, opts.Version)
	c := &Client{
		opts:  opts,
		table: table,
		ctx: &protocol.Context{
			Version:         opts.Version,
			Resolver:        opts.Resolver,
			MaxStringLength: opts.MaxStringLength,
		},
		state:      protocol.NewConnState(opts.Version),
		dispatcher: event.NewDispatcher(opts.Dispatcher),
		store:      world.NewStore(dim),
		world:      &world.WorldState{},
		uuid:       protocol.OfflineUUID(opts.Username),
		unknown:    make(map[unknownKey]int),
	}
	c.subscribeWorld()
	return c, nil
}

// Subscribe registers a handler for a packet name or a lifecycle event.
// Handlers of thread-safe packets may run concurrently.
func (c *Client) Subscribe(name string, h event.HandlerFunc) {
	c.dispatcher.Subscribe(name, h)
}

func (c *Client) Store() *world.Store {
	return c.store
}

func (c *Client) World() *world.WorldState {
	return c.world
}

func (c *Client) State() protocol.State {
	return c.state.Get()
}

func (c *Client) UUID() uuid.UUID {
	return c.uuid
}

// Run dials opts.Addr and runs the session until it ends.
func (c *Client) Run(ctx context.Context) error {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return err
	}
	slog.Info("Connected to server", "address", c.opts.Addr, "version", c.opts.Version)
	return c.RunConn(ctx, conn)
}

// RunConn runs the session over an established connection and closes it on
// return. The dispatcher main queue is drained on a goroutine of its own.
func (c *Client) RunConn(ctx context.Context, nc net.Conn) error {
	conn := transport.NewConn(nc, transport.Options{})
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.dispatcher.RunMain(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer c.dispatcher.Close()
		// unblock the reader when the context ends
		stop := context.AfterFunc(gctx, func() { conn.Close() })
		defer stop()

		err := c.session(gctx)
		_ = c.setState(gctx, protocol.Disconnected)
		c.publish(gctx, event.EventDisconnect, disconnectEvent(err))
		if gctx.Err() != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})
	return g.Wait()
}

func disconnectEvent(err error) event.DisconnectEvent {
	var de *DisconnectError
	if errors.As(err, &de) {
		return event.DisconnectEvent{Reason: de.Reason, Err: err}
	}
	return event.DisconnectEvent{Err: err}
}

func (c *Client) session(ctx context.Context) error {
	if err := c.startLogin(ctx); err != nil {
		return err
	}
	return c.readLoop(ctx)
}

func (c *Client) connection() (*transport.Conn, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Send encodes p in the current state and writes it.
func (c *Client) Send(p any) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	state := c.state.Get()
	w := protocol.NewPlayWriter(c.ctx)
	opcode, err := c.table.Encode(state, protocol.Serverbound, p, w)
	if err != nil {
		return err
	}
	return conn.WriteFrame(opcode, w.Bytes())
}

func (c *Client) setState(ctx context.Context, next protocol.State) error {
	from := c.state.Get()
	if from == next {
		return nil
	}
	if err := c.state.Transition(next); err != nil {
		return err
	}
	slog.Debug("Connection state changed", "from", from, "to", next)
	c.publish(ctx, event.EventStateChange, event.StateChangeEvent{From: from, To: next})
	return nil
}

func (c *Client) publish(ctx context.Context, name string, v any) {
	err := c.dispatcher.Dispatch(ctx, event.Packet{Name: name, State: c.state.Get(), Value: v})
	if err != nil && !errors.Is(err, event.ErrClosed) && ctx.Err() == nil {
		slog.Warn("Failed to publish event", "event", name, "error", err)
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	for {
		if c.opts.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
				return err
			}
		}
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		state := c.state.Get()
		buf := protocol.NewPlayBuffer(frame.Payload, c.ctx)
		p, bind, err := c.table.Decode(state, protocol.Clientbound, frame.ID, buf)
		if err != nil {
			if errors.Is(err, packet.ErrUnknownOpcode) {
				c.skipUnknown(state, frame)
				continue
			}
			var de *packet.DecodeError
			if errors.As(err, &de) && de.Cosmetic() {
				slog.Warn("Dropped packet", "packet", de.Packet, "state", de.State,
					"opcode", fmt.Sprintf("0x%02X", de.Opcode), "version", de.Version, "error", de.Err)
				continue
			}
			if errors.As(err, &de) {
				slog.Error("Packet decode failed", "packet", de.Packet, "state", de.State,
					"opcode", fmt.Sprintf("0x%02X", de.Opcode), "version", de.Version, "offset", de.Offset, "error", de.Err)
			}
			return err
		}

		if err := c.handle(ctx, p); err != nil {
			return err
		}
		err = c.dispatcher.Dispatch(ctx, event.Packet{
			Name:        bind.Name,
			State:       state,
			Value:       p,
			ThreadSafe:  bind.ThreadSafe,
			LowPriority: bind.LowPriority,
		})
		if err != nil {
			return err
		}
	}
}

// skipUnknown drops a frame whose opcode has no binding. The transport has
// already consumed it by its declared length.
func (c *Client) skipUnknown(state protocol.State, frame *transport.Frame) {
	key := unknownKey{state: state, opcode: frame.ID}
	c.unknown[key]++
	if n := c.unknown[key]; n == 1 || n%unknownLogEvery == 0 {
		slog.Warn("Skipped unknown packet", "state", state,
			"opcode", fmt.Sprintf("0x%02X", frame.ID), "length", frame.Length, "seen", n)
	}
}
