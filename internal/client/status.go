package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/transport"
)

// Ping performs a server list ping: handshake with the status intent, one
// status request and one ping round trip.
func (c *Client) Ping(ctx context.Context) (*packet.ServerStatus, time.Duration, error) {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return nil, 0, err
	}
	return c.PingConn(ctx, nc)
}

// PingConn runs the status exchange over nc and closes it.
func (c *Client) PingConn(ctx context.Context, nc net.Conn) (*packet.ServerStatus, time.Duration, error) {
	conn := transport.NewConn(nc, transport.Options{})
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else if c.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.handshake(ctx, protocol.Status); err != nil {
		return nil, 0, err
	}
	if err := c.Send(&packet.StatusRequest{}); err != nil {
		return nil, 0, err
	}
	p, err := c.readPacket(conn)
	if err != nil {
		return nil, 0, err
	}
	resp, ok := p.(*packet.StatusResponse)
	if !ok {
		return nil, 0, fmt.Errorf("%w: expected status_response, got %T", ErrStatusFailed, p)
	}
	status, err := resp.Parse()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStatusFailed, err)
	}

	sent := time.Now()
	if err := c.Send(&packet.StatusPing{Payload: sent.UnixMilli()}); err != nil {
		return status, 0, err
	}
	p, err = c.readPacket(conn)
	if err != nil {
		return status, 0, err
	}
	latency := time.Since(sent)
	pong, ok := p.(*packet.StatusPong)
	if !ok || pong.Payload != sent.UnixMilli() {
		return status, 0, fmt.Errorf("%w: bad pong %v", ErrStatusFailed, p)
	}
	slog.Debug("Status ping", "address", c.opts.Addr, "latency", latency,
		"server_version", status.Version.Name, "online", status.Players.Online)
	return status, latency, nil
}

// readPacket reads and decodes one clientbound packet in the current state.
func (c *Client) readPacket(conn *transport.Conn) (any, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	p, _, err := c.table.Decode(c.state.Get(), protocol.Clientbound, frame.ID, protocol.NewPlayBuffer(frame.Payload, c.ctx))
	return p, err
}
