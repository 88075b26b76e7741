package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/Versifine/mcwire/internal/crypto"
	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
)

// splitAddr splits host:port for the handshake. A missing port means 25565.
func splitAddr(addr string) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 25565
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return host, 25565
	}
	return host, uint16(port)
}

func (c *Client) handshake(ctx context.Context, next protocol.State) error {
	host, port := splitAddr(c.opts.Addr)
	err := c.Send(&packet.Handshake{
		ProtocolVersion: c.opts.Version.Protocol(),
		ServerAddress:   host,
		ServerPort:      port,
		NextState:       next.HandshakeIntent(),
	})
	if err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	return c.setState(ctx, next)
}

func (c *Client) startLogin(ctx context.Context) error {
	if err := c.handshake(ctx, protocol.Login); err != nil {
		return err
	}
	start := &packet.LoginStart{Name: c.opts.Username}
	if c.opts.Version >= protocol.V1_19_1 {
		id := c.uuid
		start.UUID = &id
	}
	if err := c.Send(start); err != nil {
		return fmt.Errorf("send login start: %w", err)
	}
	slog.Info("Logging in", "username", c.opts.Username, "uuid", c.uuid)
	return nil
}

// handleEncryption answers an encryption request and switches the connection
// to AES/CFB8. The response is the last plain frame.
func (c *Client) handleEncryption(req *packet.EncryptionRequest) error {
	if err := crypto.CheckPinnedKey(req.PublicKey, c.opts.PinnedKey); err != nil {
		return err
	}
	pub, err := crypto.ParsePublicKey(req.PublicKey)
	if err != nil {
		return err
	}
	secret, err := crypto.NewSharedSecret()
	if err != nil {
		return err
	}
	encSecret, err := crypto.EncryptKey(pub, secret)
	if err != nil {
		return err
	}
	encToken, err := crypto.EncryptKey(pub, req.VerifyToken)
	if err != nil {
		return err
	}
	slog.Debug("Encryption requested",
		"fingerprint", crypto.KeyFingerprint(req.PublicKey),
		"server_hash", crypto.ServerHash(req.ServerID, secret, req.PublicKey),
		"authenticate", req.ShouldAuthenticate)

	if err := c.Send(&packet.EncryptionResponse{SharedSecret: encSecret, VerifyToken: encToken}); err != nil {
		return fmt.Errorf("send encryption response: %w", err)
	}
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return conn.EnableEncryption(secret)
}

func (c *Client) handleLoginSuccess(ctx context.Context, p *packet.LoginSuccess) error {
	if p.UUID != c.uuid {
		slog.Debug("Server assigned a different uuid", "offline", c.uuid, "assigned", p.UUID)
		c.uuid = p.UUID
	}
	slog.Info("Login succeeded", "username", p.Username, "uuid", p.UUID)

	if c.opts.Version < protocol.V1_20_2 {
		return c.setState(ctx, protocol.Play)
	}
	if err := c.Send(&packet.LoginAcknowledged{}); err != nil {
		return err
	}
	if err := c.setState(ctx, protocol.Configuration); err != nil {
		return err
	}
	return c.sendSettings()
}

// sendSettings announces client information and brand. Since 1.20.2 this
// happens at the start of configuration, before that right after join game.
func (c *Client) sendSettings() error {
	info := &packet.ClientInformation{
		Locale:       c.opts.Locale,
		ViewDistance: c.opts.ViewDistance,
		ChatColors:   true,
		Difficulty:   2,
		ShowCape:     true,
		SkinParts:    0x7F,
		MainHand:     1,
		AllowListing: true,
	}
	if err := c.Send(info); err != nil {
		return fmt.Errorf("send client information: %w", err)
	}
	if err := c.Send(packet.NewBrandMessage(c.opts.Version, c.opts.Brand)); err != nil {
		return fmt.Errorf("send brand: %w", err)
	}
	return nil
}
