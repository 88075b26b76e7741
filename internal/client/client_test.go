package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Versifine/mcwire/internal/crypto"
	"github.com/Versifine/mcwire/internal/event"
	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/transport"
)

// fakeServer plays the server side of one connection from the test goroutine.
type fakeServer struct {
	t     *testing.T
	conn  *transport.Conn
	table *packet.Table
	ctx   *protocol.Context
	state protocol.State
}

func (s *fakeServer) send(p any) {
	s.t.Helper()
	w := protocol.NewPlayWriter(s.ctx)
	opcode, err := s.table.Encode(s.state, protocol.Clientbound, p, w)
	if err != nil {
		s.t.Fatalf("encode %T in %s: %v", p, s.state, err)
	}
	if err := s.conn.WriteFrame(opcode, w.Bytes()); err != nil {
		s.t.Fatalf("write %T: %v", p, err)
	}
}

func (s *fakeServer) expect(name string) any {
	s.t.Helper()
	frame, err := s.conn.ReadFrame()
	if err != nil {
		s.t.Fatalf("waiting for %s: %v", name, err)
	}
	p, bind, err := s.table.Decode(s.state, protocol.Serverbound, frame.ID, protocol.NewPlayBuffer(frame.Payload, s.ctx))
	if err != nil {
		s.t.Fatalf("waiting for %s: %v", name, err)
	}
	if bind.Name != name {
		s.t.Fatalf("got %s, want %s", bind.Name, name)
	}
	return p
}

type session struct {
	client *Client
	server *fakeServer
	done   chan error
	cancel context.CancelFunc
}

// startSession runs a client against a loopback listener. setup runs before
// the client dials, so subscriptions see every event.
func startSession(t *testing.T, v protocol.Version, mutate func(*Options), setup func(*Client)) *session {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	opts := Options{
		Addr:        ln.Addr().String(),
		Username:    "Steve",
		Version:     v,
		ReadTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if setup != nil {
		setup(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	nc, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = nc.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { nc.Close() })

	reg, err := packet.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	table, err := reg.Bind(v)
	if err != nil {
		t.Fatalf("bind %s: %v", v, err)
	}
	return &session{
		client: c,
		server: &fakeServer{
			t:     t,
			conn:  transport.NewConn(nc, transport.Options{}),
			table: table,
			ctx:   &protocol.Context{Version: v, Resolver: protocol.PassthroughResolver{}},
		},
		done:   done,
		cancel: cancel,
	}
}

func (s *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func loginHandshake(t *testing.T, s *fakeServer, v protocol.Version) {
	t.Helper()
	hs := s.expect("handshake").(*packet.Handshake)
	if hs.ProtocolVersion != v.Protocol() || hs.NextState != 2 {
		t.Fatalf("handshake = %+v", hs)
	}
	if hs.ServerAddress != "127.0.0.1" || hs.ServerPort == 0 {
		t.Errorf("handshake address = %s:%d", hs.ServerAddress, hs.ServerPort)
	}
	s.state = protocol.Login
	start := s.expect("login_start").(*packet.LoginStart)
	if start.Name != "Steve" {
		t.Errorf("login_start name = %q", start.Name)
	}
}

func TestLegacyPlaySession(t *testing.T) {
	v := protocol.V1_12_2
	var (
		mu     sync.Mutex
		states []protocol.State
	)
	sess := startSession(t, v, nil, func(c *Client) {
		c.Subscribe(event.EventStateChange, func(e event.Packet) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, e.Value.(event.StateChangeEvent).To)
		})
	})
	srv := sess.server

	loginHandshake(t, srv, v)
	srv.send(&packet.SetCompression{Threshold: 256})
	srv.conn.SetCompression(256)
	srv.send(&packet.LoginSuccess{UUID: protocol.OfflineUUID("Steve"), Username: "Steve"})
	srv.state = protocol.Play

	srv.send(&packet.JoinGame{EntityID: 7, MaxPlayers: 20, Spawn: packet.SpawnInfo{DimensionID: -1, LevelType: "default"}})
	info := srv.expect("client_information").(*packet.ClientInformation)
	if info.Locale != "en_us" || info.ViewDistance != 8 {
		t.Errorf("client_information = %+v", info)
	}
	brand := srv.expect("plugin_message").(*packet.PluginMessage)
	if b, ok := brand.Brand(); !ok || b != "mcwire" {
		t.Errorf("brand = %q, %v", b, ok)
	}
	if dim := sess.client.Store().Dimension(); dim.Name != "minecraft:the_nether" {
		t.Errorf("dimension = %s, want nether", dim.Name)
	}

	// an opcode the table does not know is skipped by length
	if _, ok := srv.table.Lookup(protocol.Play, protocol.Clientbound, 0x7F); ok {
		t.Fatal("0x7F unexpectedly bound")
	}
	if err := srv.conn.WriteFrame(0x7F, make([]byte, 37)); err != nil {
		t.Fatal(err)
	}
	srv.send(&packet.KeepAlive{ID: 77})
	if ka := srv.expect("keep_alive").(*packet.KeepAlive); ka.ID != 77 {
		t.Errorf("keep_alive echo = %d", ka.ID)
	}

	srv.send(&packet.PlayerPosition{TeleportID: 5, Pos: packet.Vec3{X: 1.5, Y: 64, Z: -2.5}})
	if tc := srv.expect("teleport_confirm").(*packet.TeleportConfirm); tc.TeleportID != 5 {
		t.Errorf("teleport_confirm = %d", tc.TeleportID)
	}
	move := srv.expect("player_move").(*packet.PlayerMove)
	if move.Pos != (packet.Vec3{X: 1.5, Y: 64, Z: -2.5}) {
		t.Errorf("player_move pos = %+v", move.Pos)
	}
	if pos := sess.client.World().GetState().Position; pos.Y != 64 {
		t.Errorf("world position = %+v", pos)
	}

	srv.send(&packet.ChunkData{X: 3, Z: -1, Full: true, Data: make([]byte, 256)})
	eventually(t, "chunk 3,-1", func() bool { return sess.client.Store().IsLoaded(3, -1) })

	srv.send(&packet.Disconnect{Reason: packet.Chat{JSON: `{"text":"bye"}`}})
	err := sess.wait(t)
	var de *DisconnectError
	if !errors.As(err, &de) {
		t.Fatalf("Run() = %v, want DisconnectError", err)
	}
	if de.State != protocol.Play || de.Reason != `{"text":"bye"}` {
		t.Errorf("DisconnectError = %+v", de)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []protocol.State{protocol.Login, protocol.Play, protocol.Disconnected}
	if len(states) != len(want) {
		t.Fatalf("state changes = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state change %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func intTag(v int32) *protocol.Tag {
	return &protocol.Tag{Type: protocol.TagInt, Value: v}
}

func TestConfigurationSession(t *testing.T) {
	v := protocol.V1_20_5
	sess := startSession(t, v, nil, nil)
	srv := sess.server

	loginHandshake(t, srv, v)

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	token := []byte{9, 8, 7, 6}
	srv.send(&packet.EncryptionRequest{PublicKey: der, VerifyToken: token, ShouldAuthenticate: true})
	resp := srv.expect("encryption_response").(*packet.EncryptionResponse)
	secret, err := rsa.DecryptPKCS1v15(nil, key, resp.SharedSecret)
	if err != nil {
		t.Fatalf("decrypt secret: %v", err)
	}
	echoed, err := rsa.DecryptPKCS1v15(nil, key, resp.VerifyToken)
	if err != nil {
		t.Fatalf("decrypt token: %v", err)
	}
	if err := crypto.CheckVerifyToken(token, echoed); err != nil {
		t.Fatal(err)
	}
	if err := srv.conn.EnableEncryption(secret); err != nil {
		t.Fatal(err)
	}

	srv.send(&packet.LoginSuccess{UUID: protocol.OfflineUUID("Steve"), Username: "Steve"})
	srv.expect("login_acknowledged")
	srv.state = protocol.Configuration
	srv.expect("client_information")
	srv.expect("plugin_message")

	srv.send(&packet.KnownPacks{Packs: []packet.KnownPack{{Namespace: "minecraft", ID: "core", Version: "1.20.5"}}})
	if kp := srv.expect("known_packs").(*packet.KnownPacks); len(kp.Packs) != 0 {
		t.Errorf("known_packs reply = %+v, want empty", kp.Packs)
	}
	srv.send(&packet.Ping{ID: 31})
	if pong := srv.expect("pong").(*packet.Pong); pong.ID != 31 {
		t.Errorf("pong = %d", pong.ID)
	}

	srv.send(&packet.RegistryData{
		RegistryID: "minecraft:dimension_type",
		Entries: []packet.RegistryEntry{
			{ID: "minecraft:overworld", Data: protocol.NewCompound(map[string]*protocol.Tag{"min_y": intTag(-64), "height": intTag(384)})},
			{ID: "mcwire:deep", Data: protocol.NewCompound(map[string]*protocol.Tag{"min_y": intTag(-128), "height": intTag(512)})},
		},
	})
	srv.send(&packet.FinishConfiguration{})
	srv.expect("finish_configuration")
	srv.state = protocol.Play

	srv.send(&packet.JoinGame{
		EntityID:   42,
		WorldNames: []string{"mcwire:deep"},
		Spawn:      packet.SpawnInfo{DimensionIndex: 1, WorldName: "mcwire:deep", PreviousGameMode: -1},
	})
	srv.send(&packet.KeepAlive{ID: 99})
	if ka := srv.expect("keep_alive").(*packet.KeepAlive); ka.ID != 99 {
		t.Errorf("keep_alive echo = %d", ka.ID)
	}
	dim := sess.client.Store().Dimension()
	if dim.Name != "mcwire:deep" || dim.MinY != -128 || dim.Height != 512 {
		t.Errorf("dimension = %+v", dim)
	}
	if got := sess.client.World().GetState().EntityID; got != 42 {
		t.Errorf("entity id = %d", got)
	}

	srv.send(&packet.ChunkBatchStart{})
	srv.send(&packet.ChunkBatchFinished{BatchSize: 3})
	if r := srv.expect("chunk_batch_received").(*packet.ChunkBatchReceived); r.ChunksPerTick != 9 {
		t.Errorf("chunks per tick = %v", r.ChunksPerTick)
	}

	srv.send(&packet.StartConfiguration{})
	srv.expect("configuration_acknowledged")
	srv.state = protocol.Configuration

	reason := protocol.NewCompound(map[string]*protocol.Tag{
		"text": {Type: protocol.TagString, Value: "maintenance"},
	})
	srv.send(&packet.Disconnect{Reason: packet.Chat{Tag: reason}})
	var de *DisconnectError
	if err := sess.wait(t); !errors.As(err, &de) {
		t.Fatalf("Run() = %v, want DisconnectError", err)
	}
	if de.State != protocol.Configuration || de.Reason != "maintenance" {
		t.Errorf("DisconnectError = %+v", de)
	}
}

// joinPlay logs a pre-1.20.2 client straight into play and consumes the
// settings it answers the join with.
func joinPlay(t *testing.T, srv *fakeServer, v protocol.Version, join *packet.JoinGame) {
	t.Helper()
	loginHandshake(t, srv, v)
	srv.send(&packet.LoginSuccess{UUID: protocol.OfflineUUID("Steve"), Username: "Steve"})
	srv.state = protocol.Play
	srv.send(join)
	srv.expect("client_information")
	srv.expect("plugin_message")
}

func TestCorruptChunkEndsSession(t *testing.T) {
	v := protocol.V1_12_2
	sess := startSession(t, v, nil, nil)
	srv := sess.server
	joinPlay(t, srv, v, &packet.JoinGame{EntityID: 1, Spawn: packet.SpawnInfo{LevelType: "default"}})

	// section 0 announced, three bytes of it sent
	srv.send(&packet.ChunkData{X: 0, Z: 0, Full: true, Mask: protocol.BitSet{1}, Data: []byte{4, 2, 1}})
	err := sess.wait(t)
	if !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("Run() = %v, 期望 ErrMalformed", err)
	}
	if sess.client.Store().IsLoaded(0, 0) {
		t.Error("损坏的区块不应被存储")
	}
}

// 重生后紧接着的区块按新维度的高度解码
func TestChunkAfterRespawnUsesNewDimension(t *testing.T) {
	v := protocol.V1_18_2
	sess := startSession(t, v, nil, nil)
	srv := sess.server
	joinPlay(t, srv, v, &packet.JoinGame{
		EntityID:   1,
		WorldNames: []string{"minecraft:overworld", "minecraft:the_nether"},
		Spawn:      packet.SpawnInfo{DimensionType: "minecraft:overworld", WorldName: "minecraft:overworld"},
	})
	if n := sess.client.Store().Dimension().SectionCount(); n != 24 {
		t.Fatalf("overworld sections = %d", n)
	}

	srv.send(&packet.Respawn{Spawn: packet.SpawnInfo{DimensionType: "minecraft:the_nether", WorldName: "minecraft:the_nether"}})
	blob := protocol.NewPlayWriter(srv.ctx)
	for i := 0; i < 16; i++ {
		blob.WriteInt16(4096)
		blob.WriteUint8(0)
		blob.WriteVarInt(int32(i))
		blob.WriteVarInt(0)
		blob.WriteUint8(0)
		blob.WriteVarInt(0)
		blob.WriteVarInt(0)
	}
	srv.send(&packet.ChunkData{X: 2, Z: 2, Full: true, Heightmaps: protocol.NewCompound(nil), Data: blob.Bytes()})
	srv.send(&packet.KeepAlive{ID: 9})
	srv.expect("keep_alive")

	store := sess.client.Store()
	if !store.IsLoaded(2, 2) {
		t.Fatal("区块未加载")
	}
	if got, ok := store.BlockState(32, 5*16+3, 32); !ok || got != 5 {
		t.Errorf("BlockState = %d, %v; 期望 5", got, ok)
	}
	if store.Dimension().Name != "minecraft:the_nether" {
		t.Errorf("dimension = %s", store.Dimension().Name)
	}
	sess.cancel()
	_ = sess.wait(t)
}

func TestPinnedKeyMismatch(t *testing.T) {
	v := protocol.V1_12_2
	sess := startSession(t, v, func(o *Options) {
		o.PinnedKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	}, nil)
	srv := sess.server
	loginHandshake(t, srv, v)

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	der, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	srv.send(&packet.EncryptionRequest{PublicKey: der, VerifyToken: []byte{1, 2, 3, 4}})

	if err := sess.wait(t); !errors.Is(err, crypto.ErrKeyNotPinned) {
		t.Fatalf("Run() = %v, want ErrKeyNotPinned", err)
	}
}

func TestLoginDisconnect(t *testing.T) {
	v := protocol.V1_8
	sess := startSession(t, v, nil, nil)
	srv := sess.server
	loginHandshake(t, srv, v)
	srv.send(&packet.LoginDisconnect{Reason: packet.Chat{JSON: `"whitelist"`}})

	var de *DisconnectError
	if err := sess.wait(t); !errors.As(err, &de) || de.State != protocol.Login {
		t.Fatalf("Run() = %v, want login DisconnectError", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sess := startSession(t, protocol.V1_12_2, nil, nil)
	loginHandshake(t, sess.server, protocol.V1_12_2)
	sess.cancel()
	if err := sess.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
}

func TestPing(t *testing.T) {
	v := protocol.V1_12_2
	client, server := net.Pipe()
	defer server.Close()

	c, err := New(Options{Addr: "mc.example.com:25570", Username: "Steve", Version: v})
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		status  *packet.ServerStatus
		latency time.Duration
		err     error
	}
	done := make(chan result, 1)
	go func() {
		st, lat, err := c.PingConn(context.Background(), client)
		done <- result{st, lat, err}
	}()

	reg, _ := packet.Default()
	table, _ := reg.Bind(v)
	srv := &fakeServer{
		t:     t,
		conn:  transport.NewConn(server, transport.Options{}),
		table: table,
		ctx:   &protocol.Context{Version: v, Resolver: protocol.PassthroughResolver{}},
	}
	hs := srv.expect("handshake").(*packet.Handshake)
	if hs.NextState != 1 || hs.ServerAddress != "mc.example.com" || hs.ServerPort != 25570 {
		t.Fatalf("handshake = %+v", hs)
	}
	srv.state = protocol.Status
	srv.expect("status_request")
	srv.send(&packet.StatusResponse{JSON: `{"version":{"name":"1.12.2","protocol":340},"players":{"max":20,"online":3},"description":{"text":"hi"}}`})
	ping := srv.expect("status_ping").(*packet.StatusPing)
	srv.send(&packet.StatusPong{Payload: ping.Payload})

	res := <-done
	if res.err != nil {
		t.Fatalf("PingConn: %v", res.err)
	}
	if res.status.Version.Protocol != 340 || res.status.Players.Online != 3 {
		t.Errorf("status = %+v", res.status)
	}
	if res.latency < 0 {
		t.Errorf("latency = %v", res.latency)
	}
}

func TestNewRejectsSnapshotVersion(t *testing.T) {
	if _, err := New(Options{Username: "Steve", Version: protocol.FlatteningVersion}); !errors.Is(err, protocol.ErrUnknownVersion) {
		t.Fatalf("New() = %v, want ErrUnknownVersion", err)
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		addr string
		host string
		port uint16
	}{
		{"localhost:25566", "localhost", 25566},
		{"play.example.net", "play.example.net", 25565},
		{"[::1]:1234", "::1", 1234},
		{"host:notaport", "host", 25565},
	}
	for _, tt := range tests {
		host, port := splitAddr(tt.addr)
		if host != tt.host || port != tt.port {
			t.Errorf("splitAddr(%q) = %s, %d; want %s, %d", tt.addr, host, port, tt.host, tt.port)
		}
	}
}
