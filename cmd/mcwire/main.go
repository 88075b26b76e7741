package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Versifine/mcwire/internal/client"
	"github.com/Versifine/mcwire/internal/config"
	"github.com/Versifine/mcwire/internal/debug"
	"github.com/Versifine/mcwire/internal/event"
	"github.com/Versifine/mcwire/internal/logger"
	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/registry"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config, empty for defaults")
	envFile := flag.String("env", ".env", "dotenv file loaded before MCWIRE_* overrides")
	console := flag.Bool("console", false, "read inspection commands from stdin while joined")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		slog.Error("Failed to init logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *console); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Session ended", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, console bool) error {
	version, err := cfg.Version()
	if err != nil {
		return err
	}
	opts := client.Options{
		Addr:            cfg.Server.Addr(),
		Username:        cfg.Client.Username,
		Version:         version,
		MaxStringLength: cfg.Protocol.MaxStringLength,
		PinnedKey:       cfg.Protocol.PinnedKey,
		Locale:          cfg.Client.Locale,
		ViewDistance:    int8(cfg.Client.ViewDistance),
		ConnectTimeout:  cfg.Timeouts.Connect,
		ReadTimeout:     cfg.Timeouts.Read,
		Dispatcher: event.Options{
			Workers:   cfg.Dispatcher.Workers,
			QueueSize: cfg.Dispatcher.QueueSize,
		},
	}
	if cfg.Registry.Dir != "" {
		reg, err := registry.Load(cfg.Registry.Dir)
		if err != nil {
			return err
		}
		slog.Info("Registry loaded", "dir", cfg.Registry.Dir, "block_states", reg.BlockCount())
		opts.Resolver = reg
	}

	c, err := client.New(opts)
	if err != nil {
		return err
	}

	if cfg.Client.Mode == "status" {
		status, latency, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		slog.Info("Server status",
			"address", opts.Addr,
			"version", status.Version.Name,
			"protocol", status.Version.Protocol,
			"players", status.Players.Online,
			"max_players", status.Players.Max,
			"motd", string(status.Description),
			"latency", latency)
		return nil
	}

	logTraffic(c)
	if !console {
		return c.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// quitting the console ends the session
		defer cancel()
		if err := debug.NewConsole(c.World(), c.Store(), c, opts.Resolver).Start(ctx); err != nil {
			slog.Warn("Console stopped", "error", err)
		}
	}()
	return c.Run(ctx)
}

// logTraffic logs the packets worth seeing at info level and everything at
// debug level.
func logTraffic(c *client.Client) {
	c.Subscribe(event.EventStateChange, func(e event.Packet) {
		ev := e.Value.(event.StateChangeEvent)
		slog.Info("State changed", "from", ev.From, "to", ev.To)
	})
	c.Subscribe(event.EventDisconnect, func(e event.Packet) {
		ev := e.Value.(event.DisconnectEvent)
		slog.Info("Disconnected", "reason", ev.Reason, "error", ev.Err)
	})
	c.Subscribe("join_game", func(e event.Packet) {
		p := e.Value.(*packet.JoinGame)
		slog.Info("Join game", "entity_id", p.EntityID, "dimension", c.Store().Dimension().Name)
	})
	c.Subscribe("plugin_message", func(e event.Packet) {
		if brand, ok := e.Value.(*packet.PluginMessage).Brand(); ok {
			slog.Info("Server brand", "brand", brand)
		}
	})
	c.Subscribe("time_update", func(e event.Packet) {
		slog.Debug("World", "state", c.World().GetState().String(), "chunks", c.Store().LoadedChunkCount())
	})
	c.Subscribe(event.EventChunkLoaded, func(e event.Packet) {
		ev := e.Value.(event.ChunkLoadedEvent)
		slog.Debug("Chunk loaded", "x", ev.X, "z", ev.Z)
	})

	for _, name := range []string{"keep_alive", "player_position", "respawn", "block_change", "multi_block_change",
		"spawn_object", "destroy_entities", "entity_metadata", "unload_chunk", "start_configuration"} {
		c.Subscribe(name, func(e event.Packet) {
			slog.Debug("Packet", "packet", e.Name, "state", e.State)
		})
	}
}
