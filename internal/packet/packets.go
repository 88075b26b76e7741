package packet

import (
	"github.com/Versifine/mcwire/internal/protocol"
)

var (
	inHandshaking   = []protocol.State{protocol.Handshaking}
	inStatus        = []protocol.State{protocol.Status}
	inLogin         = []protocol.State{protocol.Login}
	inConfiguration = []protocol.State{protocol.Configuration}
	inPlay          = []protocol.State{protocol.Play}
	inConfigAndPlay = []protocol.State{protocol.Configuration, protocol.Play}
	inLoginAndPlay  = []protocol.State{protocol.Login, protocol.Play}
)

// registerAll lists every packet the client knows. Opcodes live in
// opcodes.toml; names here are the keys used there.
func registerAll(r *Registry, errs *[]error) {
	// handshaking and status
	register(r, errs, Info{Name: "handshake", Direction: protocol.Serverbound, States: inHandshaking}, handshakeLayout)
	register(r, errs, Info{Name: "status_request", Direction: protocol.Serverbound, States: inStatus}, statusRequestLayout)
	register(r, errs, Info{Name: "status_ping", Direction: protocol.Serverbound, States: inStatus}, statusPingLayout)
	register(r, errs, Info{Name: "status_response", Direction: protocol.Clientbound, States: inStatus}, statusResponseLayout)
	register(r, errs, Info{Name: "status_pong", Direction: protocol.Clientbound, States: inStatus}, statusPongLayout)

	// login
	register(r, errs, Info{Name: "login_disconnect", Direction: protocol.Clientbound, States: inLogin}, loginDisconnectLayout)
	register(r, errs, Info{Name: "encryption_request", Direction: protocol.Clientbound, States: inLogin}, encryptionRequestLayout)
	register(r, errs, Info{Name: "login_success", Direction: protocol.Clientbound, States: inLogin}, loginSuccessLayout)
	register(r, errs, Info{Name: "set_compression", Direction: protocol.Clientbound, States: inLoginAndPlay}, setCompressionLayout)
	register(r, errs, Info{Name: "login_plugin_request", Direction: protocol.Clientbound, States: inLogin}, loginPluginRequestLayout)
	register(r, errs, Info{Name: "login_start", Direction: protocol.Serverbound, States: inLogin}, loginStartLayout)
	register(r, errs, Info{Name: "encryption_response", Direction: protocol.Serverbound, States: inLogin}, encryptionResponseLayout)
	register(r, errs, Info{Name: "login_plugin_response", Direction: protocol.Serverbound, States: inLogin}, loginPluginResponseLayout)
	register(r, errs, Info{Name: "login_acknowledged", Direction: protocol.Serverbound, States: inLogin}, loginAcknowledgedLayout)

	// shared by configuration and play
	register(r, errs, Info{Name: "plugin_message", Direction: protocol.Clientbound, States: inConfigAndPlay}, pluginMessageLayout)
	register(r, errs, Info{Name: "plugin_message", Direction: protocol.Serverbound, States: inConfigAndPlay}, pluginMessageLayout)
	register(r, errs, Info{Name: "disconnect", Direction: protocol.Clientbound, States: inConfigAndPlay}, disconnectLayout)
	register(r, errs, Info{Name: "keep_alive", Direction: protocol.Clientbound, States: inConfigAndPlay, ThreadSafe: true}, keepAliveLayout)
	register(r, errs, Info{Name: "keep_alive", Direction: protocol.Serverbound, States: inConfigAndPlay}, keepAliveLayout)
	register(r, errs, Info{Name: "client_information", Direction: protocol.Serverbound, States: inConfigAndPlay}, clientInformationLayout)

	// configuration
	register(r, errs, Info{Name: "finish_configuration", Direction: protocol.Clientbound, States: inConfiguration}, finishConfigurationLayout)
	register(r, errs, Info{Name: "finish_configuration", Direction: protocol.Serverbound, States: inConfiguration}, finishConfigurationLayout)
	register(r, errs, Info{Name: "ping", Direction: protocol.Clientbound, States: inConfiguration}, pingLayout)
	register(r, errs, Info{Name: "pong", Direction: protocol.Serverbound, States: inConfiguration}, pongLayout)
	register(r, errs, Info{Name: "registry_data", Direction: protocol.Clientbound, States: inConfiguration}, registryDataLayout)
	register(r, errs, Info{Name: "known_packs", Direction: protocol.Clientbound, States: inConfiguration}, knownPacksLayout)
	register(r, errs, Info{Name: "known_packs", Direction: protocol.Serverbound, States: inConfiguration}, knownPacksLayout)

	// play, clientbound
	register(r, errs, Info{Name: "join_game", Direction: protocol.Clientbound, States: inPlay}, joinGameLayout)
	register(r, errs, Info{Name: "respawn", Direction: protocol.Clientbound, States: inPlay}, respawnLayout)
	register(r, errs, Info{Name: "time_update", Direction: protocol.Clientbound, States: inPlay, ThreadSafe: true}, timeUpdateLayout)
	register(r, errs, Info{Name: "player_position", Direction: protocol.Clientbound, States: inPlay}, playerPositionLayout)
	register(r, errs, Info{Name: "chunk_data", Direction: protocol.Clientbound, States: inPlay, ThreadSafe: true, LowPriority: true}, chunkDataLayout)
	register(r, errs, Info{Name: "chunk_bulk", Direction: protocol.Clientbound, States: inPlay, ThreadSafe: true, LowPriority: true}, chunkBulkLayout)
	register(r, errs, Info{Name: "light_update", Direction: protocol.Clientbound, States: inPlay, ThreadSafe: true, LowPriority: true}, lightUpdateLayout)
	register(r, errs, Info{Name: "unload_chunk", Direction: protocol.Clientbound, States: inPlay}, unloadChunkLayout)
	register(r, errs, Info{Name: "chunk_batch_start", Direction: protocol.Clientbound, States: inPlay}, chunkBatchStartLayout)
	register(r, errs, Info{Name: "chunk_batch_finished", Direction: protocol.Clientbound, States: inPlay}, chunkBatchFinishedLayout)
	register(r, errs, Info{Name: "block_change", Direction: protocol.Clientbound, States: inPlay}, blockChangeLayout)
	register(r, errs, Info{Name: "multi_block_change", Direction: protocol.Clientbound, States: inPlay}, multiBlockChangeLayout)
	register(r, errs, Info{Name: "spawn_object", Direction: protocol.Clientbound, States: inPlay}, spawnObjectLayout)
	register(r, errs, Info{Name: "destroy_entities", Direction: protocol.Clientbound, States: inPlay}, destroyEntitiesLayout)
	register(r, errs, Info{Name: "entity_relative_move", Direction: protocol.Clientbound, States: inPlay}, entityRelativeMoveLayout)
	register(r, errs, Info{Name: "entity_teleport", Direction: protocol.Clientbound, States: inPlay}, entityTeleportLayout)
	register(r, errs, Info{Name: "entity_metadata", Direction: protocol.Clientbound, States: inPlay}, entityMetadataLayout)
	register(r, errs, Info{Name: "start_configuration", Direction: protocol.Clientbound, States: inPlay}, startConfigurationLayout)

	// play, serverbound
	register(r, errs, Info{Name: "teleport_confirm", Direction: protocol.Serverbound, States: inPlay}, teleportConfirmLayout)
	register(r, errs, Info{Name: "chat_message", Direction: protocol.Serverbound, States: inPlay}, chatMessageLayout)
	register(r, errs, Info{Name: "player_move", Direction: protocol.Serverbound, States: inPlay}, playerMoveLayout)
	register(r, errs, Info{Name: "chunk_batch_received", Direction: protocol.Serverbound, States: inPlay}, chunkBatchReceivedLayout)
	register(r, errs, Info{Name: "configuration_acknowledged", Direction: protocol.Serverbound, States: inPlay}, configurationAcknowledgedLayout)
}
