package debug

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Versifine/mcwire/internal/packet"
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/world"
)

type StateProvider interface {
	GetState() world.Snapshot
}

type BlockQuerier interface {
	BlockState(x, y, z int) (int32, bool)
	Dimension() world.Dimension
	LoadedChunkCount() int
	IsLoaded(chunkX, chunkZ int32) bool
}

type Sender interface {
	Send(p any) error
}

// Console reads line commands and answers them from the live session state.
type Console struct {
	state    StateProvider
	blocks   BlockQuerier
	sender   Sender
	resolver protocol.Resolver

	in     io.Reader
	out    io.Writer
	prompt bool
}

func NewConsole(state StateProvider, blocks BlockQuerier, sender Sender, resolver protocol.Resolver) *Console {
	if resolver == nil {
		resolver = protocol.PassthroughResolver{}
	}
	return &Console{
		state:    state,
		blocks:   blocks,
		sender:   sender,
		resolver: resolver,
		in:       os.Stdin,
		out:      os.Stdout,
		prompt:   term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// SetIO replaces stdin and stdout, mostly for tests.
func (c *Console) SetIO(in io.Reader, out io.Writer) {
	c.in = in
	c.out = out
	c.prompt = false
}

// Start serves commands until ctx ends or input is exhausted.
func (c *Console) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("console is nil")
	}
	if c.state == nil || c.blocks == nil {
		return fmt.Errorf("console has no session state")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprintln(c.out, "[debug] console started, type help for commands")
	for {
		if c.prompt {
			fmt.Fprint(c.out, "> ")
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read console input: %w", err)
			}
			return nil
		case line := <-lines:
			if c.executeCommand(line) {
				return nil
			}
		}
	}
}

// executeCommand runs one line and reports whether the console should stop.
func (c *Console) executeCommand(cmd string) bool {
	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(cmd), ":"))
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "help":
		c.printHelp()
	case "quit", "exit":
		return true
	case "snap":
		fmt.Fprintf(c.out, "[debug] %s\n", c.state.GetState().String())
	case "dim":
		d := c.blocks.Dimension()
		fmt.Fprintf(c.out, "[debug] dimension %s min_y=%d height=%d skylight=%t chunks=%d\n",
			d.Name, d.MinY, d.Height, d.HasSkyLight, c.blocks.LoadedChunkCount())
	case "chunk":
		c.handleChunkCommand(parts)
	case "block":
		c.handleBlockCommand(parts)
	case "entities":
		snap := c.state.GetState()
		fmt.Fprintf(c.out, "[debug] %d entities\n", len(snap.Entities))
		for _, e := range snap.Entities {
			fmt.Fprintf(c.out, "  %d %s (%.2f, %.2f, %.2f) metadata=%d\n", e.EntityID, entityLabel(e), e.X, e.Y, e.Z, len(e.Metadata))
		}
	case "look":
		c.handleLookCommand(parts)
	case "say":
		if len(parts) < 2 {
			fmt.Fprintln(c.out, "[debug] usage: say <message>")
			return false
		}
		msg := strings.Join(parts[1:], " ")
		if err := c.send(&packet.ChatMessage{Message: msg, Timestamp: time.Now().UnixMilli()}); err != nil {
			fmt.Fprintf(c.out, "[debug] send failed: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "[debug] sent %q\n", msg)
	default:
		fmt.Fprintf(c.out, "[debug] unknown command: %s\n", parts[0])
	}
	return false
}

func (c *Console) send(p any) error {
	if c.sender == nil {
		return fmt.Errorf("not connected")
	}
	return c.sender.Send(p)
}

func parseInts(args []string) ([]int, bool) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func (c *Console) handleChunkCommand(parts []string) {
	xz, ok := parseInts(parts[1:])
	if !ok || len(xz) != 2 {
		fmt.Fprintln(c.out, "[debug] usage: chunk <x> <z>")
		return
	}
	fmt.Fprintf(c.out, "[debug] chunk (%d,%d): loaded=%t\n", xz[0], xz[1], c.blocks.IsLoaded(int32(xz[0]), int32(xz[1])))
}

func (c *Console) handleBlockCommand(parts []string) {
	xyz, ok := parseInts(parts[1:])
	if !ok || len(xyz) != 3 {
		fmt.Fprintln(c.out, "[debug] usage: block <x> <y> <z>")
		return
	}
	x, y, z := xyz[0], xyz[1], xyz[2]
	stateID, ok := c.blocks.BlockState(x, y, z)
	if !ok {
		fmt.Fprintf(c.out, "[debug] block (%d,%d,%d): unloaded\n", x, y, z)
		return
	}
	line := fmt.Sprintf("[debug] block (%d,%d,%d): state_id=%d", x, y, z, stateID)
	if bs, err := c.resolver.ResolveBlock(stateID); err == nil && bs.Name != "" {
		line += " " + blockLabel(bs)
	}
	fmt.Fprintln(c.out, line)
}

func blockLabel(bs protocol.BlockState) string {
	if len(bs.Properties) == 0 {
		return bs.Name
	}
	keys := make([]string, 0, len(bs.Properties))
	for k := range bs.Properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	props := make([]string, len(keys))
	for i, k := range keys {
		props[i] = k + "=" + bs.Properties[k]
	}
	return bs.Name + "[" + strings.Join(props, ",") + "]"
}

func entityLabel(e world.Entity) string {
	if e.TypeName != "" {
		return e.TypeName
	}
	return "type#" + strconv.Itoa(int(e.Type))
}

// handleLookCommand turns the player toward an entity or a point.
func (c *Console) handleLookCommand(parts []string) {
	snap := c.state.GetState()
	var tx, ty, tz float64
	switch len(parts) {
	case 2:
		id, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			fmt.Fprintln(c.out, "[debug] invalid entity id")
			return
		}
		found := false
		for _, e := range snap.Entities {
			if e.EntityID == int32(id) {
				tx, ty, tz, found = e.X, e.Y, e.Z, true
				break
			}
		}
		if !found {
			fmt.Fprintf(c.out, "[debug] entity %d not found\n", id)
			return
		}
	case 4:
		var err1, err2, err3 error
		tx, err1 = strconv.ParseFloat(parts[1], 64)
		ty, err2 = strconv.ParseFloat(parts[2], 64)
		tz, err3 = strconv.ParseFloat(parts[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			fmt.Fprintln(c.out, "[debug] invalid look args")
			return
		}
	default:
		fmt.Fprintln(c.out, "[debug] usage: look <entity_id> or look <x> <y> <z>")
		return
	}

	self := snap.Position
	yaw, pitch := lookAngles(tx-self.X, ty-self.Y, tz-self.Z)
	err := c.send(&packet.PlayerMove{
		Pos:      packet.Vec3{X: self.X, Y: self.Y, Z: self.Z},
		Yaw:      yaw,
		Pitch:    pitch,
		OnGround: true,
	})
	if err != nil {
		fmt.Fprintf(c.out, "[debug] send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "[debug] look yaw=%.1f pitch=%.1f\n", yaw, pitch)
}

func lookAngles(dx, dy, dz float64) (float32, float32) {
	yaw := float32(math.Atan2(-dx, dz) * 180.0 / math.Pi)
	horizontal := math.Sqrt(dx*dx + dz*dz)
	pitch := float32(-math.Atan2(dy, horizontal) * 180.0 / math.Pi)
	return normalizeYaw(yaw), clampPitch(pitch)
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, "[debug] commands:\n")
	fmt.Fprint(c.out, "  snap                  world snapshot\n")
	fmt.Fprint(c.out, "  dim                   current dimension and loaded chunks\n")
	fmt.Fprint(c.out, "  chunk <x> <z>\n")
	fmt.Fprint(c.out, "  block <x> <y> <z>\n")
	fmt.Fprint(c.out, "  entities\n")
	fmt.Fprint(c.out, "  look <entity_id>\n")
	fmt.Fprint(c.out, "  look <x> <y> <z>\n")
	fmt.Fprint(c.out, "  say <message>\n")
	fmt.Fprint(c.out, "  quit\n")
}

func normalizeYaw(yaw float32) float32 {
	for yaw <= -180 {
		yaw += 360
	}
	for yaw > 180 {
		yaw -= 360
	}
	return yaw
}

func clampPitch(pitch float32) float32 {
	if pitch < -90 {
		return -90
	}
	if pitch > 90 {
		return 90
	}
	return pitch
}
