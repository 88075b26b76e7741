// Package transport turns a byte stream into length-delimited frames,
// optionally zlib-compressed above a threshold and optionally wrapped in the
// CFB8 stream cipher once login negotiates it.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/Versifine/mcwire/internal/crypto"
	"github.com/Versifine/mcwire/internal/protocol"
)

const (
	MaxFrameLength        = 2097151 // largest length a 3-byte VarInt can carry
	MaxDecompressedLength = 8388608 // 8 MiB
)

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum allowed size")
	ErrInvalidFrame   = errors.New("invalid frame structure")
	ErrBadCompression = errors.New("bad compressed frame")
)

// Frame is one packet as it came off the wire, after decryption and
// decompression.
type Frame struct {
	ID      int32
	Payload []byte
	// Length is the declared outer length, i.e. how many bytes the frame
	// occupied after its length prefix.
	Length int
}

type Options struct {
	MaxFrameLength        int
	MaxDecompressedLength int
}

func (o Options) withDefaults() Options {
	if o.MaxFrameLength <= 0 {
		o.MaxFrameLength = MaxFrameLength
	}
	if o.MaxDecompressedLength <= 0 {
		o.MaxDecompressedLength = MaxDecompressedLength
	}
	return o
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn frames an underlying stream. Reads and writes may run concurrently;
// each side is serialized on its own lock.
type Conn struct {
	raw  io.ReadWriter
	opts Options

	threshold atomic.Int32

	rmu sync.Mutex
	r   *bufio.Reader
	zr  io.ReadCloser

	wmu sync.Mutex
	w   io.Writer
	zw  *zlib.Writer
	zb  bytes.Buffer

	encrypted atomic.Bool
}

func NewConn(rw io.ReadWriter, opts Options) *Conn {
	c := &Conn{
		raw:  rw,
		opts: opts.withDefaults(),
		r:    bufio.NewReader(rw),
		w:    rw,
	}
	c.threshold.Store(-1)
	return c
}

// SetCompression sets the threshold announced by the server. A negative
// threshold disables compression.
func (c *Conn) SetCompression(threshold int) {
	c.threshold.Store(int32(threshold))
}

func (c *Conn) Threshold() int {
	return int(c.threshold.Load())
}

func (c *Conn) Encrypted() bool {
	return c.encrypted.Load()
}

// EnableEncryption wraps both directions in AES/CFB8 keyed by secret. Bytes
// already buffered by the reader are decrypted too.
func (c *Conn) EnableEncryption(secret []byte) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.encrypted.Load() {
		return fmt.Errorf("%w: encryption already enabled", crypto.ErrCrypto)
	}

	pending, err := c.r.Peek(c.r.Buffered())
	if err != nil {
		return err
	}
	buffered := append([]byte(nil), pending...)

	dec, err := crypto.NewReader(io.MultiReader(bytes.NewReader(buffered), c.raw), secret)
	if err != nil {
		return err
	}
	enc, err := crypto.NewWriter(c.raw, secret)
	if err != nil {
		return err
	}
	c.r = bufio.NewReader(dec)
	c.w = enc
	c.encrypted.Store(true)
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	if d, ok := c.raw.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	if d, ok := c.raw.(deadliner); ok {
		return d.SetWriteDeadline(t)
	}
	return nil
}

func (c *Conn) Close() error {
	if closer, ok := c.raw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadFrame reads exactly one frame. Any error other than a clean io.EOF
// before the length prefix leaves the stream unusable.
func (c *Conn) ReadFrame() (*Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	// 1. Read frame length
	frameLen, err := protocol.ReadVarInt(c.r)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			return nil, errors.Join(ErrInvalidFrame, err)
		}
		return nil, err
	}
	if frameLen <= 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidFrame, frameLen)
	}
	if int(frameLen) > c.opts.MaxFrameLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, frameLen, c.opts.MaxFrameLength)
	}

	// 2. Read the whole frame; a short read is a torn frame
	data := make([]byte, frameLen)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, errors.Join(ErrInvalidFrame, err)
	}
	body := data

	// 3. Handle compression
	if threshold := c.Threshold(); threshold >= 0 {
		br := bytes.NewReader(data)
		dataLen, err := protocol.ReadVarInt(br)
		if err != nil {
			return nil, errors.Join(ErrInvalidFrame, err)
		}
		compressed := data[len(data)-br.Len():]
		switch {
		case dataLen == 0:
			body = compressed
		case dataLen < 0:
			return nil, fmt.Errorf("%w: negative data length %d", ErrBadCompression, dataLen)
		case int(dataLen) > c.opts.MaxDecompressedLength:
			return nil, fmt.Errorf("%w: declared %d > %d", ErrFrameTooLarge, dataLen, c.opts.MaxDecompressedLength)
		case int(dataLen) < threshold:
			return nil, fmt.Errorf("%w: size %d is below threshold %d", ErrBadCompression, dataLen, threshold)
		default:
			body, err = c.inflate(compressed, int(dataLen))
			if err != nil {
				return nil, err
			}
		}
	}

	// 4. Packet id and payload
	br := bytes.NewReader(body)
	id, err := protocol.ReadVarInt(br)
	if err != nil {
		return nil, errors.Join(ErrInvalidFrame, err)
	}
	return &Frame{
		ID:      id,
		Payload: body[len(body)-br.Len():],
		Length:  int(frameLen),
	}, nil
}

func (c *Conn) inflate(compressed []byte, size int) ([]byte, error) {
	src := bytes.NewReader(compressed)
	if c.zr == nil {
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, errors.Join(ErrBadCompression, err)
		}
		c.zr = zr
	} else if err := c.zr.(zlib.Resetter).Reset(src, nil); err != nil {
		return nil, errors.Join(ErrBadCompression, err)
	}

	out := make([]byte, size)
	if _, err := io.ReadFull(c.zr, out); err != nil {
		return nil, errors.Join(ErrBadCompression, err)
	}
	// reading to EOF verifies the checksum and catches oversize streams
	var extra [1]byte
	n, err := c.zr.Read(extra[:])
	if n > 0 {
		return nil, fmt.Errorf("%w: inflated size exceeds declared %d", ErrBadCompression, size)
	}
	if err != io.EOF {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, errors.Join(ErrBadCompression, err)
	}
	return out, nil
}

// WriteFrame encodes id and payload as one frame and writes it with a single
// Write call.
func (c *Conn) WriteFrame(id int32, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	// 1. Prepare raw [ID][Payload]
	var raw bytes.Buffer
	_ = protocol.WriteVarInt(&raw, id)
	raw.Write(payload)

	// 2. Compression wrapper
	body := raw.Bytes()
	if threshold := c.Threshold(); threshold >= 0 {
		var wrapped bytes.Buffer
		if raw.Len() >= threshold {
			_ = protocol.WriteVarInt(&wrapped, int32(raw.Len()))
			compressed, err := c.deflate(raw.Bytes())
			if err != nil {
				return err
			}
			wrapped.Write(compressed)
		} else {
			_ = protocol.WriteVarInt(&wrapped, 0)
			wrapped.Write(raw.Bytes())
		}
		body = wrapped.Bytes()
	}
	if len(body) > c.opts.MaxFrameLength {
		return fmt.Errorf("%w: outgoing %d > %d", ErrFrameTooLarge, len(body), c.opts.MaxFrameLength)
	}

	// 3. Length prefix
	out := make([]byte, 0, protocol.VarIntLen(int32(len(body)))+len(body))
	var prefix [protocol.MaxVarIntLen]byte
	n := protocol.PutVarInt(prefix[:], int32(len(body)))
	out = append(out, prefix[:n]...)
	out = append(out, body...)
	_, err := c.w.Write(out)
	return err
}

func (c *Conn) deflate(p []byte) ([]byte, error) {
	c.zb.Reset()
	if c.zw == nil {
		c.zw = zlib.NewWriter(&c.zb)
	} else {
		c.zw.Reset(&c.zb)
	}
	if _, err := c.zw.Write(p); err != nil {
		return nil, err
	}
	if err := c.zw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.zb.Bytes()...), nil
}
