package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// cfb8 is AES in 8-bit cipher feedback mode. The standard library only ships
// full-block CFB, which the game protocol does not use.
type cfb8 struct {
	block   cipher.Block
	iv      []byte // sliding window into ivSpace
	ivSpace []byte
	tmp     []byte
	decrypt bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8 {
	bs := block.BlockSize()
	space := make([]byte, bs*16)
	copy(space, iv)
	return &cfb8{
		block:   block,
		iv:      space[:bs],
		ivSpace: space,
		tmp:     make([]byte, bs),
		decrypt: decrypt,
	}
}

func (c *cfb8) XORKeyStream(dst, src []byte) {
	bs := len(c.tmp)
	for i := range src {
		in := src[i]
		c.block.Encrypt(c.tmp, c.iv)
		out := in ^ c.tmp[0]

		// shift the register left by one byte, reusing the spare space
		// before paying for a copy
		if cap(c.iv) > bs {
			c.iv = c.iv[1 : bs+1]
		} else {
			copy(c.ivSpace, c.iv[1:])
			c.iv = c.ivSpace[:bs]
		}
		if c.decrypt {
			c.iv[bs-1] = in
		} else {
			c.iv[bs-1] = out
		}
		dst[i] = out
	}
}

func newStream(secret []byte, decrypt bool) (cipher.Stream, error) {
	if len(secret) != SharedSecretSize {
		return nil, fmt.Errorf("%w: shared secret is %d bytes, want %d", ErrCrypto, len(secret), SharedSecretSize)
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return newCFB8(block, secret, decrypt), nil
}

// NewEncrypter returns the client-to-server stream. Key and IV are both the
// shared secret.
func NewEncrypter(secret []byte) (cipher.Stream, error) {
	return newStream(secret, false)
}

func NewDecrypter(secret []byte) (cipher.Stream, error) {
	return newStream(secret, true)
}

type decryptingReader struct {
	r      io.Reader
	stream cipher.Stream
}

// NewReader decrypts everything read from r.
func NewReader(r io.Reader, secret []byte) (io.Reader, error) {
	stream, err := NewDecrypter(secret)
	if err != nil {
		return nil, err
	}
	return &decryptingReader{r: r, stream: stream}, nil
}

func (d *decryptingReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

type encryptingWriter struct {
	w      io.Writer
	stream cipher.Stream
	buf    []byte
}

// NewWriter encrypts everything written to w. The caller's slice is left untouched.
func NewWriter(w io.Writer, secret []byte) (io.Writer, error) {
	stream, err := NewEncrypter(secret)
	if err != nil {
		return nil, err
	}
	return &encryptingWriter{w: w, stream: stream}, nil
}

func (e *encryptingWriter) Write(p []byte) (int, error) {
	if cap(e.buf) < len(p) {
		e.buf = make([]byte, len(p))
	}
	out := e.buf[:len(p)]
	e.stream.XORKeyStream(out, p)
	n, err := e.w.Write(out)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}
