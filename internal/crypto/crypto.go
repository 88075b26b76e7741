// Package crypto holds the login handshake primitives: the shared AES secret,
// RSA operations against the server key, the session server hash and the
// CFB8 stream wrapping the socket afterwards.
package crypto

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const SharedSecretSize = 16

// ErrCrypto wraps every failure of this package. All of them are terminal for
// the connection.
var ErrCrypto = errors.New("crypto failure")

var (
	ErrBadSignature   = fmt.Errorf("%w: server key signature does not verify", ErrCrypto)
	ErrKeyNotPinned   = fmt.Errorf("%w: server key does not match pinned fingerprint", ErrCrypto)
	ErrTokenMismatch  = fmt.Errorf("%w: verify token mismatch", ErrCrypto)
	ErrUnsupportedKey = fmt.Errorf("%w: server key is not RSA", ErrCrypto)
)

// NewSharedSecret returns a fresh 128-bit AES key.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, SharedSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return secret, nil
}

// ParsePublicKey parses the DER (PKIX) key sent in the encryption request.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse server key: %v", ErrCrypto, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrUnsupportedKey
	}
	return pub, nil
}

// EncryptKey encrypts data (secret or verify token) for the server.
func EncryptKey(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return out, nil
}

// VerifyKeySignature checks a SHA-256 PKCS#1 v1.5 signature over nonce. An
// empty signature is accepted: whether unsigned keys are trusted is up to the
// server's policy, not the client.
func VerifyKeySignature(pub *rsa.PublicKey, nonce, signature []byte) error {
	if len(signature) == 0 {
		return nil
	}
	digest := sha256.Sum256(nonce)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return ErrBadSignature
	}
	return nil
}

// KeyFingerprint is the hex SHA-256 of a DER public key.
func KeyFingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// CheckPinnedKey compares der against a configured fingerprint. An empty pin
// disables the check.
func CheckPinnedKey(der []byte, pin string) error {
	if pin == "" {
		return nil
	}
	pin = strings.ToLower(strings.ReplaceAll(pin, ":", ""))
	if KeyFingerprint(der) != pin {
		return ErrKeyNotPinned
	}
	return nil
}

// CheckVerifyToken compares the token echoed by the server with the one sent.
func CheckVerifyToken(sent, echoed []byte) error {
	if !bytes.Equal(sent, echoed) {
		return ErrTokenMismatch
	}
	return nil
}

// ServerHash computes the session server digest for serverID, the shared
// secret and the server's encoded public key.
func ServerHash(serverID string, secret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicKey)
	return signedHexDigest(h.Sum(nil))
}

// signedHexDigest renders sum as a signed big-endian integer in hex, the way
// the session server expects it (leading minus, no zero padding).
func signedHexDigest(sum []byte) string {
	n := new(big.Int).SetBytes(sum)
	if len(sum) > 0 && sum[0]&0x80 != 0 {
		// two's complement: n - 2^(8*len)
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(sum)*8)))
	}
	return n.Text(16)
}
