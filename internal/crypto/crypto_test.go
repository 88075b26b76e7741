package crypto

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"io"
	"testing"
)

// TestCFB8KnownAnswer NIST SP 800-38A F.3.7 CFB8-AES128 加密向量
func TestCFB8KnownAnswer(t *testing.T) {
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	iv, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plain, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172aae2d")
	want, _ := hex.DecodeString("3b79424c9c0dd436bace9e0ed4586a4f32b9")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher failed: %v", err)
	}
	got := make([]byte, len(plain))
	newCFB8(block, iv, false).XORKeyStream(got, plain)
	if !bytes.Equal(got, want) {
		t.Fatalf("加密结果 %x, 期望 %x", got, want)
	}

	back := make([]byte, len(got))
	newCFB8(block, iv, true).XORKeyStream(back, got)
	if !bytes.Equal(back, plain) {
		t.Fatalf("解密结果 %x, 期望 %x", back, plain)
	}
}

// TestStreamIsContinuous 密文流跨多次写入保持连续, 与分包方式无关
func TestStreamIsContinuous(t *testing.T) {
	secret, err := NewSharedSecret()
	if err != nil {
		t.Fatalf("NewSharedSecret failed: %v", err)
	}
	payload := bytes.Repeat([]byte("frame-bytes-"), 300)

	var oneShot bytes.Buffer
	w, _ := NewWriter(&oneShot, secret)
	_, _ = w.Write(payload)

	var chunked bytes.Buffer
	w2, _ := NewWriter(&chunked, secret)
	for i := 0; i < len(payload); i += 7 {
		end := min(i+7, len(payload))
		_, _ = w2.Write(payload[i:end])
	}
	if !bytes.Equal(oneShot.Bytes(), chunked.Bytes()) {
		t.Fatal("分块写入与整体写入的密文不同")
	}

	r, _ := NewReader(bytes.NewReader(chunked.Bytes()), secret)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("解密结果与明文不同")
	}
}

func TestWriterLeavesInputUntouched(t *testing.T) {
	secret := bytes.Repeat([]byte{7}, SharedSecretSize)
	in := []byte("do not modify")
	orig := append([]byte(nil), in...)
	w, _ := NewWriter(io.Discard, secret)
	_, _ = w.Write(in)
	if !bytes.Equal(in, orig) {
		t.Errorf("Write 修改了调用方的切片")
	}
}

func TestBadSecretSize(t *testing.T) {
	if _, err := NewEncrypter(make([]byte, 8)); !errors.Is(err, ErrCrypto) {
		t.Errorf("期望 ErrCrypto, 实际 %v", err)
	}
}

// TestServerHash 会话服务器文档中的三个样例
func TestServerHash(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := sha1.Sum([]byte(tt.name))
			if got := signedHexDigest(sum[:]); got != tt.want {
				t.Errorf("got %s, 期望 %s", got, tt.want)
			}
			if got := ServerHash(tt.name, nil, nil); got != tt.want {
				t.Errorf("ServerHash = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

func TestRSAHandshake(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey failed: %v", err)
	}
	pub, err := ParsePublicKey(der)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}

	secret, _ := NewSharedSecret()
	enc, err := EncryptKey(pub, secret)
	if err != nil {
		t.Fatalf("EncryptKey failed: %v", err)
	}
	dec, err := rsa.DecryptPKCS1v15(rand.Reader, priv, enc)
	if err != nil {
		t.Fatalf("DecryptPKCS1v15 failed: %v", err)
	}
	if !bytes.Equal(dec, secret) {
		t.Fatal("服务端解出的密钥不一致")
	}

	nonce := []byte{1, 2, 3, 4}
	digest := sha256.Sum256(nonce)
	sig, _ := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err := VerifyKeySignature(pub, nonce, sig); err != nil {
		t.Errorf("有效签名校验失败: %v", err)
	}
	if err := VerifyKeySignature(pub, []byte{9}, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("期望 ErrBadSignature, 实际 %v", err)
	}
	if err := VerifyKeySignature(pub, nonce, nil); err != nil {
		t.Errorf("无签名应接受, 实际 %v", err)
	}

	if err := CheckPinnedKey(der, KeyFingerprint(der)); err != nil {
		t.Errorf("指纹匹配应通过: %v", err)
	}
	if err := CheckPinnedKey(der, "00"); !errors.Is(err, ErrKeyNotPinned) {
		t.Errorf("期望 ErrKeyNotPinned, 实际 %v", err)
	}
	if _, err := ParsePublicKey([]byte{0x30, 0x00}); !errors.Is(err, ErrCrypto) {
		t.Errorf("无效 DER 应失败, 实际 %v", err)
	}
}

func TestCheckVerifyToken(t *testing.T) {
	if err := CheckVerifyToken([]byte{1, 2}, []byte{1, 2}); err != nil {
		t.Errorf("相同 token 应通过: %v", err)
	}
	if err := CheckVerifyToken([]byte{1, 2}, []byte{1, 3}); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("期望 ErrTokenMismatch, 实际 %v", err)
	}
}
