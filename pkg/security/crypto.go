package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Named failure kinds. Encryption failure aborts a send before any network
// call; decryption failure degrades the affected content to an error state.
var (
	ErrEncryption = errors.New("encryption failed")
	ErrDecryption = errors.New("decryption failed")
)

// Secret is a per-channel AES-256 symmetric key. A nil Secret means the
// channel is not end-to-end encrypted.
type Secret []byte

// ParseSecretHex decodes a hex-encoded channel secret and enforces the
// AES-256 key length.
func ParseSecretHex(hexKey string) (Secret, error) {
	if hexKey == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, errors.New("channel secret must be 32 bytes (AES-256)")
	}
	return Secret(b), nil
}

// Envelope is the ciphertext wrapper stored in message content for
// encrypted kinds. The header carries the GCM nonce; both fields are
// base64 standard encoding.
type Envelope struct {
	Ciphertext       string `json:"ciphertext"`
	EncryptionHeader string `json:"encryption_header"`
}

// Encrypt seals plaintext under the channel secret with AES-256-GCM.
func Encrypt(secret Secret, plaintext []byte) (Envelope, error) {
	if len(secret) != 32 {
		return Envelope{}, fmt.Errorf("%w: invalid secret length", ErrEncryption)
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return Envelope{
		Ciphertext:       base64.StdEncoding.EncodeToString(ct),
		EncryptionHeader: base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens an envelope with the channel secret. Any malformed field or
// authentication failure returns ErrDecryption.
func Decrypt(secret Secret, env Envelope) ([]byte, error) {
	return DecryptWithHeader(secret, env.EncryptionHeader, env.Ciphertext)
}

// DecryptWithHeader decrypts a bare ciphertext field using an encryption
// header carried elsewhere (media assets share the message's header).
func DecryptWithHeader(secret Secret, header, ciphertext string) ([]byte, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: invalid secret length", ErrDecryption)
	}
	nonce, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encryption header", ErrDecryption)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrDecryption)
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrDecryption)
	}
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return pt, nil
}
