// Package crypto seals member site passwords at rest. Site login needs the
// password back in clear, so this is AES-GCM, not a one-way hash.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

type Sealer struct {
	aead cipher.AEAD
}

func New(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(append(nonce, ct...)), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	ns := s.aead.NonceSize()
	if len(buf) < ns {
		return "", fmt.Errorf("sealed value too short")
	}
	pt, err := s.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
