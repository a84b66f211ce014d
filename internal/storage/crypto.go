package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Format: magic(8) + salt(16) + nonce(12) + encrypted_data + auth_tag(16)
var gcmMagic = []byte("INKGCM01")

const (
	saltLen    = 16
	nonceLen   = 12
	tagLen     = 16
	kdfRounds  = 100000
	derivedLen = 32
)

var errCiphertext = errors.New("encrypted object is corrupt or the key is wrong")

func isSealed(data []byte) bool { return bytes.HasPrefix(data, gcmMagic) }

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, derivedLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// seal encrypts plaintext with a key derived from password.
func seal(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(gcmMagic)+saltLen+nonceLen+len(plaintext)+tagLen)
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// open reverses seal. Data without the magic prefix is returned unchanged.
func open(data []byte, password string) ([]byte, error) {
	if !isSealed(data) {
		return data, nil
	}
	if len(data) < len(gcmMagic)+saltLen+nonceLen+tagLen {
		return nil, fmt.Errorf("%w: %d bytes", errCiphertext, len(data))
	}
	if password == "" {
		return nil, errors.New("object is encrypted but no key is configured")
	}
	rest := data[len(gcmMagic):]
	salt, nonce, body := rest[:saltLen], rest[saltLen:saltLen+nonceLen], rest[saltLen+nonceLen:]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCiphertext, err)
	}
	return plain, nil
}
