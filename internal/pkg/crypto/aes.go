// Package crypto provides cryptographic utilities for pan storage.
// This includes the AES-128 id cipher for external ids and key derivation.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/prn-tf/pan-storage/internal/domain"
)

const (
	// KeySize is the size of the AES-128 key in bytes.
	KeySize = 16

	// idSize is the length of a big-endian encoded id.
	idSize = 8
)

// Errors
var (
	// ErrInvalidKeySize indicates the cipher key is not 16 bytes.
	ErrInvalidKeySize = errors.New("id cipher key must be 16 bytes (128 bits)")
)

// IDCipher turns snowflake ids into opaque tokens and back.
// Encryption is deterministic so the same id always yields the same token.
type IDCipher struct {
	block cipher.Block
}

// NewIDCipher creates an IDCipher with a 16 byte key.
func NewIDCipher(key []byte) (*IDCipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &IDCipher{block: block}, nil
}

// NewIDCipherFromSecret creates an IDCipher from a configured secret.
// A 32 character hex secret is used as the raw key, anything else is
// stretched with HKDF.
func NewIDCipherFromSecret(secret string) (*IDCipher, error) {
	if key, err := ParseHexKey(secret); err == nil {
		return NewIDCipher(key)
	}
	key, err := DeriveKey([]byte(secret), idCipherInfo)
	if err != nil {
		return nil, err
	}
	return NewIDCipher(key)
}

// Obfuscate encrypts the 8 byte big-endian form of id and returns it base64 encoded.
func (c *IDCipher) Obfuscate(id int64) string {
	plain := make([]byte, idSize)
	binary.BigEndian.PutUint64(plain, uint64(id))

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}

	return base64.StdEncoding.EncodeToString(out)
}

// Reveal reverses Obfuscate.
// Empty or malformed tokens fail with domain.ErrDecode.
func (c *IDCipher) Reveal(token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, domain.NewDomainError(domain.ErrDecode, "empty token", "")
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrDecode, "invalid base64", token)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return 0, domain.NewDomainError(domain.ErrDecode, "invalid ciphertext length", token)
	}

	plain := make([]byte, len(raw))
	for i := 0; i < len(raw); i += aes.BlockSize {
		c.block.Decrypt(plain[i:i+aes.BlockSize], raw[i:i+aes.BlockSize])
	}

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil || len(plain) != idSize {
		return 0, domain.NewDomainError(domain.ErrDecode, "invalid padding", token)
	}

	return int64(binary.BigEndian.Uint64(plain)), nil
}

// ObfuscateList joins the tokens of ids with domain.CompositeSeparator.
func (c *IDCipher) ObfuscateList(ids []int64) string {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = c.Obfuscate(id)
	}
	return strings.Join(tokens, domain.CompositeSeparator)
}

// RevealList reverses ObfuscateList. Empty segments are skipped.
func (c *IDCipher) RevealList(joined string) ([]int64, error) {
	parts := strings.Split(joined, domain.CompositeSeparator)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		id, err := c.Reveal(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, domain.NewDomainError(domain.ErrDecode, "empty token list", "")
	}
	return ids, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding size")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errors.New("invalid padding byte")
		}
	}
	return b[:len(b)-n], nil
}
